// Package tracker aggregates per-source-IP activity and records classifier
// hits. Every write here follows the honeypot failure policy: persistence
// errors are logged and swallowed, the response path never blocks on them.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/clawtrap/clawtrap/internal/alert"
	"github.com/clawtrap/clawtrap/internal/classify"
	"github.com/clawtrap/clawtrap/internal/geoip"
	"github.com/clawtrap/clawtrap/internal/store"
	"github.com/clawtrap/clawtrap/internal/telemetry"
)

// Tracker maintains the attacker_sessions aggregate and the
// suspicious_activities evidence.
type Tracker struct {
	store  store.Store
	geo    geoip.Resolver
	alerts *alert.Notifier
	logger *slog.Logger
}

// New creates a Tracker. geo may be geoip.Disabled{}; alerts may be a
// notifier with no URL configured.
func New(st store.Store, geo geoip.Resolver, alerts *alert.Notifier, logger *slog.Logger) *Tracker {
	return &Tracker{store: st, geo: geo, alerts: alerts, logger: logger}
}

// Touch creates or updates the per-IP aggregate. Counters in the delta are
// added, last-seen is bumped, flags are sticky. Errors are swallowed.
func (t *Tracker) Touch(ctx context.Context, ip string, d store.SessionDelta) {
	if d.GeoCountry == "" {
		if country, ok := t.geo.Country(ip); ok {
			d.GeoCountry = country
		}
	}
	if err := t.store.UpsertAttackerSession(ctx, ip, d); err != nil {
		t.logger.Error("attacker session upsert failed", "ip", ip, "err", err)
	}
}

// Meta describes where a classified payload came from.
type Meta struct {
	ConnectionID string
	SourceIP     string
	UserAgent    string
	Path         string
	Method       string
}

// RecordSuspicious persists one SuspiciousActivity row per matched category,
// raises the derived behavioral flags on the attacker session, and fans out
// an alert for critical hits. A result with no categories is a no-op.
func (t *Tracker) RecordSuspicious(ctx context.Context, res *classify.Result, payload string, meta Meta) {
	if !res.Suspicious() {
		return
	}

	for i, category := range res.Categories {
		desc := ""
		if i < len(res.Reasons) {
			desc = res.Reasons[i]
		}
		row := &store.SuspiciousActivity{
			ConnectionID: meta.ConnectionID,
			Category:     category,
			Severity:     res.Severities[category],
			Description:  desc,
			Payload:      payload,
			Pattern:      res.MatchedPattern[category],
			SourceIP:     meta.SourceIP,
			UserAgent:    meta.UserAgent,
			Path:         meta.Path,
			Method:       meta.Method,
		}
		if err := t.store.InsertSuspiciousActivity(ctx, row); err != nil {
			t.logger.Error("suspicious activity insert failed", "category", category, "err", err)
		}
		telemetry.SuspiciousHits.WithLabelValues(category).Inc()
	}

	t.Touch(ctx, meta.SourceIP, store.SessionDelta{
		Suspicious:  int64(len(res.Categories)),
		IsScanner:   res.IsScanner(),
		IsExploiter: res.IsExploiter(),
	})

	if res.MaxSeverity() == classify.SeverityCritical {
		for _, category := range res.Categories {
			if res.Severities[category] != classify.SeverityCritical {
				continue
			}
			t.alerts.Notify(alert.Notification{
				Category: category,
				Severity: classify.SeverityCritical,
				SourceIP: meta.SourceIP,
				Payload:  payload,
				Path:     meta.Path,
				TsMs:     time.Now().UnixMilli(),
			})
		}
	}
}
