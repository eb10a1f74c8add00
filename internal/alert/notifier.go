// Package alert delivers outbound webhook notifications for
// critical-severity classifier hits. Delivery is queued and best-effort;
// nothing on the request path ever waits for it.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/clawtrap/clawtrap/internal/store"
)

// Notification is the JSON body POSTed to the alert webhook.
type Notification struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	SourceIP string `json:"source_ip"`
	Payload  string `json:"payload"`
	Path     string `json:"path,omitempty"`
	TsMs     int64  `json:"ts_ms"`
}

// Notifier queues notifications and posts them from a background loop.
type Notifier struct {
	url    string
	store  store.Store
	client *http.Client
	logger *slog.Logger
	queue  chan Notification
}

// NewNotifier creates a Notifier. An empty url disables delivery: Notify
// becomes a no-op and Run returns immediately.
func NewNotifier(url string, st store.Store, logger *slog.Logger) *Notifier {
	return &Notifier{
		url:    url,
		store:  st,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		queue:  make(chan Notification, 256),
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// Notify enqueues a notification. A full queue drops the notification
// rather than blocking the caller.
func (n *Notifier) Notify(note Notification) {
	if !n.Enabled() {
		return
	}
	select {
	case n.queue <- note:
	default:
		n.logger.Warn("alert queue full, dropping notification", "category", note.Category)
	}
}

// Run drains the queue until ctx is cancelled. Intended to run under
// server.RunWithRecovery.
func (n *Notifier) Run(ctx context.Context) {
	if !n.Enabled() {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case note := <-n.queue:
			n.deliver(ctx, note)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, note Notification) {
	rec := &store.Alert{
		Category: note.Category,
		Severity: note.Severity,
		SourceIP: note.SourceIP,
		Payload:  note.Payload,
	}

	body, err := json.Marshal(note)
	if err == nil {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if rerr == nil {
			req.Header.Set("Content-Type", "application/json")
			resp, derr := n.client.Do(req)
			if derr != nil {
				rec.Error = derr.Error()
			} else {
				resp.Body.Close()
				rec.Delivered = resp.StatusCode < 300
			}
		} else {
			rec.Error = rerr.Error()
		}
	} else {
		rec.Error = err.Error()
	}

	if !rec.Delivered {
		n.logger.Warn("alert delivery failed", "category", note.Category, "err", rec.Error)
	}
	if serr := n.store.InsertAlert(ctx, rec); serr != nil {
		n.logger.Error("alert record insert failed", "err", serr)
	}
}
