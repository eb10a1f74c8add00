package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtrap/clawtrap/internal/alert"
	"github.com/clawtrap/clawtrap/internal/classify"
	"github.com/clawtrap/clawtrap/internal/geoip"
	"github.com/clawtrap/clawtrap/internal/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(st store.Store, geo geoip.Resolver) *Tracker {
	if geo == nil {
		geo = geoip.Disabled{}
	}
	return New(st, geo, alert.NewNotifier("", st, discard()), discard())
}

func TestRecordSuspiciousWritesRowPerCategory(t *testing.T) {
	mem := store.NewMemory()
	tr := newTestTracker(mem, nil)

	payload := "; cat /etc/passwd"
	res := classify.Classify(payload)
	require.True(t, res.Has(classify.CategoryCommandInjection))
	require.True(t, res.Has(classify.CategoryPathTraversal))

	tr.RecordSuspicious(context.Background(), res, payload, Meta{
		ConnectionID: "c1",
		SourceIP:     "203.0.113.7",
		Path:         "/webhook/x",
		Method:       "POST",
	})

	require.Len(t, mem.Suspicious, 2)
	byCategory := map[string]store.SuspiciousActivity{}
	for _, row := range mem.Suspicious {
		byCategory[row.Category] = row
		assert.Equal(t, "c1", row.ConnectionID)
		assert.Equal(t, payload, row.Payload)
		assert.NotEmpty(t, row.Pattern)
		assert.NotEmpty(t, row.Description)
	}
	assert.Equal(t, classify.SeverityCritical, byCategory[classify.CategoryCommandInjection].Severity)
	assert.Equal(t, classify.SeverityHigh, byCategory[classify.CategoryPathTraversal].Severity)

	s, ok := mem.Session("203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, int64(2), s.SuspiciousCount)
	assert.True(t, s.IsExploiter)
	assert.False(t, s.IsScanner)
}

func TestRecordSuspiciousNoOpForBenign(t *testing.T) {
	mem := store.NewMemory()
	tr := newTestTracker(mem, nil)

	tr.RecordSuspicious(context.Background(), classify.Classify("hello"), "hello", Meta{SourceIP: "1.1.1.1"})

	assert.Empty(t, mem.Suspicious)
	_, ok := mem.Session("1.1.1.1")
	assert.False(t, ok, "benign traffic must not create a session by itself")
}

type staticGeo struct{ country string }

func (g staticGeo) Country(string) (string, bool) { return g.country, g.country != "" }

func TestTouchGeoEnrichment(t *testing.T) {
	mem := store.NewMemory()
	tr := newTestTracker(mem, staticGeo{country: "NL"})

	tr.Touch(context.Background(), "198.51.100.4", store.SessionDelta{Requests: 1})

	s, ok := mem.Session("198.51.100.4")
	require.True(t, ok)
	assert.Equal(t, "NL", s.GeoCountry)
	assert.Equal(t, int64(1), s.RequestCount)
}

func TestCountersMonotonic(t *testing.T) {
	mem := store.NewMemory()
	tr := newTestTracker(mem, nil)
	ctx := context.Background()

	var last int64
	for i := 0; i < 10; i++ {
		tr.Touch(ctx, "10.9.8.7", store.SessionDelta{Requests: 1, WSMessages: 2})
		s, _ := mem.Session("10.9.8.7")
		assert.GreaterOrEqual(t, s.RequestCount, last)
		last = s.RequestCount
	}
	s, _ := mem.Session("10.9.8.7")
	assert.Equal(t, int64(10), s.RequestCount)
	assert.Equal(t, int64(20), s.WSMessageCount)
}

// failingStore errors on every write. The tracker must swallow all of it.
type failingStore struct{ store.Store }

func (failingStore) InsertSuspiciousActivity(context.Context, *store.SuspiciousActivity) error {
	return errors.New("db down")
}

func (failingStore) UpsertAttackerSession(context.Context, string, store.SessionDelta) error {
	return errors.New("db down")
}

func TestPersistenceErrorsSwallowed(t *testing.T) {
	tr := newTestTracker(failingStore{store.NewMemory()}, nil)
	res := classify.Classify("' OR 1=1--")
	require.True(t, res.Suspicious())

	assert.NotPanics(t, func() {
		tr.RecordSuspicious(context.Background(), res, "' OR 1=1--", Meta{SourceIP: "2.2.2.2"})
		tr.Touch(context.Background(), "2.2.2.2", store.SessionDelta{Requests: 1})
	})
}
