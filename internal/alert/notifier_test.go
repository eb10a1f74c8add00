package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtrap/clawtrap/internal/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDisabledNotifier(t *testing.T) {
	mem := store.NewMemory()
	n := NewNotifier("", mem, discard())

	assert.False(t, n.Enabled())
	assert.NotPanics(t, func() {
		n.Notify(Notification{Category: "exploit", Severity: "critical"})
	})
	assert.Empty(t, mem.AlertRows())
}

func TestDeliverySuccess(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.Store(string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	n := NewNotifier(srv.URL, mem, discard())
	require.True(t, n.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.Notify(Notification{
		Category: "command_injection",
		Severity: "critical",
		SourceIP: "203.0.113.9",
		Payload:  "; rm -rf /",
		TsMs:     time.Now().UnixMilli(),
	})

	require.Eventually(t, func() bool {
		return len(mem.AlertRows()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rows := mem.AlertRows()
	assert.True(t, rows[0].Delivered)
	assert.Empty(t, rows[0].Error)

	var note Notification
	require.NoError(t, json.Unmarshal([]byte(got.Load().(string)), &note))
	assert.Equal(t, "command_injection", note.Category)
	assert.Equal(t, "203.0.113.9", note.SourceIP)
}

func TestDeliveryFailureRecorded(t *testing.T) {
	mem := store.NewMemory()
	// Reserved address, nothing listens there.
	n := NewNotifier("http://127.0.0.1:1/alert", mem, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.Notify(Notification{Category: "exploit", Severity: "critical", SourceIP: "1.2.3.4"})

	require.Eventually(t, func() bool {
		return len(mem.AlertRows()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	rows := mem.AlertRows()
	assert.False(t, rows[0].Delivered)
	assert.NotEmpty(t, rows[0].Error)
}
