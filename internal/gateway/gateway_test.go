package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtrap/clawtrap/internal/alert"
	"github.com/clawtrap/clawtrap/internal/geoip"
	"github.com/clawtrap/clawtrap/internal/methods"
	"github.com/clawtrap/clawtrap/internal/store"
	"github.com/clawtrap/clawtrap/internal/tracker"
)

func newTestManager(t *testing.T) (*Manager, *store.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()
	track := tracker.New(mem, geoip.Disabled{}, alert.NewNotifier("", mem, logger), logger)
	registry := methods.NewRegistry(logger)
	return NewManager(mem, track, registry, "2026.1.24", "tok-123", logger), mem
}

func dialTestManager(t *testing.T, m *Manager) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HandleWS(w, r, "127.0.0.1")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

const connectEnvelope = `{"minProtocol":1,"maxProtocol":1,"client":{"id":"x","version":"0","platform":"linux","mode":"m"},"auth":{"token":"abc"}}`

func handshake(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(connectEnvelope)))
	hello := readFrame(t, ws)
	require.Equal(t, "hello-ok", hello["type"])
	return hello
}

func TestHandshakeAcceptance(t *testing.T) {
	m, mem := newTestManager(t)
	ws := dialTestManager(t, m)

	hello := handshake(t, ws)
	assert.Equal(t, float64(1), hello["protocol"])

	server := hello["server"].(map[string]any)
	assert.Equal(t, "2026.1.24", server["version"])
	assert.NotEmpty(t, server["connId"])

	features := hello["features"].(map[string]any)
	methodNames := features["methods"].([]any)
	found := false
	for _, n := range methodNames {
		if n == "channels.status" {
			found = true
		}
	}
	assert.True(t, found, "features.methods must advertise channels.status")

	policy := hello["policy"].(map[string]any)
	assert.Equal(t, float64(30000), policy["tickIntervalMs"])
	assert.Equal(t, float64(524288), policy["maxPayload"])
	assert.Equal(t, float64(1572864), policy["maxBufferedBytes"])

	attempts := mem.AuthAttemptRows()
	require.Len(t, attempts, 1)
	assert.Equal(t, "token", attempts[0].AuthMethod)
	assert.Regexp(t, `^hash_[0-9a-f]{8}$`, attempts[0].Credential)
	assert.Equal(t, "abc", attempts[0].CredentialRaw)
	assert.True(t, attempts[0].Success, "the gateway never rejects")
}

func TestDeviceHandshakeMintsToken(t *testing.T) {
	m, mem := newTestManager(t)
	ws := dialTestManager(t, m)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"minProtocol":1,"maxProtocol":1,"device":{"id":"dev-1","publicKey":"pk"}}`)))
	hello := readFrame(t, ws)
	require.Equal(t, "hello-ok", hello["type"])

	auth, ok := hello["auth"].(map[string]any)
	require.True(t, ok, "device handshake must embed an auth block")
	assert.NotEmpty(t, auth["deviceToken"])
	assert.Equal(t, "admin", auth["role"])
	assert.Equal(t, []any{"*"}, auth["scopes"])

	attempts := mem.AuthAttemptRows()
	require.Len(t, attempts, 1)
	assert.Equal(t, "device", attempts[0].AuthMethod)
}

func TestMethodDispatch(t *testing.T) {
	m, _ := newTestManager(t)
	ws := dialTestManager(t, m)
	handshake(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"req","id":"r1","method":"channels.status"}`)))
	res := readFrame(t, ws)

	assert.Equal(t, "res", res["type"])
	assert.Equal(t, "r1", res["id"])
	assert.Equal(t, true, res["ok"])

	payload := res["payload"].(map[string]any)
	channels := payload["channels"].([]any)
	assert.Len(t, channels, 6)
}

func TestUnknownMethod(t *testing.T) {
	m, _ := newTestManager(t)
	ws := dialTestManager(t, m)
	handshake(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"req","id":"r2","method":"no.such"}`)))
	res := readFrame(t, ws)

	assert.Equal(t, "r2", res["id"])
	assert.Equal(t, false, res["ok"])
	errObj := res["error"].(map[string]any)
	assert.Equal(t, "method_not_found", errObj["code"])
}

func TestTickEvents(t *testing.T) {
	m, _ := newTestManager(t)
	m.tickEvery = 50 * time.Millisecond
	ws := dialTestManager(t, m)
	handshake(t, ws)

	var seqs []float64
	deadline := time.Now().Add(3 * time.Second)
	for len(seqs) < 2 && time.Now().Before(deadline) {
		frame := readFrame(t, ws)
		if frame["type"] == "event" && frame["event"] == "tick" {
			payload := frame["payload"].(map[string]any)
			assert.Contains(t, payload, "ts")
			seqs = append(seqs, frame["seq"].(float64))
		}
	}
	require.Len(t, seqs, 2)
	assert.Greater(t, seqs[1], seqs[0], "seq must increase per connection")
}

func TestInvalidFirstFrameKeepsSocket(t *testing.T) {
	m, mem := newTestManager(t)
	ws := dialTestManager(t, m)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json at all")))
	// Still NEW: the next well-formed envelope completes the handshake.
	hello := handshake(t, ws)
	assert.Equal(t, "hello-ok", hello["type"])

	require.Eventually(t, func() bool {
		for _, msg := range mem.WSMessageRows() {
			if msg.FrameKind == store.FrameInvalid {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestNonRequestFramesIgnored(t *testing.T) {
	m, _ := newTestManager(t)
	ws := dialTestManager(t, m)
	handshake(t, ws)

	// Events and garbage draw no reply and do not close the socket.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"event","event":"spoof"}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`garbage`)))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"req","id":"r9","method":"health"}`)))
	res := readFrame(t, ws)
	assert.Equal(t, "r9", res["id"])
	assert.Equal(t, true, res["ok"])
}

func TestBinaryFrameStoredAsValidText(t *testing.T) {
	m, mem := newTestManager(t)
	ws := dialTestManager(t, m)
	handshake(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage,
		[]byte{0x7f, 0x45, 0x4c, 0x46, 0xff, 0xfe, 0x90, 0x90}))

	require.Eventually(t, func() bool {
		for _, msg := range mem.WSMessageRows() {
			if msg.FrameKind == store.FrameInvalid {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	for _, msg := range mem.WSMessageRows() {
		assert.True(t, utf8.ValidString(msg.Raw), "stored frames must be valid UTF-8")
		assert.True(t, utf8.ValidString(msg.Payload))
	}
}

func TestConnectionLifecycle(t *testing.T) {
	m, mem := newTestManager(t)
	ws := dialTestManager(t, m)
	handshake(t, ws)

	require.Eventually(t, func() bool { return m.Live() == 1 }, time.Second, 5*time.Millisecond)

	conns := mem.ConnectionRows()
	require.Len(t, conns, 1)
	assert.Equal(t, store.TransportWebSocket, conns[0].Transport)
	assert.Equal(t, "127.0.0.1", conns[0].SourceIP)

	ws.Close()
	require.Eventually(t, func() bool {
		rows := mem.ConnectionRows()
		return m.Live() == 0 && len(rows) == 1 && rows[0].DisconnectedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFrameRecording(t *testing.T) {
	m, mem := newTestManager(t)
	ws := dialTestManager(t, m)
	handshake(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"req","id":"r1","method":"status"}`)))
	readFrame(t, ws)

	require.Eventually(t, func() bool {
		inbound, outbound := 0, 0
		for _, msg := range mem.WSMessageRows() {
			switch msg.Direction {
			case store.DirectionInbound:
				inbound++
			case store.DirectionOutbound:
				outbound++
			}
		}
		// connect + request in; hello-ok + response out.
		return inbound >= 2 && outbound >= 2
	}, time.Second, 5*time.Millisecond)

	var reqMsg *store.WSMessage
	for _, msg := range mem.WSMessageRows() {
		if msg.FrameKind == store.FrameRequest && msg.Direction == store.DirectionInbound {
			cp := msg
			reqMsg = &cp
		}
	}
	require.NotNil(t, reqMsg)
	assert.Equal(t, "status", reqMsg.Method)
	assert.Equal(t, "r1", reqMsg.CorrelID)
}
