// Package gateway speaks the impersonated product's WebSocket protocol:
// connect envelope in, hello-ok out, then framed request/response traffic
// with autonomous tick events. Every frame in both directions is classified
// and recorded before the canned reply goes out.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clawtrap/clawtrap/internal/classify"
	"github.com/clawtrap/clawtrap/internal/methods"
	"github.com/clawtrap/clawtrap/internal/protocol"
	"github.com/clawtrap/clawtrap/internal/store"
	"github.com/clawtrap/clawtrap/internal/telemetry"
	"github.com/clawtrap/clawtrap/internal/tracker"
)

// Policy constants advertised in hello-ok.
const (
	maxPayloadBytes   = 524288
	maxBufferedBytes  = 1572864
	defaultTickEvery  = 30 * time.Second
	janitorSweepEvery = time.Minute
)

// serverEvents is the event vocabulary advertised in hello-ok. Only tick is
// emitted autonomously; the rest are available for scripted injection.
var serverEvents = []string{
	"connect.challenge", "agent", "chat", "presence", "tick", "talk.mode",
	"shutdown", "health", "heartbeat", "cron",
	"node.pair.requested", "node.pair.resolved", "node.invoke.request",
	"device.pair.requested", "device.pair.resolved", "voicewake.changed",
	"exec.approval.requested", "exec.approval.resolved",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Manager owns the live-connection table and drives every socket through
// the NEW → AUTHENTICATED → CLOSED state machine.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	store    store.Store
	tracker  *tracker.Tracker
	registry *methods.Registry
	logger   *slog.Logger

	version      string
	gatewayToken string
	startedAt    time.Time
	tickEvery    time.Duration
}

// NewManager creates a gateway manager.
func NewManager(st store.Store, tr *tracker.Tracker, reg *methods.Registry, version, gatewayToken string, logger *slog.Logger) *Manager {
	return &Manager{
		conns:        map[string]*Conn{},
		store:        st,
		tracker:      tr,
		registry:     reg,
		logger:       logger,
		version:      version,
		gatewayToken: gatewayToken,
		startedAt:    time.Now(),
		tickEvery:    defaultTickEvery,
	}
}

// Live returns the number of open connections.
func (m *Manager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// HandleWS upgrades the HTTP request and serves the connection until the
// peer goes away. The upgrade succeeds on any path: scanners probe odd
// paths and every one of them deserves an answer.
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request, sourceIP string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	conn := &Conn{
		id:        uuid.NewString(),
		sourceIP:  sourceIP,
		userAgent: r.UserAgent(),
		ws:        ws,
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.conns[conn.id] = conn
	m.mu.Unlock()
	telemetry.LiveConnections.Inc()

	ctx := context.Background()
	if err := m.store.InsertConnection(ctx, &store.Connection{
		ID:          conn.id,
		SourceIP:    sourceIP,
		UserAgent:   conn.userAgent,
		Transport:   store.TransportWebSocket,
		ConnectedAt: time.Now().UTC(),
	}); err != nil {
		m.logger.Error("connection insert failed", "err", err)
	}

	m.logger.Info("websocket connected", "conn_id", conn.id, "ip", sourceIP, "path", r.URL.Path)

	defer m.closeConn(conn)
	for {
		mt, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		m.handleFrame(ctx, conn, raw)
	}
}

// handleFrame drives one inbound frame through the state machine. Frames
// never close the socket, whatever their shape.
func (m *Manager) handleFrame(ctx context.Context, conn *Conn, raw []byte) {
	res := classify.Classify(string(raw))
	m.tracker.Touch(ctx, conn.sourceIP, store.SessionDelta{WSMessages: 1})
	m.tracker.RecordSuspicious(ctx, res, string(raw), tracker.Meta{
		ConnectionID: conn.id,
		SourceIP:     conn.sourceIP,
		UserAgent:    conn.userAgent,
	})
	telemetry.WSMessages.WithLabelValues(store.DirectionInbound).Inc()

	if !conn.authenticated() {
		m.handshake(ctx, conn, raw, res)
		return
	}

	kind := protocol.FrameKind(raw)
	req := protocol.ParseRequest(raw)
	m.recordMessage(ctx, conn, store.DirectionInbound, kind, raw, req, res)

	if req == nil {
		// Events, responses, and garbage are logged and ignored; the
		// connection stays AUTHENTICATED.
		return
	}

	resp := m.registry.Dispatch(req, &methods.Context{
		Version:      m.version,
		GatewayToken: m.gatewayToken,
		ConnID:       conn.id,
		Host:         hostname(),
		StartedAt:    m.startedAt,
	})
	m.sendRecorded(ctx, conn, resp, store.FrameResponse, req.Method, resp.ID)
}

// handshake handles the first frame on a fresh socket. Any JSON object is
// accepted as a connect envelope; anything else is logged as invalid and
// the connection stays NEW.
func (m *Manager) handshake(ctx context.Context, conn *Conn, raw []byte, res *classify.Result) {
	env := protocol.ParseEnvelope(raw)
	if env == nil {
		m.recordMessage(ctx, conn, store.DirectionInbound, store.FrameInvalid, raw, nil, res)
		return
	}
	m.recordMessage(ctx, conn, store.DirectionInbound, store.FrameConnect, raw, nil, res)

	if env.ProtocolMismatch() {
		// Mismatched ranges are logged, never rejected.
		m.logger.Warn("protocol range mismatch, accepting anyway",
			"conn_id", conn.id, "min", env.MinProtocol, "max", env.MaxProtocol)
	}

	credential := env.Credential()
	attempt := &store.AuthAttempt{
		ConnectionID:   conn.id,
		SourceIP:       conn.sourceIP,
		AuthMethod:     env.AuthMethod(),
		Credential:     protocol.Fingerprint(credential),
		CredentialRaw:  credential,
		Success:        true, // the honeypot always accepts
		ClientID:       env.Client.ID,
		ClientVersion:  env.Client.Version,
		ClientPlatform: env.Client.Platform,
	}
	if err := m.store.InsertAuthAttempt(ctx, attempt); err != nil {
		m.logger.Error("auth attempt insert failed", "err", err)
	}
	m.tracker.Touch(ctx, conn.sourceIP, store.SessionDelta{AuthAttempts: 1})

	hello := m.helloOK(conn, env)
	if err := conn.sendJSON(hello); err != nil {
		m.logger.Warn("hello-ok send failed", "conn_id", conn.id, "err", err)
		m.closeConn(conn)
		return
	}
	raw2, _ := json.Marshal(hello)
	m.recordOutbound(ctx, conn, store.FrameResponse, raw2, "", "")

	conn.mu.Lock()
	conn.state = stateAuthenticated
	conn.mu.Unlock()

	m.logger.Info("handshake accepted",
		"conn_id", conn.id,
		"auth_method", attempt.AuthMethod,
		"client_id", env.Client.ID,
		"client_version", env.Client.Version,
	)

	// The ticker holds the connection id only; state is resolved through
	// the live table so teardown never races the timer.
	go m.tickLoop(conn.id)
}

// helloOK builds the handshake acceptance envelope.
func (m *Manager) helloOK(conn *Conn, env *protocol.ConnectEnvelope) map[string]any {
	hello := map[string]any{
		"type":     protocol.TypeHelloOK,
		"protocol": protocol.ProtocolVersion,
		"server": map[string]any{
			"version": m.version,
			"commit":  "d41c8a2",
			"host":    hostname(),
			"connId":  conn.id,
		},
		"features": map[string]any{
			"methods": m.registry.Names(),
			"events":  serverEvents,
		},
		"snapshot": map[string]any{
			"presence": []any{},
			"channels": map[string]any{},
		},
		"policy": map[string]any{
			"maxPayload":       maxPayloadBytes,
			"maxBufferedBytes": maxBufferedBytes,
			"tickIntervalMs":   m.tickEvery.Milliseconds(),
		},
	}
	if len(env.Device) > 0 {
		// Device-bound handshakes get a freshly minted admin token.
		hello["auth"] = map[string]any{
			"deviceToken": uuid.NewString(),
			"role":        "admin",
			"scopes":      []string{"*"},
			"issuedAtMs":  time.Now().UnixMilli(),
		}
	}
	return hello
}

// tickLoop emits a tick event every interval until the connection leaves
// the live table.
func (m *Manager) tickLoop(connID string) {
	ticker := time.NewTicker(m.tickEvery)
	defer ticker.Stop()
	for {
		m.mu.RLock()
		conn, ok := m.conns[connID]
		m.mu.RUnlock()
		if !ok || conn.closed() {
			return
		}
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			m.sendEvent(conn, "tick", map[string]any{"ts": time.Now().UnixMilli()})
		}
	}
}

// sendEvent frames and sends one event, bumping the per-connection seq. A
// failed send closes the connection.
func (m *Manager) sendEvent(conn *Conn, name string, payload any) {
	if !conn.authenticated() {
		return
	}
	ev := protocol.NewEvent(name, payload, conn.nextSeq())
	if err := conn.sendJSON(ev); err != nil {
		m.closeConn(conn)
		return
	}
	telemetry.WSMessages.WithLabelValues(store.DirectionOutbound).Inc()
	if name != "tick" {
		// Ticks are not persisted: one row per connection per 30s is
		// volume without evidence value.
		payloadJSON, _ := json.Marshal(payload)
		if err := m.store.InsertEvent(context.Background(), &store.Event{
			ConnectionID: conn.id,
			Name:         name,
			Payload:      string(payloadJSON),
			Seq:          ev.Seq,
		}); err != nil {
			m.logger.Error("event insert failed", "event", name, "err", err)
		}
	}
}

// Broadcast sends an event to every authenticated connection. Unreachable
// sockets are skipped; one failure never aborts the sweep.
func (m *Manager) Broadcast(name string, payload any) {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		m.sendEvent(conn, name, payload)
	}
}

// sendRecorded sends a frame and records it as an outbound message.
func (m *Manager) sendRecorded(ctx context.Context, conn *Conn, frame any, kind, method, correlID string) {
	raw, err := json.Marshal(frame)
	if err != nil {
		m.logger.Error("frame marshal failed", "err", err)
		return
	}
	if err := conn.send(raw); err != nil {
		m.closeConn(conn)
		return
	}
	telemetry.WSMessages.WithLabelValues(store.DirectionOutbound).Inc()
	m.recordOutbound(ctx, conn, kind, raw, method, correlID)
}

func (m *Manager) recordOutbound(ctx context.Context, conn *Conn, kind string, raw []byte, method, correlID string) {
	msg := &store.WSMessage{
		ConnectionID: conn.id,
		Direction:    store.DirectionOutbound,
		FrameKind:    kind,
		Method:       method,
		CorrelID:     correlID,
		Payload:      string(raw),
		Raw:          string(raw),
		PayloadSize:  len(raw),
	}
	if err := m.store.InsertWSMessage(ctx, msg); err != nil {
		m.logger.Error("ws message insert failed", "direction", "outbound", "err", err)
	}
}

func (m *Manager) recordMessage(ctx context.Context, conn *Conn, direction, kind string, raw []byte, req *protocol.Request, res *classify.Result) {
	msg := &store.WSMessage{
		ConnectionID: conn.id,
		Direction:    direction,
		FrameKind:    kind,
		Payload:      string(raw),
		Raw:          string(raw),
		PayloadSize:  len(raw),
		Suspicious:   res.Suspicious(),
		Reasons:      res.Reasons,
	}
	if req != nil {
		msg.Method = req.Method
		msg.CorrelID = req.ID
	}
	if err := m.store.InsertWSMessage(ctx, msg); err != nil {
		m.logger.Error("ws message insert failed", "direction", direction, "err", err)
	}
}

// closeConn tears a connection down exactly once: stamps disconnected_at,
// evicts it from the live table, and stops the tick loop via done.
func (m *Manager) closeConn(conn *Conn) {
	conn.closeOnce.Do(func() {
		conn.mu.Lock()
		conn.state = stateClosed
		conn.mu.Unlock()
		close(conn.done)
		conn.ws.Close()

		m.mu.Lock()
		delete(m.conns, conn.id)
		m.mu.Unlock()
		telemetry.LiveConnections.Dec()

		if err := m.store.CloseConnection(context.Background(), conn.id, time.Now().UTC()); err != nil {
			m.logger.Error("connection close stamp failed", "conn_id", conn.id, "err", err)
		}
		m.logger.Info("websocket disconnected", "conn_id", conn.id, "ip", conn.sourceIP)
	})
}

// Janitor pings live sockets and evicts the ones that died without a close
// handshake. Runs under server.RunWithRecovery.
func (m *Manager) Janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			conns := make([]*Conn, 0, len(m.conns))
			for _, c := range m.conns {
				conns = append(conns, c)
			}
			m.mu.RUnlock()
			for _, conn := range conns {
				if err := conn.ping(); err != nil {
					m.closeConn(conn)
				}
			}
		}
	}
}

// Shutdown broadcasts a shutdown event and closes every connection.
func (m *Manager) Shutdown() {
	m.Broadcast("shutdown", map[string]any{"reason": "maintenance", "ts": time.Now().UnixMilli()})

	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	for _, conn := range conns {
		m.closeConn(conn)
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "gateway"
	}
	return h
}
