package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and lets the honeypot run
// without a database (evidence is then lost on restart, which is still
// better than refusing to start mid-incident).
type Memory struct {
	mu sync.Mutex

	Connections  []Connection
	Requests     []Request
	WSMessages   []WSMessage
	AuthAttempts []AuthAttempt
	Interactions []ChannelInteraction
	Suspicious   []SuspiciousActivity
	Sessions     map[string]*AttackerSession
	Events       []Event
	Alerts       []Alert
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{Sessions: map[string]*AttackerSession{}}
}

func (m *Memory) InsertConnection(_ context.Context, c *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connections = append(m.Connections, *c)
	return nil
}

func (m *Memory) CloseConnection(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Connections {
		if m.Connections[i].ID == id && m.Connections[i].DisconnectedAt == nil {
			t := at
			m.Connections[i].DisconnectedAt = &t
		}
	}
	return nil
}

func (m *Memory) InsertRequest(_ context.Context, r *Request) error {
	r.Clamp()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, *r)
	return nil
}

func (m *Memory) InsertWSMessage(_ context.Context, msg *WSMessage) error {
	msg.Clamp()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WSMessages = append(m.WSMessages, *msg)
	return nil
}

func (m *Memory) InsertAuthAttempt(_ context.Context, a *AuthAttempt) error {
	a.Clamp()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthAttempts = append(m.AuthAttempts, *a)
	return nil
}

func (m *Memory) InsertChannelInteraction(_ context.Context, c *ChannelInteraction) error {
	c.Clamp()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Interactions = append(m.Interactions, *c)
	return nil
}

func (m *Memory) InsertSuspiciousActivity(_ context.Context, s *SuspiciousActivity) error {
	s.Clamp()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Suspicious = append(m.Suspicious, *s)
	return nil
}

func (m *Memory) UpsertAttackerSession(_ context.Context, ip string, d SessionDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	s, ok := m.Sessions[ip]
	if !ok {
		s = &AttackerSession{SourceIP: ip, FirstSeen: now}
		m.Sessions[ip] = s
	}
	s.LastSeen = now
	s.RequestCount += d.Requests
	s.WSMessageCount += d.WSMessages
	s.AuthCount += d.AuthAttempts
	s.SuspiciousCount += d.Suspicious
	// Sticky flags: true wins, false never reverts.
	s.IsScanner = s.IsScanner || d.IsScanner
	s.IsBruteforcer = s.IsBruteforcer || d.IsBruteforcer
	s.IsExploiter = s.IsExploiter || d.IsExploiter
	if d.GeoCountry != "" {
		s.GeoCountry = d.GeoCountry
	}
	return nil
}

func (m *Memory) InsertEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, *e)
	return nil
}

func (m *Memory) InsertAlert(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, *a)
	return nil
}

// Snapshot accessors. Server goroutines append concurrently with readers,
// so tests must go through these instead of the raw slices.

func (m *Memory) AlertRows() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.Alerts...)
}

func (m *Memory) ConnectionRows() []Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Connection(nil), m.Connections...)
}

func (m *Memory) RequestRows() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.Requests...)
}

func (m *Memory) WSMessageRows() []WSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WSMessage(nil), m.WSMessages...)
}

func (m *Memory) AuthAttemptRows() []AuthAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuthAttempt(nil), m.AuthAttempts...)
}

func (m *Memory) InteractionRows() []ChannelInteraction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChannelInteraction(nil), m.Interactions...)
}

func (m *Memory) SuspiciousRows() []SuspiciousActivity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SuspiciousActivity(nil), m.Suspicious...)
}

// Session returns a copy of the aggregate for ip, if present.
func (m *Memory) Session(ip string) (AttackerSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[ip]
	if !ok {
		return AttackerSession{}, false
	}
	return *s, true
}
