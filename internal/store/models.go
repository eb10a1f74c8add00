package store

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Transport kinds for Connection rows.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// WebSocket message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Frame kinds recorded for WebSocket messages.
const (
	FrameConnect  = "connect"
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameEvent    = "event"
	FrameInvalid  = "invalid"
)

// Hard truncation limits. Values above the limit are cut with no marker;
// the size fields keep the true length.
const (
	MaxRequestBody       = 10000
	MaxResponseBody      = 5000
	MaxRawFrame          = 10000
	MaxSuspiciousPayload = 5000
	MaxCredentialPrefix  = 100
)

// Connection is one live session, HTTP or WebSocket. Immutable after insert
// except for DisconnectedAt.
type Connection struct {
	ID             string
	SourceIP       string
	UserAgent      string
	Transport      string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
}

// Request is one completed HTTP exchange.
type Request struct {
	ConnectionID string
	Method       string
	Path         string
	Query        string
	Headers      string
	Body         string
	BodySize     int
	ResponseCode int
	ResponseBody string
	DurationMs   float64
	Suspicious   bool
	Reasons      []string
}

// WSMessage is one framed message crossing a socket.
type WSMessage struct {
	ConnectionID string
	Direction    string
	FrameKind    string
	Method       string
	CorrelID     string
	Payload      string
	Raw          string
	PayloadSize  int
	Suspicious   bool
	Reasons      []string
}

// AuthAttempt is one credential presentation. Success is always true: the
// honeypot never rejects.
type AuthAttempt struct {
	ConnectionID   string
	SourceIP       string
	AuthMethod     string
	Credential     string // hash_<fnv32 hex> fingerprint
	CredentialRaw  string // first 100 chars, retained for research
	Success        bool
	ClientID       string
	ClientVersion  string
	ClientPlatform string
}

// ChannelInteraction is one webhook hit against an impersonated platform.
type ChannelInteraction struct {
	Channel      string
	Endpoint     string
	Method       string
	Headers      string
	Payload      string
	PayloadSize  int
	SenderID     string
	MessageText  string
	SourceIP     string
	ResponseCode int
	ResponseBody string
	Suspicious   bool
	Reasons      []string
}

// SuspiciousActivity is one classifier hit, one row per matched category.
type SuspiciousActivity struct {
	ConnectionID string
	Category     string
	Severity     string
	Description  string
	Payload      string
	Pattern      string
	SourceIP     string
	UserAgent    string
	Path         string
	Method       string
}

// AttackerSession is the per-IP aggregate.
type AttackerSession struct {
	SourceIP        string
	FirstSeen       time.Time
	LastSeen        time.Time
	RequestCount    int64
	WSMessageCount  int64
	AuthCount       int64
	SuspiciousCount int64
	IsScanner       bool
	IsBruteforcer   bool
	IsExploiter     bool
	GeoCountry      string
}

// SessionDelta is one Touch: counters to add and flags to raise. Flags are
// sticky; false never clears a set flag.
type SessionDelta struct {
	Requests      int64
	WSMessages    int64
	AuthAttempts  int64
	Suspicious    int64
	IsScanner     bool
	IsBruteforcer bool
	IsExploiter   bool
	GeoCountry    string
}

// Event is one broadcast or script-injected gateway event.
type Event struct {
	ConnectionID string
	Name         string
	Payload      string
	Seq          int64
}

// Alert is one outbound alert webhook delivery.
type Alert struct {
	Category  string
	Severity  string
	SourceIP  string
	Payload   string
	Delivered bool
	Error     string
}

// sanitize replaces invalid UTF-8 so raw attacker bytes (binary WebSocket
// frames, mangled request lines) survive a postgres TEXT column instead of
// costing the whole row.
func sanitize(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

// truncate cuts s to at most max characters, never splitting a rune. The
// limits are in characters; a value of exactly max is kept verbatim.
func truncate(s string, max int) string {
	s = sanitize(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := 0
	for i := range s {
		if runes == max {
			return s[:i]
		}
		runes++
	}
	return s
}

// Clamp enforces the hard truncation limits before persistence. Both the
// postgres and in-memory stores call it so the contract holds regardless of
// backend.
func (r *Request) Clamp() {
	r.Path = sanitize(r.Path)
	r.Query = sanitize(r.Query)
	r.Body = truncate(r.Body, MaxRequestBody)
	r.ResponseBody = truncate(r.ResponseBody, MaxResponseBody)
}

func (m *WSMessage) Clamp() {
	m.Raw = truncate(m.Raw, MaxRawFrame)
	m.Payload = truncate(m.Payload, MaxRawFrame)
}

func (a *AuthAttempt) Clamp() {
	a.CredentialRaw = truncate(a.CredentialRaw, MaxCredentialPrefix)
}

func (c *ChannelInteraction) Clamp() {
	c.Endpoint = sanitize(c.Endpoint)
	c.Payload = truncate(c.Payload, MaxRequestBody)
	c.ResponseBody = truncate(c.ResponseBody, MaxResponseBody)
}

func (s *SuspiciousActivity) Clamp() {
	s.Path = sanitize(s.Path)
	s.Payload = truncate(s.Payload, MaxSuspiciousPayload)
}
