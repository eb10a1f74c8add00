package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clawtrap/clawtrap/internal/classify"
	"github.com/clawtrap/clawtrap/internal/store"
	"github.com/clawtrap/clawtrap/internal/telemetry"
	"github.com/clawtrap/clawtrap/internal/tracker"
)

// maxBodyBytes bounds how much of a request body is read for capture.
const maxBodyBytes = 10 << 20

type ctxKey struct{}

// requestInfo is what the capture middleware hands down to endpoint
// handlers, so ChannelInteraction rows can reference the same connection.
type requestInfo struct {
	ConnID   string
	SourceIP string
	Body     string
	Result   *classify.Result
}

func infoFrom(r *http.Request) *requestInfo {
	info, _ := r.Context().Value(ctxKey{}).(*requestInfo)
	return info
}

// capture is the shared pre/post pipeline: body capture, connection row,
// session touch, classification, then a Request row once the handler is
// done. Persistence failures are logged and never affect the response.
func (s *Server) capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		body := readBody(r)
		ip := clientIP(r)
		connID := uuid.NewString()
		ctx := r.Context()

		if err := s.store.InsertConnection(ctx, &store.Connection{
			ID:          connID,
			SourceIP:    ip,
			UserAgent:   r.UserAgent(),
			Transport:   store.TransportHTTP,
			ConnectedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Error("connection insert failed", "err", err)
		}
		s.tracker.Touch(ctx, ip, store.SessionDelta{Requests: 1})
		telemetry.HTTPRequests.WithLabelValues(pathChannel(r.URL.Path)).Inc()

		scanText := r.URL.Path + " " + r.URL.RawQuery + " " + body
		res := classify.Classify(scanText)
		s.tracker.RecordSuspicious(ctx, res, scanText, tracker.Meta{
			ConnectionID: connID,
			SourceIP:     ip,
			UserAgent:    r.UserAgent(),
			Path:         r.URL.Path,
			Method:       r.Method,
		})

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{ConnID: connID, SourceIP: ip, Body: body, Result: res}

		// A panicking handler must not surface a 5xx; the deception
		// contract is that well-formed requests always get their stub.
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error("handler panicked", "path", r.URL.Path, "panic", p)
					if !rec.wrote {
						rec.Header().Set("Content-Type", "application/json")
						rec.WriteHeader(http.StatusOK)
						rec.Write([]byte(`{"ok":true}`))
					}
				}
			}()
			next.ServeHTTP(rec, r.WithContext(context.WithValue(ctx, ctxKey{}, info)))
		}()

		row := &store.Request{
			ConnectionID: connID,
			Method:       r.Method,
			Path:         r.URL.Path,
			Query:        r.URL.RawQuery,
			Headers:      headerJSON(r.Header),
			Body:         body,
			BodySize:     len(body),
			ResponseCode: rec.status,
			ResponseBody: rec.body.String(),
			DurationMs:   float64(time.Since(start).Microseconds()) / 1000,
			Suspicious:   res.Suspicious(),
			Reasons:      res.Reasons,
		}
		if err := s.store.InsertRequest(ctx, row); err != nil {
			s.logger.Error("request insert failed", "path", r.URL.Path, "err", err)
		}
		if err := s.store.CloseConnection(ctx, connID, time.Now().UTC()); err != nil {
			s.logger.Error("connection close stamp failed", "err", err)
		}
	})
}

// responseRecorder tees status and body for the Request row.
type responseRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.wrote = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func readBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	r.Body.Close()
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return string(data)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket's remote address. Both headers are attacker-controlled, so a
// candidate that does not parse as an IP is skipped: a spoofed garbage hop
// must never reach the inet casts and cost the whole evidence row.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return "0.0.0.0"
}

// parseIP normalizes a candidate to a bare IP, tolerating whitespace, a
// port suffix, and brackets. Zone identifiers are dropped; postgres inet
// does not accept them.
func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.WithZone("").String(), true
}

func headerJSON(h http.Header) string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ", ")
	}
	out, _ := json.Marshal(flat)
	return string(out)
}

// pathChannel labels request metrics by surface family.
func pathChannel(path string) string {
	switch {
	case strings.HasPrefix(path, "/webhook/whatsapp"):
		return "whatsapp"
	case strings.HasPrefix(path, "/bot"):
		return "telegram"
	case strings.HasPrefix(path, "/webhook/discord"), strings.HasPrefix(path, "/api/webhooks/"), path == "/interactions":
		return "discord"
	case strings.HasPrefix(path, "/webhook/slack"), strings.HasPrefix(path, "/slack/"):
		return "slack"
	case strings.HasPrefix(path, "/webhook/signal"), path == "/v1/send":
		return "signal"
	case strings.HasPrefix(path, "/webhook/"):
		return "custom"
	case strings.HasPrefix(path, "/hooks/"):
		return "hooks"
	case strings.HasPrefix(path, "/api/"), path == "/health":
		return "api"
	default:
		return "other"
	}
}
