// Package httpapi is the deception HTTP surface: bit-faithful webhook
// endpoints for each impersonated messaging platform, health and status,
// static control-UI serving, and a catch-all. Every request runs through
// the capture pipeline before its canned handler.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/clawtrap/clawtrap/internal/gateway"
	"github.com/clawtrap/clawtrap/internal/methods"
	"github.com/clawtrap/clawtrap/internal/store"
	"github.com/clawtrap/clawtrap/internal/tracker"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	store     store.Store
	tracker   *tracker.Tracker
	gateway   *gateway.Manager
	logger    *slog.Logger
	version   string
	staticDir string
	startedAt time.Time
}

// New builds the full HTTP handler. WebSocket upgrades are detected before
// routing so the gateway can accept them on any path.
func New(st store.Store, tr *tracker.Tracker, gw *gateway.Manager, version, staticDir string, logger *slog.Logger) http.Handler {
	s := &Server{
		store:     st,
		tracker:   tr,
		gateway:   gw,
		logger:    logger,
		version:   version,
		staticDir: staticDir,
		startedAt: time.Now(),
	}
	mux := s.routes()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.gateway.HandleWS(w, r, clientIP(r))
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.capture)

	r.Get("/health", s.health)
	r.Get("/api/status", s.apiStatus)

	// WhatsApp
	r.Post("/webhook/whatsapp", s.whatsappWebhook)
	r.Post("/webhook/whatsapp/send", s.whatsappSend)

	// Telegram bot API. The token rides in the first path segment, so the
	// param is a partial-segment match after the literal "bot".
	r.Post("/bot{token}/webhook", s.telegramWebhook)
	r.Post("/bot{token}/setWebhook", s.telegramSetWebhook)
	r.HandleFunc("/bot{token}/getMe", s.telegramGetMe)
	r.Post("/bot{token}/sendMessage", s.telegramSendMessage)
	r.HandleFunc("/bot{token}/*", s.telegramGeneric)

	// Discord
	r.Post("/webhook/discord", s.discordWebhook)
	r.Post("/api/webhooks/{id}/{token}", s.discordExecuteWebhook)
	r.Post("/interactions", s.discordInteractions)

	// Slack
	r.Post("/webhook/slack", s.slackEvents)
	r.Post("/slack/events", s.slackEvents)
	r.Post("/slack/commands", s.slackCommands)
	r.Post("/slack/interactive", s.slackInteractive)

	// Signal
	r.Post("/webhook/signal", s.signalWebhook)
	r.Post("/v1/send", s.signalSend)

	// Generic channel plus the product's own hook family.
	r.Post("/webhook/{channel}", s.genericWebhook)
	r.Post("/hooks/wake", s.hooksWake)
	r.Post("/hooks/agent", s.hooksAgent)
	r.HandleFunc("/hooks/*", s.hooksGeneric)

	// Everything else gets the control UI, or 404 JSON on API-shaped paths.
	r.NotFound(s.catchAll)
	r.MethodNotAllowed(s.catchAll)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"version":     s.version,
		"uptime":      int64(time.Since(s.startedAt).Seconds()),
		"connections": s.gateway.Live(),
	})
}

func (s *Server) apiStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"version":     s.version,
		"uptimeMs":    time.Since(s.startedAt).Milliseconds(),
		"connections": s.gateway.Live(),
		"channels":    methods.ChannelStatuses(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("response marshal failed", "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}
