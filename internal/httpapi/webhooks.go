package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clawtrap/clawtrap/internal/store"
)

// respond writes the canned JSON payload and records the hit as a
// ChannelInteraction under the given channel tag.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, channel string, code int, payload any) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			s.logger.Error("response marshal failed", "channel", channel, "err", err)
			body = nil
		}
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(code)
	if body != nil {
		w.Write(body)
	}
	s.recordInteraction(r, channel, code, string(body))
}

// respondText is the non-JSON variant; the Slack URL-verification echo is
// the only caller.
func (s *Server) respondText(w http.ResponseWriter, r *http.Request, channel string, code int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	w.Write([]byte(body))
	s.recordInteraction(r, channel, code, body)
}

func (s *Server) recordInteraction(r *http.Request, channel string, code int, respBody string) {
	info := infoFrom(r)
	if info == nil {
		return
	}
	sender, text := extract(channel, info.Body)
	row := &store.ChannelInteraction{
		Channel:      channel,
		Endpoint:     r.URL.Path,
		Method:       r.Method,
		Headers:      headerJSON(r.Header),
		Payload:      info.Body,
		PayloadSize:  len(info.Body),
		SenderID:     sender,
		MessageText:  text,
		SourceIP:     info.SourceIP,
		ResponseCode: code,
		ResponseBody: respBody,
		Suspicious:   info.Result.Suspicious(),
		Reasons:      info.Result.Reasons,
	}
	if err := s.store.InsertChannelInteraction(r.Context(), row); err != nil {
		s.logger.Error("channel interaction insert failed", "channel", channel, "err", err)
	}
}

// --- WhatsApp ---------------------------------------------------------------

func (s *Server) whatsappWebhook(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "whatsapp", http.StatusOK, map[string]any{"ok": true, "received": true})
}

func (s *Server) whatsappSend(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "whatsapp", http.StatusOK, map[string]any{
		"ok":        true,
		"messageId": uuid.NewString(),
		"status":    "sent",
	})
}

// --- Telegram ---------------------------------------------------------------

func (s *Server) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "telegram", http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) telegramSetWebhook(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "telegram", http.StatusOK, map[string]any{
		"ok":          true,
		"result":      true,
		"description": "Webhook is set",
	})
}

func (s *Server) telegramGetMe(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "telegram", http.StatusOK, map[string]any{
		"ok": true,
		"result": map[string]any{
			"id":                          7351942806,
			"is_bot":                      true,
			"first_name":                  "OpenClaw",
			"username":                    "openclaw_gateway_bot",
			"can_join_groups":             true,
			"can_read_all_group_messages": false,
			"supports_inline_queries":     false,
		},
	})
}

func (s *Server) telegramSendMessage(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r)
	var p struct {
		ChatID any    `json:"chat_id"`
		Text   string `json:"text"`
	}
	if info != nil {
		json.Unmarshal([]byte(info.Body), &p)
	}
	s.respond(w, r, "telegram", http.StatusOK, map[string]any{
		"ok": true,
		"result": map[string]any{
			"message_id": time.Now().Unix() % 100000,
			"chat":       map[string]any{"id": p.ChatID},
			"text":       p.Text,
			"date":       time.Now().Unix(),
		},
	})
}

func (s *Server) telegramGeneric(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "telegram", http.StatusOK, map[string]any{"ok": true, "result": map[string]any{}})
}

// --- Discord ----------------------------------------------------------------

func (s *Server) discordWebhook(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "discord", http.StatusOK, map[string]any{"type": 1})
}

func (s *Server) discordExecuteWebhook(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "discord", http.StatusNoContent, nil)
}

func (s *Server) discordInteractions(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r)
	var p struct {
		Type int `json:"type"`
	}
	if info != nil {
		json.Unmarshal([]byte(info.Body), &p)
	}
	if p.Type == 1 {
		s.respond(w, r, "discord", http.StatusOK, map[string]any{"type": 1})
		return
	}
	s.respond(w, r, "discord", http.StatusOK, map[string]any{
		"type": 4,
		"data": map[string]any{"content": "Command received."},
	})
}

// --- Slack ------------------------------------------------------------------

func (s *Server) slackEvents(w http.ResponseWriter, r *http.Request) {
	info := infoFrom(r)
	var p struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if info != nil {
		json.Unmarshal([]byte(info.Body), &p)
	}
	if p.Type == "url_verification" {
		// Slack expects the challenge back verbatim, no JSON wrapping.
		s.respondText(w, r, "slack", http.StatusOK, p.Challenge)
		return
	}
	s.respond(w, r, "slack", http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) slackCommands(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "slack", http.StatusOK, map[string]any{
		"response_type": "ephemeral",
		"text":          "Command received",
	})
}

func (s *Server) slackInteractive(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "slack", http.StatusOK, nil)
}

// --- Signal -----------------------------------------------------------------

func (s *Server) signalWebhook(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "signal", http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) signalSend(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "signal", http.StatusOK, map[string]any{"timestamp": time.Now().UnixMilli()})
}

// --- Generic / hooks --------------------------------------------------------

func (s *Server) genericWebhook(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	body, err := json.Marshal(map[string]any{"ok": true, "channel": channel})
	if err != nil {
		body = []byte(`{"ok":true}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	// Unknown channels are tagged custom; the real channel rides in the
	// endpoint path.
	s.recordInteraction(r, "custom", http.StatusOK, string(body))
}

func (s *Server) hooksWake(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "hooks", http.StatusOK, map[string]any{"ok": true, "mode": "now"})
}

func (s *Server) hooksAgent(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "hooks", http.StatusOK, map[string]any{"ok": true, "runId": uuid.NewString()})
}

func (s *Server) hooksGeneric(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "hooks", http.StatusOK, map[string]any{"ok": true})
}
