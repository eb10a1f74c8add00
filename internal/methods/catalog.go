package methods

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clawtrap/clawtrap/internal/protocol"
)

// Channels the fake gateway claims to bridge. channels.status must list all
// six; scanners fingerprint the product by this exact set.
var channelNames = []string{"whatsapp", "telegram", "discord", "slack", "signal", "imessage"}

func nowMs() int64 { return time.Now().UnixMilli() }

type obj = map[string]any

func buildCatalog() map[string]Handler {
	m := map[string]Handler{}

	add := func(name string, h Handler) { m[name] = h }
	// static registers a handler returning the same shape every call.
	static := func(name string, payload func(c *Context) any) {
		add(name, func(_ *protocol.Request, c *Context) (any, error) { return payload(c), nil })
	}

	// --- health / status -------------------------------------------------
	static("health", func(c *Context) any {
		return obj{"ok": true, "version": c.Version, "uptimeMs": time.Since(c.StartedAt).Milliseconds()}
	})
	static("status", func(c *Context) any {
		return obj{
			"ok":       true,
			"version":  c.Version,
			"host":     c.Host,
			"channels": ChannelStatuses(),
			"sessions": obj{"active": 1, "total": 3},
			"uptimeMs": time.Since(c.StartedAt).Milliseconds(),
		}
	})
	static("logs.tail", func(c *Context) any {
		return obj{"lines": []string{
			"[gateway] listening on :18789",
			"[channels] whatsapp connected",
			"[channels] telegram connected",
		}}
	})

	// --- channels --------------------------------------------------------
	static("channels.status", func(c *Context) any {
		return obj{"channels": ChannelStatuses()}
	})
	add("channels.logout", func(req *protocol.Request, _ *Context) (any, error) {
		var p struct {
			Channel string `json:"channel"`
		}
		_ = json.Unmarshal(req.Params, &p)
		if p.Channel == "" {
			p.Channel = "whatsapp"
		}
		return obj{"ok": true, "channel": p.Channel, "loggedOut": true}, nil
	})

	// --- usage / tts -----------------------------------------------------
	static("usage.status", func(c *Context) any {
		return obj{"tokensUsed": 48213, "tokensLimit": 1000000, "resetAtMs": nowMs() + 86_400_000}
	})
	static("usage.cost", func(c *Context) any {
		return obj{"currency": "USD", "monthToDate": 12.47, "projected": 31.02}
	})
	static("tts.status", func(c *Context) any {
		return obj{"enabled": false, "provider": "elevenlabs"}
	})
	static("tts.providers", func(c *Context) any {
		return obj{"providers": []string{"elevenlabs", "openai", "system"}}
	})

	// --- config ----------------------------------------------------------
	static("config.get", func(c *Context) any { return obj{"config": fakeConfig(c)} })
	add("config.set", echoOK)
	add("config.apply", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "applied": true, "restartRequired": false}, nil
	})
	add("config.patch", echoOK)
	static("config.schema", func(c *Context) any {
		return obj{"schema": obj{"type": "object", "properties": obj{
			"gateway":  obj{"type": "object"},
			"channels": obj{"type": "object"},
			"agents":   obj{"type": "object"},
		}}}
	})

	// --- exec approvals --------------------------------------------------
	static("exec.approvals.get", func(c *Context) any {
		return obj{"mode": "auto", "pending": []any{}}
	})
	add("exec.approvals.set", echoOK)

	// --- wizard ----------------------------------------------------------
	add("wizard.start", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"wizardId": uuid.NewString(), "step": "welcome"}, nil
	})
	add("wizard.next", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"step": "channels", "done": false}, nil
	})
	add("wizard.cancel", echoOK)
	static("wizard.status", func(c *Context) any {
		return obj{"active": false, "step": nil}
	})

	// --- talk / models / agents / skills ---------------------------------
	add("talk.mode", func(req *protocol.Request, _ *Context) (any, error) {
		var p struct {
			Mode string `json:"mode"`
		}
		_ = json.Unmarshal(req.Params, &p)
		if p.Mode == "" {
			p.Mode = "text"
		}
		return obj{"ok": true, "mode": p.Mode}, nil
	})
	static("models.list", func(c *Context) any {
		return obj{"models": []obj{
			{"id": "claude-opus-4-5", "provider": "anthropic", "default": true},
			{"id": "claude-sonnet-4-5", "provider": "anthropic", "default": false},
			{"id": "gpt-5.2", "provider": "openai", "default": false},
		}}
	})
	static("agents.list", func(c *Context) any {
		return obj{"agents": []obj{
			{"id": "main", "name": "Assistant", "model": "claude-opus-4-5", "active": true},
		}}
	})
	static("skills.status", func(c *Context) any {
		return obj{"skills": []obj{
			{"name": "weather", "version": "1.2.0", "enabled": true},
			{"name": "calendar", "version": "0.9.4", "enabled": true},
			{"name": "browser", "version": "2.0.1", "enabled": false},
		}}
	})
	static("skills.bins", func(c *Context) any {
		return obj{"bins": []string{"ffmpeg", "yt-dlp", "pandoc"}}
	})
	add("skills.install", func(req *protocol.Request, _ *Context) (any, error) {
		var p struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(req.Params, &p)
		return obj{"ok": true, "name": p.Name, "installed": true}, nil
	})
	add("skills.update", echoOK)
	add("update.run", func(_ *protocol.Request, c *Context) (any, error) {
		return obj{"ok": true, "version": c.Version, "upToDate": true}, nil
	})

	// --- voicewake -------------------------------------------------------
	static("voicewake.get", func(c *Context) any {
		return obj{"enabled": false, "phrase": "hey claw"}
	})
	add("voicewake.set", echoOK)

	// --- sessions --------------------------------------------------------
	static("sessions.list", func(c *Context) any {
		return obj{"sessions": []obj{
			{"key": "main", "label": "Main", "updatedAtMs": nowMs() - 120_000, "messageCount": 42},
			{"key": "agent:research", "label": "Research", "updatedAtMs": nowMs() - 3_600_000, "messageCount": 7},
		}}
	})
	add("sessions.preview", func(req *protocol.Request, _ *Context) (any, error) {
		var p struct {
			Key string `json:"key"`
		}
		_ = json.Unmarshal(req.Params, &p)
		return obj{"key": p.Key, "messages": []obj{
			{"role": "user", "text": "what's on my calendar today?"},
			{"role": "assistant", "text": "You have two meetings this afternoon."},
		}}, nil
	})
	add("sessions.patch", echoOK)
	add("sessions.reset", echoOK)
	add("sessions.delete", func(req *protocol.Request, _ *Context) (any, error) {
		var p struct {
			Key string `json:"key"`
		}
		_ = json.Unmarshal(req.Params, &p)
		return obj{"ok": true, "deleted": p.Key}, nil
	})
	add("sessions.compact", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "compacted": true, "savedTokens": 1873}, nil
	})

	// --- heartbeat / wake ------------------------------------------------
	static("last-heartbeat", func(c *Context) any {
		return obj{"ts": nowMs() - 15_000, "ok": true}
	})
	add("set-heartbeats", echoOK)
	add("wake", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "mode": "now", "runId": uuid.NewString()}, nil
	})

	// --- node pairing ----------------------------------------------------
	add("node.pair.request", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"requestId": uuid.NewString(), "status": "pending"}, nil
	})
	static("node.pair.list", func(c *Context) any {
		return obj{"pending": []any{}, "paired": []obj{
			{"nodeId": "node-macbook", "name": "MacBook Pro", "pairedAtMs": nowMs() - 86_400_000},
		}}
	})
	add("node.pair.approve", echoOK)
	add("node.pair.reject", echoOK)
	add("node.pair.verify", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "verified": true}, nil
	})

	// --- device pairing / tokens -----------------------------------------
	static("device.pair.list", func(c *Context) any {
		return obj{"pending": []any{}, "devices": []obj{
			{"deviceId": "dev-" + uuid.NewString()[:8], "platform": "ios", "role": "admin"},
		}}
	})
	add("device.pair.approve", echoOK)
	add("device.pair.reject", echoOK)
	add("device.token.rotate", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "deviceToken": uuid.NewString(), "issuedAtMs": nowMs()}, nil
	})
	add("device.token.revoke", echoOK)

	// --- nodes -----------------------------------------------------------
	add("node.rename", echoOK)
	static("node.list", func(c *Context) any {
		return obj{"nodes": []obj{
			{"nodeId": "node-macbook", "name": "MacBook Pro", "online": true, "platform": "darwin"},
			{"nodeId": "node-rpi", "name": "Living Room Pi", "online": false, "platform": "linux"},
		}}
	})
	add("node.describe", func(req *protocol.Request, _ *Context) (any, error) {
		var p struct {
			NodeID string `json:"nodeId"`
		}
		_ = json.Unmarshal(req.Params, &p)
		return obj{"nodeId": p.NodeID, "caps": []string{"camera", "screen", "exec"}, "online": true}, nil
	})
	add("node.invoke", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"invokeId": uuid.NewString(), "status": "queued"}, nil
	})
	add("node.invoke.result", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"status": "pending", "result": nil}, nil
	})
	add("node.event", echoOK)

	// --- cron ------------------------------------------------------------
	static("cron.list", func(c *Context) any {
		return obj{"jobs": []obj{
			{"id": "morning-brief", "schedule": "0 7 * * *", "enabled": true},
			{"id": "inbox-sweep", "schedule": "*/30 * * * *", "enabled": true},
		}}
	})
	static("cron.status", func(c *Context) any {
		return obj{"running": 0, "scheduled": 2, "nextRunAtMs": nowMs() + 1_800_000}
	})
	add("cron.add", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "id": uuid.NewString()}, nil
	})
	add("cron.update", echoOK)
	add("cron.remove", echoOK)
	add("cron.run", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "runId": uuid.NewString()}, nil
	})
	static("cron.runs", func(c *Context) any {
		return obj{"runs": []obj{
			{"runId": uuid.NewString(), "job": "morning-brief", "status": "ok", "startedAtMs": nowMs() - 7_200_000},
		}}
	})

	// --- system / chat / agent -------------------------------------------
	add("system-presence", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"presence": []obj{{"host": "gateway", "state": "active"}}}, nil
	})
	add("system-event", echoOK)
	add("send", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "messageId": uuid.NewString(), "status": "sent"}, nil
	})
	add("agent", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"runId": uuid.NewString(), "status": "accepted"}, nil
	})
	static("agent.identity.get", func(c *Context) any {
		return obj{"name": "Assistant", "avatar": nil, "agentId": "main"}
	})
	add("agent.wait", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"status": "idle", "waitedMs": 0}, nil
	})
	add("browser.request", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"requestId": uuid.NewString(), "status": "queued"}, nil
	})
	add("chat.history", func(req *protocol.Request, _ *Context) (any, error) {
		var p struct {
			SessionKey string `json:"sessionKey"`
		}
		_ = json.Unmarshal(req.Params, &p)
		if p.SessionKey == "" {
			p.SessionKey = "main"
		}
		return obj{"sessionKey": p.SessionKey, "messages": []obj{
			{"role": "user", "text": "remind me to water the plants", "tsMs": nowMs() - 5_400_000},
			{"role": "assistant", "text": "Done, I'll remind you at 6pm.", "tsMs": nowMs() - 5_399_000},
		}}, nil
	})
	add("chat.abort", echoOK)
	add("chat.send", func(_ *protocol.Request, _ *Context) (any, error) {
		return obj{"ok": true, "messageId": uuid.NewString(), "queued": true}, nil
	})

	return m
}

// echoOK is the shared handler for mutation-shaped methods whose only
// plausible answer is acknowledgement.
func echoOK(_ *protocol.Request, _ *Context) (any, error) {
	return obj{"ok": true}, nil
}

// ChannelStatuses is the per-channel connected summary, shared by the
// channels.status method and the HTTP status endpoint.
func ChannelStatuses() []map[string]any {
	out := make([]map[string]any, 0, len(channelNames))
	for _, name := range channelNames {
		connected := name != "imessage" // one offline channel reads more real
		out = append(out, obj{
			"channel":     name,
			"connected":   connected,
			"lastEventMs": nowMs() - 42_000,
		})
	}
	return out
}

func fakeConfig(c *Context) obj {
	return obj{
		"gateway": obj{
			"bind":  "0.0.0.0:18789",
			"token": c.GatewayToken,
		},
		"channels": obj{
			"whatsapp": obj{"enabled": true},
			"telegram": obj{"enabled": true},
			"discord":  obj{"enabled": true},
			"slack":    obj{"enabled": true},
			"signal":   obj{"enabled": true},
			"imessage": obj{"enabled": false},
		},
		"agents": obj{
			"default": obj{"model": "claude-opus-4-5", "maxTokens": 8192},
		},
	}
}
