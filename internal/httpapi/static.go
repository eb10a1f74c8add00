package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// catchAll serves the control UI for browser-shaped paths and a 404 JSON
// for API-shaped ones. The prefix set is deliberate: webhook scanners
// probing /api/, /webhook/, or /bot paths expect a JSON miss, not HTML.
func (s *Server) catchAll(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/webhook/") || strings.HasPrefix(p, "/bot") {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not_found"})
		return
	}
	s.serveUI(w, r)
}

// serveUI serves files from the configured static directory, falling back
// to index.html and finally to the built-in shell.
func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	if s.staticDir != "" {
		clean := filepath.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if clean != "." && !strings.HasPrefix(clean, "..") {
			candidate := filepath.Join(s.staticDir, clean)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				http.ServeFile(w, r, candidate)
				return
			}
		}
		index := filepath.Join(s.staticDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(controlUIStub))
}

// controlUIStub is the fallback control-UI shell served when no static
// bundle is deployed. It only needs to look like the product's UI from a
// crawler's point of view.
const controlUIStub = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>OpenClaw Control</title>
<style>
  body { margin: 0; font-family: -apple-system, "Segoe UI", sans-serif; background: #0b0e14; color: #d6dbe4; }
  header { padding: 14px 20px; border-bottom: 1px solid #1d2430; display: flex; align-items: center; gap: 10px; }
  header .dot { width: 9px; height: 9px; border-radius: 50%; background: #3fb68b; }
  main { padding: 28px 20px; max-width: 720px; margin: 0 auto; }
  .card { background: #11151f; border: 1px solid #1d2430; border-radius: 8px; padding: 18px; margin-bottom: 14px; }
  .muted { color: #7a8494; font-size: 13px; }
</style>
</head>
<body>
<header><span class="dot"></span><strong>OpenClaw</strong><span class="muted">gateway</span></header>
<main>
  <div class="card">
    <h3>Connecting to gateway…</h3>
    <p class="muted">Establishing WebSocket session. If this persists, check that the gateway service is running.</p>
  </div>
  <div class="card">
    <h3>Channels</h3>
    <p class="muted">WhatsApp · Telegram · Discord · Slack · Signal · iMessage</p>
  </div>
</main>
<script>
  (function () {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/");
    ws.onopen = function () {
      ws.send(JSON.stringify({ minProtocol: 1, maxProtocol: 1, client: { id: "control-ui", version: "1.0", platform: "web", mode: "ui" } }));
    };
  })();
</script>
</body>
</html>
`
