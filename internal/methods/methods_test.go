package methods

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtrap/clawtrap/internal/protocol"
)

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testCtx() *Context {
	return &Context{Version: "2026.1.24", ConnID: "conn-1", Host: "gw-test", StartedAt: time.Now()}
}

// requiredMethods is the full advertised catalog. Every name must resolve
// to a handler; scanners enumerate hello-ok features.methods and poke each
// one.
var requiredMethods = strings.Fields(`
	health status logs.tail channels.status channels.logout
	usage.status usage.cost tts.status tts.providers
	config.get config.set config.apply config.patch config.schema
	exec.approvals.get exec.approvals.set
	wizard.start wizard.next wizard.cancel wizard.status
	talk.mode models.list agents.list
	skills.status skills.bins skills.install skills.update update.run
	voicewake.get voicewake.set
	sessions.list sessions.preview sessions.patch sessions.reset sessions.delete sessions.compact
	last-heartbeat set-heartbeats wake
	node.pair.request node.pair.list node.pair.approve node.pair.reject node.pair.verify
	device.pair.list device.pair.approve device.pair.reject
	device.token.rotate device.token.revoke
	node.rename node.list node.describe node.invoke node.invoke.result node.event
	cron.list cron.status cron.add cron.update cron.remove cron.run cron.runs
	system-presence system-event
	send agent agent.identity.get agent.wait browser.request
	chat.history chat.abort chat.send
`)

func TestCatalogComplete(t *testing.T) {
	r := testRegistry()
	for _, name := range requiredMethods {
		assert.True(t, r.Has(name), "missing method %s", name)
	}
}

func TestNamesSortedAndAdvertised(t *testing.T) {
	r := testRegistry()
	names := r.Names()
	assert.True(t, sortedStrings(names))
	assert.Contains(t, names, "channels.status")
	assert.GreaterOrEqual(t, len(names), len(requiredMethods))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] < s[i-1] {
			return false
		}
	}
	return true
}

func TestChannelsStatus(t *testing.T) {
	r := testRegistry()
	resp := r.Dispatch(&protocol.Request{Type: protocol.TypeRequest, ID: "r1", Method: "channels.status"}, testCtx())

	require.True(t, resp.OK)
	assert.Equal(t, "r1", resp.ID)

	payload, ok := resp.Payload.(map[string]any)
	require.True(t, ok)
	channels, ok := payload["channels"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, channels, 6)

	seen := map[string]bool{}
	for _, ch := range channels {
		seen[ch["channel"].(string)] = true
	}
	for _, want := range []string{"whatsapp", "telegram", "discord", "slack", "signal", "imessage"} {
		assert.True(t, seen[want], "missing channel %s", want)
	}
}

func TestUnknownMethod(t *testing.T) {
	r := testRegistry()
	resp := r.Dispatch(&protocol.Request{Type: protocol.TypeRequest, ID: "r2", Method: "no.such"}, testCtx())

	assert.False(t, resp.OK)
	assert.Equal(t, "r2", resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)
}

func TestHealth(t *testing.T) {
	r := testRegistry()
	resp := r.Dispatch(&protocol.Request{Type: protocol.TypeRequest, ID: "r3", Method: "health"}, testCtx())

	require.True(t, resp.OK)
	payload := resp.Payload.(map[string]any)
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, "2026.1.24", payload["version"])
}

func TestParamsEcho(t *testing.T) {
	r := testRegistry()
	req := &protocol.Request{
		Type:   protocol.TypeRequest,
		ID:     "r4",
		Method: "channels.logout",
		Params: json.RawMessage(`{"channel":"telegram"}`),
	}
	resp := r.Dispatch(req, testCtx())

	require.True(t, resp.OK)
	payload := resp.Payload.(map[string]any)
	assert.Equal(t, "telegram", payload["channel"])
}

func TestHandlersNeverError(t *testing.T) {
	// Every handler on garbage params still answers OK; the deception
	// surface has no observable failure path for well-formed requests.
	r := testRegistry()
	for _, name := range requiredMethods {
		resp := r.Dispatch(&protocol.Request{
			Type:   protocol.TypeRequest,
			ID:     "x",
			Method: name,
			Params: json.RawMessage(`{"unexpected":[1,2,3]}`),
		}, testCtx())
		assert.True(t, resp.OK, "method %s errored", name)
	}
}
