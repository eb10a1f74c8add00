package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	in := &Request{Type: TypeRequest, ID: "r1", Method: "channels.status", Params: json.RawMessage(`{"channel":"slack"}`)}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	out := ParseRequest(raw)
	require.NotNil(t, out)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Method, out.Method)
	assert.JSONEq(t, string(in.Params), string(out.Params))
}

func TestParseRequestRejects(t *testing.T) {
	assert.Nil(t, ParseRequest([]byte("not json")))
	assert.Nil(t, ParseRequest([]byte(`{"type":"req","id":"r1"}`)), "missing method")
	assert.Nil(t, ParseRequest([]byte(`{"type":"event","event":"tick"}`)), "wrong frame type")
}

func TestResponseShapes(t *testing.T) {
	ok := OKResponse("r1", map[string]any{"ok": true})
	raw, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"res"`)
	assert.Contains(t, string(raw), `"ok":true`)

	fail := ErrResponse("r2", CodeMethodNotFound, "unknown method: no.such")
	raw, err = json.Marshal(fail)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.False(t, decoded.OK)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, CodeMethodNotFound, decoded.Error.Code)
}

func TestFrameKind(t *testing.T) {
	cases := []struct {
		raw  string
		kind string
	}{
		{`{"type":"req","id":"1","method":"health"}`, "request"},
		{`{"type":"res","id":"1","ok":true}`, "response"},
		{`{"type":"event","event":"tick"}`, "event"},
		{`{"minProtocol":1,"auth":{"token":"x"}}`, "connect"},
		{`{}`, "connect"},
		{`{"type":"bogus"}`, "invalid"},
		{`[1,2,3]`, "invalid"},
		{`"just a string"`, "invalid"},
		{`garbage`, "invalid"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, FrameKind([]byte(tc.raw)), "raw: %s", tc.raw)
	}
}

func TestEnvelopeAuthMethod(t *testing.T) {
	parse := func(s string) *ConnectEnvelope {
		env := ParseEnvelope([]byte(s))
		require.NotNil(t, env)
		return env
	}

	env := parse(`{"auth":{"token":"abc"}}`)
	assert.Equal(t, "token", env.AuthMethod())
	assert.Equal(t, "abc", env.Credential())

	env = parse(`{"auth":{"token":"abc","password":"hunter2"}}`)
	assert.Equal(t, "password", env.AuthMethod(), "password wins over token")
	assert.Equal(t, "hunter2", env.Credential())

	env = parse(`{"device":{"id":"dev-1"}}`)
	assert.Equal(t, "device", env.AuthMethod())
	assert.Equal(t, "", env.Credential())

	env = parse(`{}`)
	assert.Equal(t, "none", env.AuthMethod())
}

func TestEnvelopeTolerance(t *testing.T) {
	// Wrong field types still yield an envelope; only non-objects are nil.
	assert.NotNil(t, ParseEnvelope([]byte(`{"minProtocol":"one","client":42}`)))
	assert.Nil(t, ParseEnvelope([]byte(`[1,2]`)))
	assert.Nil(t, ParseEnvelope([]byte(`"hi"`)))
}

func TestProtocolMismatch(t *testing.T) {
	cases := []struct {
		min, max int
		mismatch bool
	}{
		{0, 0, false},
		{1, 1, false},
		{1, 0, false},
		{2, 3, true},
	}
	for _, tc := range cases {
		env := &ConnectEnvelope{MinProtocol: tc.min, MaxProtocol: tc.max}
		assert.Equal(t, tc.mismatch, env.ProtocolMismatch(), "range [%d,%d]", tc.min, tc.max)
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("abc")
	assert.Regexp(t, `^hash_[0-9a-f]{8}$`, fp)
	assert.Equal(t, fp, Fingerprint("abc"), "stable for equal input")
	assert.NotEqual(t, fp, Fingerprint("abd"))
	assert.Regexp(t, `^hash_[0-9a-f]{8}$`, Fingerprint(""), "empty credential still fingerprints")
}
