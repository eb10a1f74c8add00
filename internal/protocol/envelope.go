package protocol

import "encoding/json"

// ProtocolVersion is the single protocol revision the gateway speaks. A
// client whose [minProtocol,maxProtocol] range excludes it is logged and
// accepted anyway: no observable path ever rejects a client.
const ProtocolVersion = 1

// ClientInfo is the self-description block of a connect envelope.
type ClientInfo struct {
	ID       string `json:"id,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// AuthBlock carries whatever credentials the client chose to present.
type AuthBlock struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// ConnectEnvelope is the first client→server message on a fresh socket: a
// JSON object without a type field. Validation is permissive: every field
// is optional and a malformed envelope is still accepted for logging.
type ConnectEnvelope struct {
	MinProtocol int             `json:"minProtocol,omitempty"`
	MaxProtocol int             `json:"maxProtocol,omitempty"`
	Client      ClientInfo      `json:"client,omitempty"`
	Caps        json.RawMessage `json:"caps,omitempty"`
	Commands    json.RawMessage `json:"commands,omitempty"`
	Permissions json.RawMessage `json:"permissions,omitempty"`
	PathEnv     string          `json:"pathEnv,omitempty"`
	Role        string          `json:"role,omitempty"`
	Scopes      []string        `json:"scopes,omitempty"`
	Device      json.RawMessage `json:"device,omitempty"`
	Auth        *AuthBlock      `json:"auth,omitempty"`
	Locale      string          `json:"locale,omitempty"`
	UserAgent   string          `json:"userAgent,omitempty"`
}

// ParseEnvelope decodes a connect envelope. Any JSON object qualifies;
// unknown fields are ignored and missing ones tolerated. Returns nil only
// for non-object input.
func ParseEnvelope(raw []byte) *ConnectEnvelope {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	var env ConnectEnvelope
	// Field-level decode errors leave zero values; the envelope is still
	// accepted for logging.
	_ = json.Unmarshal(raw, &env)
	return &env
}

// AuthMethod reports which credential kind the envelope presented:
// "password" wins over "token"; a device block alone is "device"; otherwise
// "none".
func (e *ConnectEnvelope) AuthMethod() string {
	if e.Auth != nil && e.Auth.Password != "" {
		return "password"
	}
	if e.Auth != nil && e.Auth.Token != "" {
		return "token"
	}
	if len(e.Device) > 0 {
		return "device"
	}
	return "none"
}

// Credential returns the raw credential string the envelope carried, if any.
func (e *ConnectEnvelope) Credential() string {
	if e.Auth == nil {
		return ""
	}
	if e.Auth.Password != "" {
		return e.Auth.Password
	}
	return e.Auth.Token
}

// ProtocolMismatch reports whether the client's advertised range excludes
// ProtocolVersion. Zero values (range not sent) never count as a mismatch.
func (e *ConnectEnvelope) ProtocolMismatch() bool {
	if e.MinProtocol == 0 && e.MaxProtocol == 0 {
		return false
	}
	return ProtocolVersion < e.MinProtocol || (e.MaxProtocol != 0 && ProtocolVersion > e.MaxProtocol)
}
