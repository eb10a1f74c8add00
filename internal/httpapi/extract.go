package httpapi

import (
	"encoding/json"
	"strconv"
)

// extract pulls the sender id and message text out of a webhook payload
// using each platform's canonical field layout. Best effort: any parse
// failure yields empty strings and the interaction row is still written.
func extract(channel, body string) (senderID, messageText string) {
	var m map[string]any
	if json.Unmarshal([]byte(body), &m) != nil {
		return "", ""
	}
	switch channel {
	case "whatsapp":
		senderID = asString(dig(m, "key", "remoteJid"))
		messageText = asString(dig(m, "message", "conversation"))
		if messageText == "" {
			messageText = asString(dig(m, "message", "extendedTextMessage", "text"))
		}
	case "telegram":
		senderID = asString(dig(m, "message", "from", "id"))
		messageText = asString(dig(m, "message", "text"))
	case "discord":
		senderID = asString(dig(m, "user", "id"))
		messageText = asString(dig(m, "data", "content"))
	case "slack":
		senderID = asString(dig(m, "event", "user"))
		messageText = asString(dig(m, "event", "text"))
	case "signal":
		senderID = asString(dig(m, "source"))
		messageText = asString(dig(m, "dataMessage", "message"))
	}
	return senderID, messageText
}

// dig walks nested JSON objects by key, returning nil on any miss.
func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[k]
		if !ok {
			return nil
		}
	}
	return cur
}

// asString renders a JSON leaf as text. Numeric ids (Telegram) come out of
// encoding/json as float64 and are formatted without an exponent.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
