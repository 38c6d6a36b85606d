package config

import "strings"

// ListenPath is the server path clients subscribe on.
const ListenPath = "/ws/listen/"

// SanitizeURL normalizes a WebSocket base URL for clientID. Surrounding space and a
// trailing slash are dropped, http and https map to ws and wss, a bare host gets
// wss://, and /ws/listen/<client_id> is appended unless already present.
func SanitizeURL(raw, clientID string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")

	if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		switch {
		case strings.HasPrefix(u, "http://"):
			u = "ws://" + strings.TrimPrefix(u, "http://")
		case strings.HasPrefix(u, "https://"):
			u = "wss://" + strings.TrimPrefix(u, "https://")
		default:
			u = "wss://" + u
		}
	}

	suffix := ListenPath + clientID
	if !strings.HasSuffix(u, suffix) {
		u += suffix
	}
	return u
}
