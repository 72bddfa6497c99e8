package auth

import (
	"net/http"
	"strings"
)

// CredentialFromRequest extracts the bearer credential presented during the
// WebSocket handshake. The "token" query parameter wins over the
// Authorization header because browsers cannot set headers on upgrades.
func CredentialFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return strings.TrimPrefix(token, "Bearer ")
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
