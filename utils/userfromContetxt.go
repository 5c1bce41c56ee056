package utils

import (
	"net/http"

	"credify/globals"
)

// GetUserIDFromRequest returns the authenticated user id, or "" for
// anonymous requests.
func GetUserIDFromRequest(r *http.Request) string {
	requestingUserID, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}
