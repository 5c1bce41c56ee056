package utils

import (
	"encoding/json"
	"net/http"

	"credify/apperr"
)

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, map[string]string{"error": msg})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// RespondWithAppError maps err onto its status code and a message that is
// safe to show the caller.
func RespondWithAppError(w http.ResponseWriter, err error) {
	RespondWithJSON(w, apperr.HTTPStatus(err), map[string]string{
		"error": apperr.PublicMessage(err),
		"kind":  string(apperr.KindOf(err)),
	})
}

type M map[string]interface{}
