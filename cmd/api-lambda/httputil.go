package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/query"
	"github.com/jmorrow/persontrack/internal/store"
	"github.com/jmorrow/persontrack/internal/tracking"
)

// --- JSON Helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client.
// This prevents leaking sensitive info (S3 paths, ARNs, stack traces) while
// keeping client messages useful for debugging.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// serviceError maps domain errors onto HTTP statuses. Unrecognized errors
// become an opaque 500 with the detail kept server-side.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	case errors.Is(err, tracking.ErrInvalidRange):
		httpError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, query.ErrResultsNotReady):
		httpError(w, http.StatusConflict, "tracking results not ready")
	default:
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
