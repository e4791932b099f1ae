package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"salla-repricer/database"
)

// respondJSON writes a JSON response with the given status
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("❌ Failed to encode response: %v", err)
	}
}

// respondWithError logs the error and sends a JSON error response.
// Use this to avoid exposing internal errors while still logging them.
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Errorf("API error [%d]: %s - %v", code, message, err)
	} else {
		log.Errorf("API error [%d]: %s", code, message)
	}
	respondJSON(w, code, map[string]string{"error": message})
}

// respondRepoError maps repository errors onto HTTP statuses
func respondRepoError(w http.ResponseWriter, err error) {
	var notFound *database.NotFoundError
	var invalid *database.ValidationError

	switch {
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, notFound.Error(), nil)
	case errors.As(err, &invalid):
		respondWithError(w, http.StatusBadRequest, invalid.Error(), nil)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// getIntParam retrieves an integer query parameter with a default and an
// upper bound
func getIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return defaultVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
