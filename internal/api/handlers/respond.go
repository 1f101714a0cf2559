package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func respondWithError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	respondWithJSON(w, logger, status, map[string]string{"error": message})
}

// obfuscate reads the ?obfuscate= flag; anything unparsable counts as false.
func obfuscate(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("obfuscate"))
	return ok
}
