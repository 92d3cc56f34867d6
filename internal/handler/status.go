package handler

import (
	"net/http"

	"idvault/internal/config"
)

// Version is set at build time.
var Version = "dev"

// statusHandler describes the running service.
func statusHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":     "idvault",
			"version":     Version,
			"environment": cfg.Environment,
			"status":      "operational",
		})
	}
}
