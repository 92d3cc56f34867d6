package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"idvault/internal/apperr"
	"idvault/internal/auth"
	"idvault/internal/feed"
	"idvault/internal/role"
	"idvault/internal/stats"
)

// MeHandler serves the caller's own profile and change feed.
type MeHandler struct {
	policy    *role.Policy
	hub       *feed.Hub
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewMeHandler creates a new me handler.
func NewMeHandler(policy *role.Policy, hub *feed.Hub, logger *slog.Logger) *MeHandler {
	return &MeHandler{policy: policy, hub: hub, logger: logger, heartbeat: 25 * time.Second}
}

type meResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	Name          string     `json:"name,omitempty"`
	Role          role.Level `json:"role"`
}

// Get handles GET /api/v1/me
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		ID:            p.UserID.String(),
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		Name:          p.Name,
		Role:          h.policy.Level(r.Context(), p),
	})
}

// statsHandler handles GET /api/v1/me/stats
func statsHandler(manager *stats.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := manager.ForUser(r.Context(), auth.PrincipalFrom(r.Context()).UserID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

var errUnknownCollection = apperr.New(apperr.ErrValidation, "collection must be one of credentials, blocks, shares, claims")

func parseCollection(s string) (feed.Collection, error) {
	switch c := feed.Collection(s); c {
	case feed.CollectionAll, feed.CollectionCredentials, feed.CollectionBlocks, feed.CollectionShares, feed.CollectionClaims:
		return c, nil
	}
	return "", errUnknownCollection
}

// Events handles GET /api/v1/me/events?collection=
//
// It streams the caller's feed as server-sent events until the client goes
// away. Each event is named after its collection and carries the feed.Event
// as JSON.
func (h *MeHandler) Events(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	collection, err := parseCollection(r.URL.Query().Get("collection"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.ErrorContext(r.Context(), "event stream not supported", "error", err)
		return
	}

	done := make(chan struct{})
	events := make(chan feed.Event)
	sub := h.hub.Subscribe(p.UserID, collection, func(e feed.Event) {
		select {
		case events <- e:
		case <-done:
		}
	})
	defer sub.Unsubscribe()
	defer close(done)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "failed to encode feed event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Collection, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
