package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"idvault/internal/apperr"
	"idvault/internal/auth"
	"idvault/internal/share"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxBodyBytes caps request bodies. Metadata maps are small.
const maxBodyBytes = 1 << 20

var errInvalidJSON = apperr.New(apperr.ErrValidation, "invalid JSON")

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError maps err's kind to a status and writes the error envelope.
// Provider and unclassified errors are logged; their details stay server side.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, share.ErrExpired):
		auth.WriteJSONError(w, http.StatusGone, apperr.Message(err), auth.TypeGone)
	case errors.Is(err, apperr.ErrValidation):
		auth.WriteJSONError(w, http.StatusBadRequest, apperr.Message(err), auth.TypeInvalidRequest)
	case errors.Is(err, apperr.ErrPermissionDenied):
		if auth.PrincipalFrom(r.Context()) == nil {
			auth.WriteJSONError(w, http.StatusUnauthorized, apperr.Message(err), auth.TypeAuthentication)
			return
		}
		auth.WriteJSONError(w, http.StatusForbidden, apperr.Message(err), auth.TypePermission)
	case errors.Is(err, apperr.ErrNotFound):
		auth.WriteJSONError(w, http.StatusNotFound, apperr.Message(err), auth.TypeNotFound)
	case errors.Is(err, apperr.ErrProvider):
		logger.ErrorContext(r.Context(), "store request failed", "path", r.URL.Path, "error", err)
		auth.WriteJSONError(w, http.StatusBadGateway, apperr.Message(err), auth.TypeProvider)
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		auth.WriteJSONError(w, http.StatusInternalServerError, "internal error", auth.TypeInternal)
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	if dec.More() {
		return errInvalidJSON
	}
	return nil
}

// parseID extracts a UUID path parameter.
func parseID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, apperr.New(apperr.ErrValidation, "missing "+name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.ErrValidation, "invalid "+name)
	}
	return id, nil
}
