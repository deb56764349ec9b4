package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cliptube/accounts/internal/services"
	"github.com/cliptube/accounts/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a simple success payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID < 1 {
		return types.User{}, errors.New("missing user")
	}
	return user, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a services error kind onto its HTTP status.
// Internal failures get a generic message so no detail leaks.
func writeServiceError(w http.ResponseWriter, err error) {
	switch services.KindOf(err) {
	case services.KindValidation, services.KindUpload:
		writeError(w, http.StatusBadRequest, err.Error())
	case services.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, err.Error())
	case services.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case services.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ok"})
}
