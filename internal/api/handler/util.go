package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/greyledger/offline-sync/internal/api/problem"
	"github.com/greyledger/offline-sync/internal/mfa"
	"github.com/greyledger/offline-sync/internal/remote"
	"github.com/greyledger/offline-sync/internal/session"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// mapAgentError translates session and remote errors into problem responses.
func mapAgentError(err error) (status int, problemType, message string, ok bool) {
	var validationErr *remote.ValidationError
	var networkErr *remote.NetworkError

	switch {
	case errors.Is(err, session.ErrNotInitialized):
		return http.StatusConflict, "session/not-initialized", "session is not initialized", true
	case errors.Is(err, mfa.ErrAuthorizationRequired):
		return http.StatusForbidden, "mfa/authorization-required", "a fresh verification token is required", true
	case errors.Is(err, remote.ErrUnauthorized):
		return http.StatusForbidden, "mfa/authorization-required", "the remote ledger rejected the verification token", true
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, "remote/validation-rejected", validationErr.Message, true
	case errors.As(err, &networkErr):
		return http.StatusBadGateway, "remote/unreachable", "remote ledger is unreachable", true
	default:
		return 0, "", "", false
	}
}
