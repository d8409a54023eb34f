package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the vault error taxonomy onto HTTP statuses. Credential
// failures stay generic; authorization and rate-limit errors are safe to
// report distinctly.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrRateLimited):
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
	case errors.Is(err, vault.ErrAuthorization):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, vault.ErrAuthFailure):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, vault.ErrInvalidInvite):
		http.Error(w, "invalid or expired invite", http.StatusUnprocessableEntity)
	case errors.Is(err, vault.ErrDuplicateUser):
		http.Error(w, "username already exists", http.StatusConflict)
	case errors.Is(err, vault.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	case errors.Is(err, vault.ErrAlreadyInitialized):
		http.Error(w, "already initialized", http.StatusConflict)
	case errors.Is(err, vault.ErrIntegrity):
		http.Error(w, "stored data failed integrity check", http.StatusInternalServerError)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func tooMany(w http.ResponseWriter, retryAfterSeconds int) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}

func validatePassword(pw string) error {
	switch {
	case len(pw) < 12:
		return errors.New("password must be at least 12 characters")
	case strings.ContainsAny(pw, " \t"):
		return errors.New("password must not contain spaces")
	default:
		return nil
	}
}
