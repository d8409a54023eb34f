package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chobbledotcom/tickets-sub001/internal/audit"
	"github.com/chobbledotcom/tickets-sub001/internal/session"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

const (
	sessionCookie = "vault_session"
	csrfHeader    = "X-CSRF-Token"
)

type setupReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResp struct {
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type changePasswordReq struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

type createInviteReq struct {
	Capability string `json:"capability"`
}

type createInviteResp struct {
	Code string `json:"code"`
}

type redeemInviteReq struct {
	Code     string `json:"code"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// requireSession resolves the bearer cookie (and, for state-changing
// handlers, the CSRF header) into an AuthenticatedContext. On failure it
// writes the response itself and returns nil; callers must defer Close on
// a non-nil result.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request, requireCSRF bool) *session.AuthenticatedContext {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return nil
	}
	actx, err := s.mgr.Require(r.Context(), cookie.Value, r.Header.Get(csrfHeader), requireCSRF)
	if err != nil {
		writeError(w, err)
		return nil
	}
	return actx
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// handleSetup performs first-time owner creation. Valid only while the
// vault has zero users; GET reports whether setup has already run, for
// the setup page to decide what to show.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		initialized, err := s.vlt.Initialized(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"initialized": initialized})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setupReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		http.Error(w, "weak password: "+err.Error(), http.StatusBadRequest)
		return
	}
	u, err := s.vlt.CreateOwner(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mgr.Audit().Append(audit.EventVaultCreated, u.ID)
	writeJSONStatus(w, http.StatusCreated, map[string]any{"user_id": u.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ip := getClientIP(r)
	if !s.rlLoginIP.allow(ip) {
		tooMany(w, 60)
		return
	}
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	sess, err := s.mgr.Authenticate(r.Context(), req.Username, req.Password, ip)
	if errors.Is(err, vault.ErrRateLimited) {
		tooMany(w, int(s.mgr.RetryAfter(r.Context(), ip).Seconds())+1)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.setSessionCookie(w, sess.Token, sess.Expires)
	writeJSON(w, loginResp{CSRFToken: sess.CSRFToken, ExpiresAt: sess.Expires})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actx := s.requireSession(w, r, true)
	if actx == nil {
		return
	}
	defer actx.Close()
	if err := s.mgr.Logout(r.Context(), actx.Token()); err != nil {
		writeError(w, err)
		return
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutOthers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actx := s.requireSession(w, r, true)
	if actx == nil {
		return
	}
	defer actx.Close()
	if err := s.mgr.LogoutOthers(r.Context(), actx.UserID(), actx.Token()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actx := s.requireSession(w, r, false)
	if actx == nil {
		return
	}
	defer actx.Close()
	resp := map[string]any{
		"user_id":    actx.UserID(),
		"capability": actx.Capability(),
		"csrf_token": actx.CSRFToken(),
	}
	name, err := actx.Identity()
	switch {
	case err == nil:
		resp["username"] = name
	case errors.Is(err, vault.ErrIntegrity):
		// Tampered identity ciphertext is worth more than a missing
		// field in the response.
		s.logger.Error("identity decrypt", "user_id", actx.UserID(), "error", err)
	}
	writeJSON(w, resp)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actx := s.requireSession(w, r, true)
	if actx == nil {
		return
	}
	defer actx.Close()

	var req changePasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Current == req.Next {
		http.Error(w, "new password must differ from current password", http.StatusBadRequest)
		return
	}
	if err := validatePassword(req.Next); err != nil {
		http.Error(w, "weak password: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.mgr.ChangePassword(r.Context(), actx, req.Current, req.Next); err != nil {
		writeError(w, err)
		return
	}
	// Every session for the user is gone, this one included.
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actx := s.requireSession(w, r, true)
	if actx == nil {
		return
	}
	defer actx.Close()

	var req createInviteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	capability := vault.Capability(req.Capability)
	if capability != vault.CapabilityOwner && capability != vault.CapabilityManager {
		http.Error(w, "unknown capability", http.StatusBadRequest)
		return
	}
	code, err := s.mgr.CreateInvite(r.Context(), actx, capability)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, createInviteResp{Code: code})
}

func (s *Server) handleRedeemInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.rlRedeemIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}
	var req redeemInviteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Code == "" {
		http.Error(w, "code and username required", http.StatusBadRequest)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		http.Error(w, "weak password: "+err.Error(), http.StatusBadRequest)
		return
	}
	u, err := s.mgr.RedeemInvite(r.Context(), req.Code, req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{"user_id": u.ID})
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actx := s.requireSession(w, r, true)
	if actx == nil {
		return
	}
	defer actx.Close()

	targetID := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if targetID == "" || strings.Contains(targetID, "/") {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}
	if err := s.mgr.RevokeUser(r.Context(), actx, targetID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
