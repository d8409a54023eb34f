package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/chobbledotcom/tickets-sub001/internal/session"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

// Server is the thin HTTP surface over the vault: exactly the credential
// and key-management operations, nothing of the ticketing domain itself.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	logger *slog.Logger
	mgr    *session.Manager
	vlt    *vault.Vault

	rlLoginIP  *multiLimiter
	rlRedeemIP *multiLimiter
}

func New(cfg Config, mgr *session.Manager, vlt *vault.Vault, logger *slog.Logger) *Server {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		mux:        http.NewServeMux(),
		logger:     logger,
		mgr:        mgr,
		vlt:        vlt,
		rlLoginIP:  newMultiLimiter(perWindow(10, time.Minute), 10, time.Hour),
		rlRedeemIP: newMultiLimiter(perWindow(5, time.Minute), 5, time.Hour),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.HandleFunc("/api/setup", s.handleSetup)
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/logout", s.handleLogout)
	s.mux.HandleFunc("/api/logout-others", s.handleLogoutOthers)
	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/password", s.handleChangePassword)
	s.mux.HandleFunc("/api/invites", s.handleCreateInvite)
	s.mux.HandleFunc("/api/invites/redeem", s.handleRedeemInvite)
	s.mux.HandleFunc("/api/users/", s.handleUserByID)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic", "value", rec, "path", r.URL.Path)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler { return s }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
