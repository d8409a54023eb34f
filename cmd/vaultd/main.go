package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/chobbledotcom/tickets-sub001/internal/invite"
	"github.com/chobbledotcom/tickets-sub001/internal/logging"
	"github.com/chobbledotcom/tickets-sub001/internal/server"
	"github.com/chobbledotcom/tickets-sub001/internal/session"
	"github.com/chobbledotcom/tickets-sub001/internal/throttle"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

func main() {
	logger := logging.New(os.Getenv("VAULT_LOG_LEVEL"))
	cfg := server.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		userStore    vault.UserStore
		metaStore    vault.MetaStore
		sessionStore session.Store
		attemptStore throttle.Store
		inviteStore  invite.Store
	)

	if cfg.MongoURI != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			logger.Error("mongo connect", "error", err)
			os.Exit(1)
		}
		if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
			logger.Error("mongo ping", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		db := client.Database(cfg.MongoDB)
		userStore, err = vault.NewMongoUserStore(dialCtx, db, cfg.UsersCollection)
		if err != nil {
			logger.Error("user store init", "error", err)
			os.Exit(1)
		}
		metaStore = vault.NewMongoMetaStore(db, cfg.MetaCollection)
		sessionStore = session.NewMongoStore(db, cfg.SessionsCollection)
		attemptStore = throttle.NewMongoStore(db, cfg.AttemptsCollection)
		inviteStore = invite.NewMongoStore(db, cfg.InvitesCollection)
	} else {
		logger.Warn("no VAULT_MONGO_URI set, using in-memory stores")
		userStore = vault.NewMemoryUserStore()
		metaStore = vault.NewMemoryMetaStore()
		sessionStore = session.NewMemoryStore()
		attemptStore = throttle.NewMemoryStore()
		inviteStore = invite.NewMemoryStore()
	}

	vlt := vault.New(userStore, metaStore, vault.WithLogger(logger))
	lim := throttle.New(attemptStore,
		throttle.WithMaxAttempts(cfg.MaxLoginAttempts),
		throttle.WithLockout(cfg.LockoutWindow),
	)
	flow := invite.New(inviteStore, vlt,
		invite.WithTTL(cfg.InviteTTL),
		invite.WithLogger(logger),
	)
	mgr := session.NewManager(sessionStore, vlt, lim,
		session.WithTTL(cfg.SessionTTL),
		session.WithInvites(flow),
		session.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(cfg, mgr, vlt, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("vaultd listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
