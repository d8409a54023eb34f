package server

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	MongoURI string
	MongoDB  string

	UsersCollection    string
	SessionsCollection string
	AttemptsCollection string
	InvitesCollection  string
	MetaCollection     string

	SessionTTL       time.Duration
	InviteTTL        time.Duration
	MaxLoginAttempts int
	LockoutWindow    time.Duration
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.UsersCollection == "" {
		c.UsersCollection = "users"
	}
	if c.SessionsCollection == "" {
		c.SessionsCollection = "sessions"
	}
	if c.AttemptsCollection == "" {
		c.AttemptsCollection = "login_attempts"
	}
	if c.InvitesCollection == "" {
		c.InvitesCollection = "invites"
	}
	if c.MetaCollection == "" {
		c.MetaCollection = "vault_meta"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.InviteTTL <= 0 {
		c.InviteTTL = 48 * time.Hour
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = 5
	}
	if c.LockoutWindow <= 0 {
		c.LockoutWindow = 15 * time.Minute
	}
}

// ConfigFromEnv reads the daemon config from the environment. An empty
// VAULT_MONGO_URI selects the in-memory stores (development only).
func ConfigFromEnv() Config {
	cfg := Config{
		Addr:     os.Getenv("VAULT_ADDR"),
		MongoURI: os.Getenv("VAULT_MONGO_URI"),
		MongoDB:  os.Getenv("VAULT_MONGO_DB"),
	}
	if d, err := time.ParseDuration(os.Getenv("VAULT_SESSION_TTL")); err == nil {
		cfg.SessionTTL = d
	}
	if d, err := time.ParseDuration(os.Getenv("VAULT_INVITE_TTL")); err == nil {
		cfg.InviteTTL = d
	}
	if d, err := time.ParseDuration(os.Getenv("VAULT_LOCKOUT_WINDOW")); err == nil {
		cfg.LockoutWindow = d
	}
	if n, err := strconv.Atoi(os.Getenv("VAULT_MAX_LOGIN_ATTEMPTS")); err == nil {
		cfg.MaxLoginAttempts = n
	}
	cfg.setDefaults()
	return cfg
}
