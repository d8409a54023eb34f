package server

import (
	"testing"
	"time"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"VAULT_ADDR", "VAULT_SESSION_TTL", "VAULT_INVITE_TTL",
		"VAULT_LOCKOUT_WINDOW", "VAULT_MAX_LOGIN_ATTEMPTS",
	} {
		t.Setenv(k, "")
	}
	cfg := ConfigFromEnv()
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.SessionTTL != 24*time.Hour || cfg.InviteTTL != 48*time.Hour {
		t.Fatalf("TTLs = %v / %v", cfg.SessionTTL, cfg.InviteTTL)
	}
	if cfg.MaxLoginAttempts != 5 || cfg.LockoutWindow != 15*time.Minute {
		t.Fatalf("throttle = %d / %v", cfg.MaxLoginAttempts, cfg.LockoutWindow)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("VAULT_ADDR", ":9999")
	t.Setenv("VAULT_SESSION_TTL", "1h")
	t.Setenv("VAULT_INVITE_TTL", "72h")
	t.Setenv("VAULT_LOCKOUT_WINDOW", "30m")
	t.Setenv("VAULT_MAX_LOGIN_ATTEMPTS", "3")

	cfg := ConfigFromEnv()
	if cfg.Addr != ":9999" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.InviteTTL != 72*time.Hour {
		t.Fatalf("InviteTTL = %v", cfg.InviteTTL)
	}
	if cfg.LockoutWindow != 30*time.Minute {
		t.Fatalf("LockoutWindow = %v", cfg.LockoutWindow)
	}
	if cfg.MaxLoginAttempts != 3 {
		t.Fatalf("MaxLoginAttempts = %d", cfg.MaxLoginAttempts)
	}
}
