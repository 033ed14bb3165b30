package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "APPROVAL_CEILING_FACTOR")
	unsetEnvWithCleanup(t, "APPROVAL_CEILING_PERCENT")
	unsetEnvWithCleanup(t, "LOCK_TIMEOUT_MS")
	unsetEnvWithCleanup(t, "CODE_SUBMIT_RATE_LIMIT_PER_MINUTE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.ClaimEventExchange != "claim_events" {
		t.Fatalf("expected default ClaimEventExchange claim_events, got %q", cfg.ClaimEventExchange)
	}
	if cfg.ApprovalCeilingFactor != 1.0 {
		t.Fatalf("expected default ApprovalCeilingFactor 1.0, got %f", cfg.ApprovalCeilingFactor)
	}
	if cfg.LockTimeoutMs != 3000 {
		t.Fatalf("expected default LockTimeoutMs 3000, got %d", cfg.LockTimeoutMs)
	}
	if cfg.CodeSubmitRateLimitPerMinute != 30 {
		t.Fatalf("expected default CodeSubmitRateLimitPerMinute 30, got %d", cfg.CodeSubmitRateLimitPerMinute)
	}
}

func TestLoadConfig_ApprovalCeilingPercentAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "APPROVAL_CEILING_FACTOR")
	setEnvWithCleanup(t, "APPROVAL_CEILING_PERCENT", "120")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ApprovalCeilingFactor != 1.2 {
		t.Fatalf("expected ApprovalCeilingFactor from percent alias to be 1.2, got %f", cfg.ApprovalCeilingFactor)
	}
}

func TestLoadConfig_NonPositiveCeilingCoercedToOne(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "APPROVAL_CEILING_PERCENT")
	setEnvWithCleanup(t, "APPROVAL_CEILING_FACTOR", "-2")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ApprovalCeilingFactor != 1.0 {
		t.Fatalf("expected negative ceiling to coerce to 1.0, got %f", cfg.ApprovalCeilingFactor)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9091")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9091" {
		t.Fatalf("expected PORT to override ServerPort, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
