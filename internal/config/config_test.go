package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_DefaultsWithMemoryStore(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "memory")
	setEnvWithCleanup(t, "JWT_SECRET", "test-secret")
	unsetEnvWithCleanup(t, "DATABASE_URL")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "SCHEDULED_PAYMENTS_JOB_SCHEDULE")
	unsetEnvWithCleanup(t, "TRANSFER_MAX_ATTEMPTS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("expected memory store driver, got %q", cfg.StoreDriver)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.ScheduledPaymentsJobSchedule != "@every 1m" {
		t.Fatalf("unexpected scheduled job schedule %q", cfg.ScheduledPaymentsJobSchedule)
	}
	if cfg.TransferMaxAttempts != 5 {
		t.Fatalf("expected 5 transfer attempts, got %d", cfg.TransferMaxAttempts)
	}
	if cfg.NotificationExchange != "bank.events" {
		t.Fatalf("unexpected notification exchange %q", cfg.NotificationExchange)
	}
	if cfg.ClaimLease() != 5*time.Minute {
		t.Fatalf("expected 5m claim lease, got %s", cfg.ClaimLease())
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "memory")
	setEnvWithCleanup(t, "JWT_SECRET", "test-secret")
	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_PostgresRequiresDatabaseURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "postgres")
	unsetEnvWithCleanup(t, "DATABASE_URL")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected an error when DATABASE_URL is missing")
	}
}

func TestLoadConfig_RejectsUnknownStoreDriver(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "sqlite")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected an error for an unsupported store driver")
	}
}

func TestLoadConfig_NormalisesInvalidNumbers(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "memory")
	setEnvWithCleanup(t, "JWT_SECRET", "test-secret")
	setEnvWithCleanup(t, "TRANSFER_MAX_ATTEMPTS", "0")
	setEnvWithCleanup(t, "CLAIM_BATCH_SIZE", "-3")
	setEnvWithCleanup(t, "JOB_TIMEOUT_SECONDS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferMaxAttempts != 5 || cfg.ClaimBatchSize != 100 || cfg.JobTimeout() != 50*time.Second {
		t.Fatalf("expected defaults to be restored, got %+v", cfg)
	}
}

func TestLoadConfig_RequiresJWTSecret(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "memory")
	setEnvWithCleanup(t, "JWT_SECRET", "   ")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected an error when JWT_SECRET is blank")
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
