package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearDatabaseEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_DRIVER", "DATABASE_URL", "DATABASE_NAME", "SETTINGS_FILE"} {
		t.Setenv(key, "")
	}
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoadConfig_RequiresDatabaseURL(t *testing.T) {
	clearDatabaseEnv(t)

	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error without a database URL")
	}
	if !strings.Contains(err.Error(), "database URL is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_RequiresDatabaseName(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_URL", "host=localhost user=app")

	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error without a database name")
	}
	if !strings.Contains(err.Error(), "database name is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_URL", "host=localhost")
	t.Setenv("DATABASE_NAME", "tasks")
	t.Setenv("DATABASE_DRIVER", "oracle")

	if _, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadConfig_EnvironmentValues(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:tasks.db")
	t.Setenv("DATABASE_NAME", "tasks")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("DB_RETRY_BACKOFF", "250ms")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")

	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 50 {
		t.Errorf("max open conns = %d, want 50", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.RetryBackoff != 250*time.Millisecond {
		t.Errorf("retry backoff = %s, want 250ms", cfg.Database.RetryBackoff)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q, want redis.internal:6380", cfg.Redis.Addr)
	}
}

func TestLoadConfig_FileFallback(t *testing.T) {
	clearDatabaseEnv(t)
	path := writeSettings(t, `{
		"database": {"driver": "sqlite", "url": "file:from-file.db", "name": "fromfile"},
		"redis": {"addr": "file-redis:6379", "db": 2},
		"seed": {"demo_email": "file-demo@example.com"}
	}`)

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.URL != "file:from-file.db" {
		t.Errorf("url = %q, want file value", cfg.Database.URL)
	}
	if cfg.Database.Name != "fromfile" {
		t.Errorf("name = %q, want fromfile", cfg.Database.Name)
	}
	if cfg.Redis.Addr != "file-redis:6379" {
		t.Errorf("redis addr = %q, want file value", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("redis db = %d, want 2", cfg.Redis.DB)
	}
	if cfg.Seed.DemoEmail != "file-demo@example.com" {
		t.Errorf("demo email = %q, want file value", cfg.Seed.DemoEmail)
	}
}

func TestLoadConfig_EnvWinsOverFile(t *testing.T) {
	clearDatabaseEnv(t)
	path := writeSettings(t, `{
		"database": {"driver": "sqlite", "url": "file:from-file.db", "name": "fromfile"}
	}`)
	t.Setenv("DATABASE_URL", "file:from-env.db")

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "file:from-env.db" {
		t.Errorf("url = %q, environment must win over the file", cfg.Database.URL)
	}
	if cfg.Database.Name != "fromfile" {
		t.Errorf("name = %q, untouched file values must still apply", cfg.Database.Name)
	}
}

func TestLoadConfig_InvalidSettingsJSON(t *testing.T) {
	clearDatabaseEnv(t)
	path := writeSettings(t, `{not json`)

	if _, err := LoadConfigFrom(path); err == nil {
		t.Fatal("expected error for malformed settings file")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearDatabaseEnv(t)
	t.Setenv("DATABASE_URL", "host=localhost")
	t.Setenv("DATABASE_NAME", "tasks")

	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("default driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.MaxRetries != 3 {
		t.Errorf("default max retries = %d, want 3", cfg.Database.MaxRetries)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("default redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Seed.DemoEmail != "demo@example.com" {
		t.Errorf("default demo email = %q", cfg.Seed.DemoEmail)
	}
}
