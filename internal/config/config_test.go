package config

import (
	"testing"
	"time"

	"console-terminal/internal/theme"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() unexpected error: %v", err)
	}

	if cfg.Host != "0.0.0.0" || cfg.Port != 2222 {
		t.Fatalf("default address = %s:%d, want 0.0.0.0:2222", cfg.Host, cfg.Port)
	}
	if cfg.IdleTimeout != 120*time.Second {
		t.Fatalf("default idle timeout = %s, want 120s", cfg.IdleTimeout)
	}
	if cfg.MaxSessions != 32 || cfg.RateLimitPerMinute != 30 {
		t.Fatalf("default limits = %d/%d, want 32/30", cfg.MaxSessions, cfg.RateLimitPerMinute)
	}
	if !cfg.Echo {
		t.Fatal("echo must default to on")
	}
	if cfg.ThemeVariant != theme.VariantGreen {
		t.Fatalf("default theme = %q, want green", cfg.ThemeVariant)
	}
	if cfg.EnableShell {
		t.Fatal("shell pass-through must default to off")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CONSOLE_SSH_HOST", "127.0.0.1")
	t.Setenv("CONSOLE_SSH_PORT", "2200")
	t.Setenv("CONSOLE_ECHO", "false")
	t.Setenv("CONSOLE_THEME", "amber")
	t.Setenv("CONSOLE_ENABLE_SHELL", "true")
	t.Setenv("CONSOLE_SHELL_COMMAND", "/bin/bash")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() unexpected error: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 2200 {
		t.Fatalf("address = %s:%d, want 127.0.0.1:2200", cfg.Host, cfg.Port)
	}
	if cfg.Echo {
		t.Fatal("CONSOLE_ECHO=false not honored")
	}
	if cfg.ThemeVariant != theme.VariantAmber {
		t.Fatalf("theme = %q, want amber", cfg.ThemeVariant)
	}
	if !cfg.EnableShell || cfg.ShellCommand != "/bin/bash" {
		t.Fatalf("shell settings = %v %q", cfg.EnableShell, cfg.ShellCommand)
	}
}

func TestLoadFromEnvInvalidPort(t *testing.T) {
	t.Setenv("CONSOLE_SSH_PORT", "not-a-number")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for invalid port")
	}
}

func TestLoadFromEnvPortOutOfRange(t *testing.T) {
	t.Setenv("CONSOLE_SSH_PORT", "70000")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for out-of-range port")
	}
}

func TestLoadFromEnvEmptyHost(t *testing.T) {
	t.Setenv("CONSOLE_SSH_HOST", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for empty host")
	}
}

func TestLoadFromEnvInvalidHostKeyPath(t *testing.T) {
	t.Setenv("CONSOLE_SSH_HOST_KEY_PATH", ".")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for host key path resolving to current directory")
	}
}

func TestLoadFromEnvInvalidIdleTimeout(t *testing.T) {
	t.Setenv("CONSOLE_SSH_IDLE_TIMEOUT", "not-duration")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for invalid duration")
	}
}

func TestLoadFromEnvInvalidMaxSessions(t *testing.T) {
	t.Setenv("CONSOLE_MAX_SESSIONS", "0")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for invalid max sessions")
	}
}

func TestLoadFromEnvInvalidRateLimit(t *testing.T) {
	t.Setenv("CONSOLE_RATE_LIMIT_PER_MINUTE", "0")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for invalid rate limit")
	}
}

func TestLoadFromEnvInvalidEcho(t *testing.T) {
	t.Setenv("CONSOLE_ECHO", "sometimes")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for invalid echo boolean")
	}
}

func TestLoadFromEnvUnknownTheme(t *testing.T) {
	t.Setenv("CONSOLE_THEME", "sepia")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() expected error for unknown theme variant")
	}
}
