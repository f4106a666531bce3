package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"console-terminal/internal/theme"
)

const (
	defaultHost               = "0.0.0.0"
	defaultPort               = 2222
	defaultHostKeyPath        = ".data/host_ed25519"
	defaultIdleTimeout        = 120 * time.Second
	defaultMaxSessions        = 32
	defaultRateLimitPerMinute = 30
	defaultGatewayAddr        = "127.0.0.1:8080"
	defaultShellCommand       = "/bin/sh"
	minimumRateLimit          = 1
	maximumConfiguredSessions = 1024
)

// Config captures startup settings for the console entrypoint.
type Config struct {
	Host               string
	Port               int
	HostKeyPath        string
	IdleTimeout        time.Duration
	MaxSessions        int
	RateLimitPerMinute int

	Echo         bool
	ThemeVariant theme.Variant
	EnableShell  bool
	ShellCommand string

	GatewayAddr string
}

// LoadFromEnv loads runtime configuration from environment variables.
func LoadFromEnv() (Config, error) {
	host, err := readRequiredOrDefault("CONSOLE_SSH_HOST", defaultHost)
	if err != nil {
		return Config{}, err
	}

	port, err := readInt("CONSOLE_SSH_PORT", defaultPort, 1, 65535)
	if err != nil {
		return Config{}, err
	}

	hostKeyPath, err := readRequiredOrDefault("CONSOLE_SSH_HOST_KEY_PATH", defaultHostKeyPath)
	if err != nil {
		return Config{}, err
	}
	cleanHostKeyPath := filepath.Clean(hostKeyPath)
	if cleanHostKeyPath == "." {
		return Config{}, fmt.Errorf("CONSOLE_SSH_HOST_KEY_PATH must not resolve to current directory")
	}

	idleTimeout, err := readDuration("CONSOLE_SSH_IDLE_TIMEOUT", defaultIdleTimeout)
	if err != nil {
		return Config{}, err
	}

	maxSessions, err := readInt("CONSOLE_MAX_SESSIONS", defaultMaxSessions, 1, maximumConfiguredSessions)
	if err != nil {
		return Config{}, err
	}

	rateLimit, err := readInt("CONSOLE_RATE_LIMIT_PER_MINUTE", defaultRateLimitPerMinute, minimumRateLimit, 10000)
	if err != nil {
		return Config{}, err
	}

	echo, err := readBool("CONSOLE_ECHO", true)
	if err != nil {
		return Config{}, err
	}

	variant, err := readThemeVariant("CONSOLE_THEME", theme.VariantGreen)
	if err != nil {
		return Config{}, err
	}

	enableShell, err := readBool("CONSOLE_ENABLE_SHELL", false)
	if err != nil {
		return Config{}, err
	}

	shellCommand, err := readRequiredOrDefault("CONSOLE_SHELL_COMMAND", defaultShellCommand)
	if err != nil {
		return Config{}, err
	}

	gatewayAddr, err := readRequiredOrDefault("CONSOLE_GATEWAY_ADDR", defaultGatewayAddr)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Host:               host,
		Port:               port,
		HostKeyPath:        cleanHostKeyPath,
		IdleTimeout:        idleTimeout,
		MaxSessions:        maxSessions,
		RateLimitPerMinute: rateLimit,
		Echo:               echo,
		ThemeVariant:       variant,
		EnableShell:        enableShell,
		ShellCommand:       shellCommand,
		GatewayAddr:        gatewayAddr,
	}, nil
}

func readRequiredOrDefault(key, fallback string) (string, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	if raw == "" {
		return "", fmt.Errorf("%s must not be empty", key)
	}

	return raw, nil
}

func readInt(key string, fallback, min, max int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}

	return parsed, nil
}

func readDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}

func readBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}

	return parsed, nil
}

func readThemeVariant(key string, fallback theme.Variant) (theme.Variant, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	for _, v := range theme.Variants() {
		if theme.Variant(raw) == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s must be one of %v", key, theme.Variants())
}
