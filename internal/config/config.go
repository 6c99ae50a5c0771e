package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codewandler/rtrelay/events"
	"gopkg.in/yaml.v3"
)

// Config aggregates everything the gateway needs at startup.
type Config struct {
	Server   ServerConfig
	Realtime RealtimeConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Realtime: realtime, Auth: auth, Gateway: gateway}, nil
}

type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	if addr := strings.TrimSpace(os.Getenv("ADDR")); addr != "" {
		return ServerConfig{Addr: addr}, nil
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	// ":8080" and "127.0.0.1:8080" are taken as-is
	if strings.Contains(port, ":") {
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RealtimeConfig describes the provider leg and the session configuration
// injected into every relayed session.
type RealtimeConfig struct {
	APIKey  string
	Model   string
	URL     string
	Session events.SessionUpdate
}

func (c RealtimeConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	cfg := RealtimeConfig{
		APIKey:  getFirstEnv("OPENAI_API_KEY", "OPENAI_KEY"),
		Model:   strings.TrimSpace(os.Getenv("REALTIME_MODEL")),
		URL:     strings.TrimSpace(os.Getenv("REALTIME_URL")),
		Session: events.DefaultSessionUpdate(),
	}

	if path := strings.TrimSpace(os.Getenv("REALTIME_SESSION_FILE")); path != "" {
		session, err := LoadSessionFile(path)
		if err != nil {
			return RealtimeConfig{}, err
		}
		cfg.Session = session
	}

	if voice := strings.TrimSpace(os.Getenv("REALTIME_VOICE")); voice != "" {
		cfg.Session.Voice = voice
	}
	if instructions := strings.TrimSpace(os.Getenv("REALTIME_INSTRUCTIONS")); instructions != "" {
		cfg.Session.Instructions = instructions
	}

	return cfg, nil
}

// LoadSessionFile reads a YAML session configuration. Fields missing from
// the file keep their default values.
func LoadSessionFile(path string) (events.SessionUpdate, error) {
	session := events.DefaultSessionUpdate()

	data, err := os.ReadFile(path)
	if err != nil {
		return session, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, &session); err != nil {
		return session, fmt.Errorf("parse session file %s: %w", path, err)
	}
	return session, nil
}

type AuthConfig struct {
	Secret   []byte
	Audience string
}

func loadAuthConfig() (AuthConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return AuthConfig{}, fmt.Errorf("JWT_SECRET is required")
	}
	return AuthConfig{
		Secret:   []byte(secret),
		Audience: strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
	}, nil
}

// GatewayConfig holds the limits applied to client connections.
type GatewayConfig struct {
	AcceptRPS       float64
	AcceptBurst     int
	MaxMessageBytes int64
	AllowedOrigins  []string
	ShutdownGrace   time.Duration
}

func loadGatewayConfig() (GatewayConfig, error) {
	cfg := GatewayConfig{
		AcceptBurst:     10,
		MaxMessageBytes: 1 << 20,
		ShutdownGrace:   10 * time.Second,
	}

	var err error
	if cfg.AcceptRPS, err = parseFloatEnv("GATEWAY_ACCEPT_RPS", 0); err != nil {
		return GatewayConfig{}, err
	}
	if cfg.AcceptBurst, err = parseIntEnv("GATEWAY_ACCEPT_BURST", cfg.AcceptBurst); err != nil {
		return GatewayConfig{}, err
	}
	maxBytes, err := parseIntEnv("GATEWAY_MAX_MESSAGE_BYTES", int(cfg.MaxMessageBytes))
	if err != nil {
		return GatewayConfig{}, err
	}
	cfg.MaxMessageBytes = int64(maxBytes)
	if cfg.ShutdownGrace, err = parseDurationEnv("GATEWAY_SHUTDOWN_GRACE", cfg.ShutdownGrace); err != nil {
		return GatewayConfig{}, err
	}

	for _, origin := range strings.Split(os.Getenv("GATEWAY_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	return cfg, nil
}

func getFirstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}
