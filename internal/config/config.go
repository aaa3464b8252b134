package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Invitation InvitationConfig
	WebSocket  WebSocketConfig
	RateLimit  RateLimitConfig
	Email      EmailConfig
	Push       PushConfig
	Reminder   ReminderConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	BaseURL        string
	AllowedOrigins []string
	// TrustProxy honours X-Forwarded-For and friends. Only enable it when a
	// reverse proxy overwrites those headers.
	TrustProxy     bool
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Path string
}

// RedisConfig is optional. An empty Addr keeps presence and the token
// denylist in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type InvitationConfig struct {
	Secret string
	TTL    time.Duration
}

type WebSocketConfig struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type EmailConfig struct {
	PostmarkToken string
	From          string
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

type ReminderConfig struct {
	Interval time.Duration
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080")
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DATABASE_PATH", "hearth.db")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ACCESS_TTL", "30m")
	v.SetDefault("JWT_REFRESH_TTL", "720h")
	v.SetDefault("INVITATION_SECRET", "change-me-in-production")
	v.SetDefault("INVITATION_TTL", "168h")
	v.SetDefault("WS_PING_INTERVAL", "25s")
	v.SetDefault("WS_PING_TIMEOUT", "20s")
	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("POSTMARK_TOKEN", "")
	v.SetDefault("EMAIL_FROM", "noreply@hearth.local")
	v.SetDefault("VAPID_PUBLIC_KEY", "")
	v.SetDefault("VAPID_PRIVATE_KEY", "")
	v.SetDefault("REMINDER_INTERVAL", "1m")

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			BaseURL:        v.GetString("BASE_URL"),
			AllowedOrigins: splitList(v.GetString("CORS_ORIGINS")),
			TrustProxy:     v.GetBool("TRUST_PROXY_HEADERS"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("DATABASE_PATH"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			AccessTTL:  v.GetDuration("JWT_ACCESS_TTL"),
			RefreshTTL: v.GetDuration("JWT_REFRESH_TTL"),
		},
		Invitation: InvitationConfig{
			Secret: v.GetString("INVITATION_SECRET"),
			TTL:    v.GetDuration("INVITATION_TTL"),
		},
		WebSocket: WebSocketConfig{
			PingInterval: v.GetDuration("WS_PING_INTERVAL"),
			PingTimeout:  v.GetDuration("WS_PING_TIMEOUT"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Email: EmailConfig{
			PostmarkToken: v.GetString("POSTMARK_TOKEN"),
			From:          v.GetString("EMAIL_FROM"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  v.GetString("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: v.GetString("VAPID_PRIVATE_KEY"),
		},
		Reminder: ReminderConfig{
			Interval: v.GetDuration("REMINDER_INTERVAL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Server.IsDevelopment() {
		if c.JWT.Secret == "change-me-in-production" {
			return fmt.Errorf("JWT_SECRET must be set outside development")
		}
		if c.Invitation.Secret == "change-me-in-production" {
			return fmt.Errorf("INVITATION_SECRET must be set outside development")
		}
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
