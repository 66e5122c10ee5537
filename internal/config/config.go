package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var validate = validator.New()

type Config struct {
	Server ServerConfig
	Hub    HubConfig
	Redis  RedisConfig
	Client ClientConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host           string        `validate:"required"`
	Port           string        `validate:"required,numeric"`
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	IdleTimeout    time.Duration `validate:"gt=0"`
	AllowedOrigins []string      `validate:"min=1,dive,required"`
}

type HubConfig struct {
	SendBufferSize int   `validate:"gt=0"`
	MaxFrameBytes  int64 `validate:"gte=4096"`
}

// RedisConfig is optional. An empty URL runs the server without Redis.
type RedisConfig struct {
	URL          string `validate:"omitempty,url"`
	KeyPrefix    string `validate:"required"`
	MaxRetries   int    `validate:"gte=0"`
	PoolSize     int    `validate:"gt=0"`
	MinIdleConns int    `validate:"gte=0"`
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int           `validate:"gte=0"`
	RateWindow   time.Duration `validate:"gt=0"`
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

type ClientConfig struct {
	ServerURL            string        `validate:"required,url"`
	Username             string        `validate:"max=20"`
	ReconnectionAttempts int           `validate:"gt=0"`
	ReconnectionDelay    time.Duration `validate:"gt=0"`
	ReconnectionDelayMax time.Duration `validate:"gtefield=ReconnectionDelay"`
	ConnectRetries       int           `validate:"gt=0"`
	FallbackEnabled      bool
	FallbackInterval     time.Duration `validate:"gt=0"`
	FallbackMaxRetries   int           `validate:"gt=0"`
	DialTimeout          time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// Addr is the listen address of the HTTP server
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "3000")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("ALLOWED_ORIGINS", "*")

	v.SetDefault("SEND_BUFFER_SIZE", 256)
	v.SetDefault("MAX_FRAME_BYTES", 1<<20)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_KEY_PREFIX", "chat")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("WS_RATE_LIMIT", 20)
	v.SetDefault("WS_RATE_WINDOW", time.Minute)

	v.SetDefault("CHAT_SERVER_URL", "ws://localhost:3000/ws")
	v.SetDefault("CHAT_USERNAME", "")
	v.SetDefault("RECONNECTION_ATTEMPTS", 5)
	v.SetDefault("RECONNECTION_DELAY", time.Second)
	v.SetDefault("RECONNECTION_DELAY_MAX", 5*time.Second)
	v.SetDefault("CONNECT_RETRIES", 3)
	v.SetDefault("FALLBACK_ENABLED", true)
	v.SetDefault("FALLBACK_INTERVAL", 3*time.Second)
	v.SetDefault("FALLBACK_MAX_RETRIES", 5)
	v.SetDefault("DIAL_TIMEOUT", 20*time.Second)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// LoadConfig reads the configuration from the environment, after loading a
// .env file from the working directory when there is one.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetString("SERVER_PORT"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:    v.GetDuration("SERVER_IDLE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		Hub: HubConfig{
			SendBufferSize: v.GetInt("SEND_BUFFER_SIZE"),
			MaxFrameBytes:  v.GetInt64("MAX_FRAME_BYTES"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			KeyPrefix:    v.GetString("REDIS_KEY_PREFIX"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			RateLimit:    v.GetInt("WS_RATE_LIMIT"),
			RateWindow:   v.GetDuration("WS_RATE_WINDOW"),
		},
		Client: ClientConfig{
			ServerURL:            v.GetString("CHAT_SERVER_URL"),
			Username:             v.GetString("CHAT_USERNAME"),
			ReconnectionAttempts: v.GetInt("RECONNECTION_ATTEMPTS"),
			ReconnectionDelay:    v.GetDuration("RECONNECTION_DELAY"),
			ReconnectionDelayMax: v.GetDuration("RECONNECTION_DELAY_MAX"),
			ConnectRetries:       v.GetInt("CONNECT_RETRIES"),
			FallbackEnabled:      v.GetBool("FALLBACK_ENABLED"),
			FallbackInterval:     v.GetDuration("FALLBACK_INTERVAL"),
			FallbackMaxRetries:   v.GetInt("FALLBACK_MAX_RETRIES"),
			DialTimeout:          v.GetDuration("DIAL_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
