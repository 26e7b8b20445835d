package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const DefaultTypingTimeout = 3 * time.Second

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	LogLevel       string
	TypingTimeout  time.Duration
	RunMigrations  bool
	Redis          RedisConfig
}

// RedisConfig configures the optional cross-instance bridge. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type Options struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     string
	AllowedOrigins []string
	LogLevel       string
	TypingTimeout  time.Duration
	RunMigrations  bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("decoded key is empty")
	}
	return key, nil
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if opts.RedisDB < 0 {
		return nil, fmt.Errorf("redis db cannot be negative")
	}

	signingKey, err := decodeSigningSecret(opts.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	typingTimeout := opts.TypingTimeout
	if typingTimeout <= 0 {
		typingTimeout = DefaultTypingTimeout
	}

	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	prefix := opts.RedisPrefix
	if prefix == "" {
		prefix = "livechat:"
	}

	return &Config{
		DatabaseDSN:    opts.DatabaseDSN,
		ServerAddr:     opts.ServerAddr,
		SigningKey:     signingKey,
		AllowedOrigins: opts.AllowedOrigins,
		LogLevel:       logLevel,
		TypingTimeout:  typingTimeout,
		RunMigrations:  opts.RunMigrations,
		Redis: RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   prefix,
		},
	}, nil
}
