package config

import (
	"errors"
	"strings"
	"time"

	libconfig "roamgate/libs/config"
)

// Protocol defaults. These are plain constants handed to the components that
// need them instead of process-wide mutable state.
const (
	DefaultRequestTimeout      = 30 * time.Second
	DefaultListenerWait        = time.Second
	DefaultReservationDuration = 15 * time.Minute
	DefaultStatusCacheTTL      = 24 * time.Hour
)

// Config defines the roamgate adapter configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"ROAMGATE_HTTP_PORT"`
	} `yaml:"http"`
	Partner struct {
		BaseURL        string        `yaml:"baseUrl" env:"PARTNER_BASE_URL"`
		RequestTimeout time.Duration `yaml:"requestTimeout" env:"PARTNER_REQUEST_TIMEOUT"`
		Retries        int           `yaml:"retries" env:"PARTNER_RETRIES"`
	} `yaml:"partner"`
	Database struct {
		DSN string `yaml:"dsn" env:"ROAMGATE_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ROAMGATE_REDIS_ADDR"`
		Password string `yaml:"password" env:"ROAMGATE_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"ROAMGATE_REDIS_DB"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string        `yaml:"jwtSecret" env:"ROAMGATE_JWT_SECRET"`
		TokenTTL  time.Duration `yaml:"tokenTtl" env:"ROAMGATE_TOKEN_TTL"`
		// Optional seed credential for the first partner.
		PartnerID     string `yaml:"partnerId" env:"ROAMGATE_PARTNER_ID"`
		PartnerAPIKey string `yaml:"partnerApiKey" env:"ROAMGATE_PARTNER_API_KEY"`
	} `yaml:"auth"`
	Stream struct {
		PingInterval time.Duration `yaml:"pingInterval" env:"ROAMGATE_STREAM_PING_INTERVAL"`
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"ROAMGATE_STREAM_WRITE_TIMEOUT"`
	} `yaml:"stream"`
}

// Load uses the shared config loader and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8090"
	cfg.Partner.RequestTimeout = DefaultRequestTimeout
	cfg.Auth.TokenTTL = time.Hour
	cfg.Stream.PingInterval = 30 * time.Second
	cfg.Stream.WriteTimeout = 10 * time.Second

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Partner.BaseURL) == "" {
		return nil, errors.New("config: partner base URL is required")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database DSN is required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: JWT secret is required")
	}

	return cfg, nil
}

// HTTPAddress returns the :port listen address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8090"
	}
	return ":" + port
}
