package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	ReadLimit  int64  `mapstructure:"read_limit"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	Signaling   SignalingConfig   `mapstructure:"signaling"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Invitations InvitationsConfig `mapstructure:"invitations"`
	Store       StoreConfig       `mapstructure:"store"`
	Relay       RelayConfig       `mapstructure:"relay"`
	RTC         RTCConfig         `mapstructure:"rtc"`
}

type SignalingConfig struct {
	RedeliveryDelay time.Duration `mapstructure:"redelivery_delay"`
	OfferTTL        time.Duration `mapstructure:"offer_ttl"`
	SendBuffer      int           `mapstructure:"send_buffer"`
}

type NegotiationConfig struct {
	AnswerTimeout time.Duration `mapstructure:"answer_timeout"`
}

type InvitationsConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	BaseURL    string        `mapstructure:"base_url"`
}

type StoreConfig struct {
	// Driver is "memory" or "badger".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type RelayConfig struct {
	AccountSID string        `mapstructure:"account_sid"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type RTCConfig struct {
	ICEServers      []string `mapstructure:"ice_servers"`
	IncludeLoopback bool     `mapstructure:"include_loopback"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("signaling.redelivery_delay", "1s")
	v.SetDefault("signaling.offer_ttl", "60s")
	v.SetDefault("signaling.send_buffer", 64)

	v.SetDefault("negotiation.answer_timeout", "30s")

	v.SetDefault("invitations.ttl", "24h")
	v.SetDefault("invitations.rate_limit", 20)
	v.SetDefault("invitations.rate_window", "1m")
	v.SetDefault("invitations.base_url", "http://localhost:8080")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "./data/invitations")

	v.SetDefault("relay.ttl", "1h")

	v.SetDefault("rtc.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("rtc.include_loopback", false)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Environment
// variables such as CALLROOM_SIGNALING_OFFER_TTL override the file.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("callroom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for badger", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if c.Signaling.RedeliveryDelay < 0 || c.Signaling.OfferTTL < 0 {
		return fmt.Errorf("%w: negative signaling durations", ErrInvalid)
	}
	if c.Negotiation.AnswerTimeout < 0 || c.Invitations.TTL < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
