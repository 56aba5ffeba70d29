package config

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"

	"modelgate/internal/auth"
	"modelgate/internal/provider"
)

// Config is the process configuration. Environment variables provide the
// defaults; flags override them.
type Config struct {
	Host        string   `env:"MODELGATE_HOST" envDefault:"127.0.0.1"`
	Port        int      `env:"MODELGATE_PORT" envDefault:"8765"`
	Token       string   `env:"MODELGATE_TOKEN"`
	AllowNoAuth bool     `env:"MODELGATE_NO_AUTH" envDefault:"false"`
	CORSOrigins []string `env:"MODELGATE_CORS_ORIGINS"`

	Model            string `env:"MODELGATE_MODEL" envDefault:"gpt-5"`
	ProviderBaseURL  string `env:"MODELGATE_PROVIDER_URL" envDefault:"https://api.openai.com"`
	ProviderWireAPI  string `env:"MODELGATE_PROVIDER_WIRE_API" envDefault:"responses"`
	UpstreamAuthMode string `env:"MODELGATE_UPSTREAM_AUTH" envDefault:"apikey"`
	APIKey           string `env:"MODELGATE_API_KEY"`
	ChatGPTToken     string `env:"MODELGATE_CHATGPT_TOKEN"`
	ChatGPTAccountID string `env:"MODELGATE_CHATGPT_ACCOUNT_ID"`
	Originator       string `env:"MODELGATE_ORIGINATOR" envDefault:"modelgate"`
	BaseInstructions string `env:"MODELGATE_BASE_INSTRUCTIONS"`

	RequestTimeout time.Duration `env:"MODELGATE_REQUEST_TIMEOUT" envDefault:"120s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the environment, applies flag overrides and validates.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host interface to bind")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "Static bearer token protecting the local API")
	flag.BoolVar(&cfg.AllowNoAuth, "no-auth", cfg.AllowNoAuth, "Disable auth; localhost binds only")
	flag.Func("cors-origin", "Allowed CORS origin (repeatable, \"*\" for any)", func(v string) error {
		cfg.CORSOrigins = append(cfg.CORSOrigins, v)
		return nil
	})
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Model id announced by /v1/models and used as default")
	flag.StringVar(&cfg.ProviderBaseURL, "provider-url", cfg.ProviderBaseURL, "Upstream provider base URL")
	flag.StringVar(&cfg.ProviderWireAPI, "wire-api", cfg.ProviderWireAPI, "Upstream wire protocol: chat or responses")
	flag.StringVar(&cfg.UpstreamAuthMode, "upstream-auth", cfg.UpstreamAuthMode, "Upstream auth mode: none, apikey or chatgpt")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Non-streaming upstream round-trip timeout")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enum fields and refuses the auth bypass on
// non-loopback binds.
func (c *Config) Validate() error {
	if _, err := provider.ParseWireAPI(c.ProviderWireAPI); err != nil {
		return err
	}
	if _, err := auth.ParseMode(c.UpstreamAuthMode); err != nil {
		return err
	}
	if c.AllowNoAuth && !isLoopback(c.Host) {
		return fmt.Errorf("--no-auth is only allowed when binding to localhost")
	}
	return nil
}

// ListenAddr is the host:port bind address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WireAPI is the validated upstream wire kind. Fixed after load.
func (c *Config) WireAPI() provider.WireAPI {
	w, _ := provider.ParseWireAPI(c.ProviderWireAPI)
	return w
}

// Credentials resolves the upstream credential context once; it is
// shared read-only across requests.
func (c *Config) Credentials() auth.Credentials {
	mode, _ := auth.ParseMode(c.UpstreamAuthMode)
	switch mode {
	case auth.ModeChatGPT:
		return auth.Credentials{Mode: mode, Token: c.ChatGPTToken, AccountID: c.ChatGPTAccountID}
	case auth.ModeAPIKey:
		return auth.Credentials{Mode: mode, Token: c.APIKey}
	default:
		return auth.Credentials{Mode: auth.ModeNone}
	}
}

func isLoopback(host string) bool {
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}
