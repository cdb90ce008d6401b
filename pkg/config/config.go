// Package config loads chatterbox settings from defaults, an optional TOML
// file, a .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/provider"
	"github.com/papercomputeco/chatterbox/pkg/provider/ollama"
	"github.com/papercomputeco/chatterbox/pkg/provider/openai"
	"github.com/papercomputeco/chatterbox/pkg/responder"
)

// DefaultDirective is the system instruction sent ahead of every conversation.
const DefaultDirective = `
- Speak only French
- be crazy
- use emojis
`

// Environment variable names.
const (
	EnvGroqAPIKey      = "GROQ_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvModel           = "MODEL"
	EnvProvider        = "CHATTERBOX_PROVIDER"
)

var defaultModels = map[provider.Kind]string{
	provider.KindOpenAI:    "llama-3.3-70b-versatile",
	provider.KindOllama:    "llama3.2",
	provider.KindAnthropic: "claude-3-5-haiku-latest",
}

var defaultBaseURLs = map[provider.Kind]string{
	provider.KindOpenAI: openai.DefaultBaseURL,
	provider.KindOllama: ollama.DefaultBaseURL,
}

// Duration decodes TOML strings such as "90s" or "1h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds every runtime setting.
type Config struct {
	// Listen is the web UI address.
	Listen string `toml:"listen"`

	Provider provider.Kind `toml:"provider"`
	BaseURL  string        `toml:"base_url"`
	Model    string        `toml:"model"`

	// APIKey is only ever read from the environment.
	APIKey string `toml:"-"`

	Directive   string   `toml:"directive"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature *float64 `toml:"temperature"`

	SessionTTL     Duration `toml:"session_ttl"`
	RequestTimeout Duration `toml:"request_timeout"`

	Debug bool `toml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		Provider:       provider.KindOpenAI,
		Directive:      DefaultDirective,
		SessionTTL:     Duration{time.Hour},
		RequestTimeout: Duration{5 * time.Minute},
	}
}

// Override adjusts a configuration after the environment was applied, such
// as from command-line flags.
type Override func(*Config)

// Load reads path (when non-empty) over the defaults, then applies the
// environment and finally overrides. envFile is loaded into the environment
// first and defaults to ".env"; a missing env file is not an error.
func Load(path, envFile string, overrides ...Override) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load env file %s: %w", envFile, err)
	}

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("could not decode config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	for _, override := range overrides {
		override(cfg)
	}
	cfg.LookupCredential(os.LookupEnv)
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the provider and model from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvProvider); ok && v != "" {
		c.Provider = provider.Kind(v)
	}
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model = v
	}
}

// CredentialEnv returns the variable holding the credential for the selected
// provider, or "" when the provider needs none.
func (c *Config) CredentialEnv() string {
	switch c.Provider {
	case provider.KindOpenAI:
		return EnvGroqAPIKey
	case provider.KindAnthropic:
		return EnvAnthropicAPIKey
	default:
		return ""
	}
}

// LookupCredential reads the credential for the selected provider. Its absence
// is left for the provider to report.
func (c *Config) LookupCredential(lookup func(string) (string, bool)) {
	if env := c.CredentialEnv(); env != "" {
		c.APIKey, _ = lookup(env)
	}
}

// Resolve fills provider-dependent defaults left empty.
func (c *Config) Resolve() {
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURLs[c.Provider]
	}
	if c.Directive == "" {
		c.Directive = DefaultDirective
	}
}

// Validate checks structural settings. The credential is not checked.
func (c *Config) Validate() error {
	if !slices.Contains(provider.Kinds, c.Provider) {
		return fmt.Errorf("unknown provider %q (want one of %v)", c.Provider, provider.Kinds)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be within [0, 2], got %g", *c.Temperature)
	}
	if c.SessionTTL.Duration < 0 {
		return fmt.Errorf("session_ttl must not be negative")
	}
	return nil
}

// ProviderConfig returns the settings the provider factory needs.
func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		Kind:    c.Provider,
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Timeout: c.RequestTimeout.Duration,
	}
}

// ResponderConfig returns the request settings for the responder.
func (c *Config) ResponderConfig() responder.Config {
	rc := responder.Config{
		Directive: c.Directive,
		Model:     c.Model,
	}
	if c.Temperature != nil || c.MaxTokens > 0 {
		rc.Options = &llm.Options{Temperature: c.Temperature}
		if c.MaxTokens > 0 {
			maxTokens := c.MaxTokens
			rc.Options.MaxTokens = &maxTokens
		}
	}
	return rc
}
