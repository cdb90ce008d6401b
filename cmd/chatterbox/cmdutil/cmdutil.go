// Package cmdutil holds the flags and wiring shared by the chatterbox
// subcommands.
package cmdutil

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/chat"
	"github.com/papercomputeco/chatterbox/pkg/config"
	"github.com/papercomputeco/chatterbox/pkg/logger"
	"github.com/papercomputeco/chatterbox/pkg/provider"
	"github.com/papercomputeco/chatterbox/pkg/responder"
)

// Globals are the persistent root flags.
type Globals struct {
	ConfigPath string
	EnvFile    string
	Debug      bool

	Provider string
	Model    string
	BaseURL  string
}

// Register binds the flags to cmd's persistent flag set.
func (g *Globals) Register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.ConfigPath, "config", "c", "", "Path to a TOML config file")
	flags.StringVar(&g.EnvFile, "env-file", ".env", "Path to an env file loaded before reading the environment")
	flags.BoolVar(&g.Debug, "debug", false, "Enable debug logging")
	flags.StringVarP(&g.Provider, "provider", "p", "", "Model provider (openai, ollama, anthropic)")
	flags.StringVarP(&g.Model, "model", "m", "", "Model name")
	flags.StringVar(&g.BaseURL, "base-url", "", "Provider base URL")
}

// Config loads the configuration with the flags applied last.
func (g *Globals) Config(extra ...config.Override) (*config.Config, error) {
	overrides := append([]config.Override{g.override}, extra...)
	return config.Load(g.ConfigPath, g.EnvFile, overrides...)
}

func (g *Globals) override(cfg *config.Config) {
	if g.Provider != "" {
		cfg.Provider = provider.Kind(g.Provider)
	}
	if g.Model != "" {
		cfg.Model = g.Model
	}
	if g.BaseURL != "" {
		cfg.BaseURL = g.BaseURL
	}
	if g.Debug {
		cfg.Debug = true
	}
}

// Setup loads the configuration and builds the logger and chat loop for it.
// Callers sync the returned logger.
func (g *Globals) Setup(extra ...config.Override) (*config.Config, *zap.Logger, *chat.Loop, error) {
	cfg, err := g.Config(extra...)
	if err != nil {
		return nil, nil, nil, err
	}

	log := logger.NewLogger(cfg.Debug)
	loop, err := NewLoop(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, loop, nil
}

// NewLoop wires provider, responder and chat loop for cfg.
func NewLoop(cfg *config.Config, log *zap.Logger) (*chat.Loop, error) {
	p, err := provider.New(cfg.ProviderConfig(), log)
	if err != nil {
		return nil, err
	}

	if env := cfg.CredentialEnv(); env != "" && cfg.APIKey == "" {
		log.Warn("no API key configured, requests will be rejected",
			zap.String("provider", p.Name()),
			zap.String("env", env),
		)
	}

	log.Debug("chat loop ready",
		zap.String("provider", p.Name()),
		zap.String("model", cfg.Model),
		zap.String("base_url", cfg.BaseURL),
		zap.String("directive_preview", logger.Truncate(cfg.Directive, 40)),
	)

	return chat.NewLoop(responder.New(p, cfg.ResponderConfig(), log), log), nil
}
