// Package provider opens streaming chat completions against hosted or local
// model services.
package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/provider/anthropic"
	"github.com/papercomputeco/chatterbox/pkg/provider/ollama"
	"github.com/papercomputeco/chatterbox/pkg/provider/openai"
)

// Provider opens one streaming completion per call.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Open sends req and returns the reply stream. Open fails with an error
	// matching llm.ErrProviderUnavailable when no stream could be established.
	Open(ctx context.Context, req *llm.ChatRequest) (llm.Stream, error)
}

// Kind selects a provider implementation.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindOllama    Kind = "ollama"
	KindAnthropic Kind = "anthropic"
)

// Kinds lists every supported provider kind.
var Kinds = []Kind{KindOpenAI, KindOllama, KindAnthropic}

// Config selects and configures a provider.
type Config struct {
	Kind    Kind
	BaseURL string
	APIKey  string

	// Timeout bounds a whole request, including the streamed body.
	Timeout time.Duration
}

// New builds the provider named by config.Kind.
func New(config Config, logger *zap.Logger) (Provider, error) {
	switch config.Kind {
	case KindOpenAI:
		return openai.New(openai.Config{
			BaseURL: config.BaseURL,
			APIKey:  config.APIKey,
			Timeout: config.Timeout,
		}, logger), nil
	case KindOllama:
		return ollama.New(ollama.Config{
			BaseURL: config.BaseURL,
			Timeout: config.Timeout,
		}, logger), nil
	case KindAnthropic:
		return anthropic.New(anthropic.Config{
			BaseURL: config.BaseURL,
			APIKey:  config.APIKey,
			Timeout: config.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Kind)
	}
}
