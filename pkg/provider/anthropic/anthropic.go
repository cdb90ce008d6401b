// Package anthropic streams replies from the Anthropic Messages API using the
// official SDK.
package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

const (
	name = "anthropic"

	// defaultMaxTokens is used when the request sets no limit; the Messages API
	// requires one.
	defaultMaxTokens = 1024
)

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client opens streaming messages.
type Client struct {
	client anthropic.Client
	logger *zap.Logger
}

// New creates a client. The SDK's automatic retries are disabled; a failed
// stream is terminal.
func New(config Config, logger *zap.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client: anthropic.NewClient(opts...),
		logger: logger,
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string {
	return name
}

// Open implements provider.Provider. The first event is read eagerly so that
// connection and credential failures surface here rather than mid-stream.
func (c *Client) Open(ctx context.Context, req *llm.ChatRequest) (llm.Stream, error) {
	params := messageParams(req)

	c.logger.Debug("opening message stream",
		zap.String("model", req.Model),
		zap.Int("message_count", len(params.Messages)),
	)

	s := c.client.Messages.NewStreaming(ctx, params)
	if !s.Next() {
		err := s.Err()
		s.Close()
		if err == nil {
			return nil, llm.Failed(name, "empty stream", io.ErrUnexpectedEOF)
		}

		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("anthropic returned error",
				zap.Int("status", apiErr.StatusCode),
				zap.Error(err),
			)
			return nil, llm.StatusError(name, apiErr.StatusCode, apiErr.Error())
		}
		return nil, llm.Unavailable(name, err)
	}

	return &stream{events: s, primed: true}, nil
}

// messageParams moves system messages into the System field; the Messages API
// takes the directive separately from the turns.
func messageParams(req *llm.ChatRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: defaultMaxTokens,
	}

	if req.Options != nil {
		if req.Options.MaxTokens != nil {
			params.MaxTokens = int64(*req.Options.MaxTokens)
		}
		if req.Options.Temperature != nil {
			params.Temperature = anthropic.Float(*req.Options.Temperature)
		}
	}

	for _, msg := range req.Messages {
		switch llm.Role(msg.Role) {
		case llm.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return params
}

type stream struct {
	events   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	primed   bool
	fragment string
	done     bool
	err      error
}

func (s *stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	if s.primed {
		s.primed = false
	} else if !s.events.Next() {
		s.fragment = ""
		if err := s.events.Err(); err != nil {
			s.err = llm.Failed(name, "reading stream", err)
		} else {
			s.err = llm.Failed(name, "stream ended before message_stop", io.ErrUnexpectedEOF)
		}
		return false
	}

	s.fragment = ""
	switch event := s.events.Current().AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok {
			s.fragment = delta.Text
		}
	case anthropic.MessageStopEvent:
		s.done = true
	}
	return true
}

func (s *stream) Fragment() string {
	return s.fragment
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Close() error {
	return s.events.Close()
}
