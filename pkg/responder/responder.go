// Package responder turns a conversation history into a live reply stream.
//
// A Responder prepends the fixed system directive to a copy of the history,
// opens one streaming call against its provider and hands back a Stream that
// yields the reply's non-empty text fragments. It never mutates the history;
// assembling the fragments into a turn is the caller's job.
package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/provider"
)

// ErrInvalidHistory is returned for a history that contains a system turn or
// does not end with a user turn.
var ErrInvalidHistory = errors.New("invalid history")

// Config configures the outbound request.
type Config struct {
	// Directive is the system instruction prepended to every request.
	Directive string

	// Model is passed through to the provider.
	Model string

	// Options are optional inference parameters.
	Options *llm.Options
}

// Responder issues one streaming request per Respond call.
type Responder struct {
	provider provider.Provider
	config   Config
	logger   *zap.Logger
}

// New creates a Responder.
func New(p provider.Provider, config Config, logger *zap.Logger) *Responder {
	return &Responder{
		provider: p,
		config:   config,
		logger:   logger,
	}
}

// Request builds the outbound payload for history: the directive first, then a
// copy of every turn in order.
func (r *Responder) Request(history []llm.Turn) (*llm.ChatRequest, error) {
	for i, turn := range history {
		if turn.Role == llm.RoleSystem {
			return nil, fmt.Errorf("%w: system turn at position %d", ErrInvalidHistory, i)
		}
	}
	if n := len(history); n > 0 && history[n-1].Role != llm.RoleUser {
		return nil, fmt.Errorf("%w: last turn is %q, want %q", ErrInvalidHistory, history[n-1].Role, llm.RoleUser)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.SystemTurn(r.config.Directive).Message())
	for _, turn := range history {
		messages = append(messages, turn.Message())
	}

	return &llm.ChatRequest{
		Model:    r.config.Model,
		Messages: messages,
		Options:  r.config.Options,
	}, nil
}

// Respond opens a reply stream for history. Open failures are returned here and
// match llm.ErrProviderUnavailable; failures after that are reported by the
// returned Stream's Err.
func (r *Responder) Respond(ctx context.Context, history []llm.Turn) (*Stream, error) {
	req, err := r.Request(history)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		provider: r.provider.Name(),
		logger:   r.logger,
		started:  time.Now(),
	}
	s.state = Requesting

	r.logger.Debug("requesting reply",
		zap.String("provider", r.provider.Name()),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	src, err := r.provider.Open(ctx, req)
	if err != nil {
		s.state = Failed
		if !isProviderErr(err) {
			err = llm.Unavailable(r.provider.Name(), err)
		}
		r.logger.Error("failed to open reply stream",
			zap.String("provider", r.provider.Name()),
			zap.Error(err),
		)
		return nil, err
	}

	s.src = src
	return s, nil
}

func isProviderErr(err error) bool {
	var perr *llm.ProviderErr
	return errors.As(err, &perr)
}
