// Package chat runs the conversation loop shared by every front-end: append
// the user's turn, stream the reply while rendering each fragment, then append
// the assembled reply.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/responder"
)

// ErrEmptyInput is returned for a submission with no visible text.
var ErrEmptyInput = errors.New("empty input")

// History is the session-owned turn sequence the loop reads and extends.
type History interface {
	Append(turn llm.Turn) error
	View() []llm.Turn
}

// RenderFunc displays one fragment. A render error stops rendering but not
// the stream.
type RenderFunc func(fragment string) error

// Loop drives exchanges against one responder.
type Loop struct {
	responder *responder.Responder
	logger    *zap.Logger
}

// NewLoop creates a Loop.
func NewLoop(r *responder.Responder, logger *zap.Logger) *Loop {
	return &Loop{
		responder: r,
		logger:    logger,
	}
}

// Submit runs one full exchange and returns the appended assistant turn.
func (l *Loop) Submit(ctx context.Context, history History, text string, render RenderFunc) (llm.Turn, error) {
	ex, err := l.Begin(ctx, history, text)
	if err != nil {
		return llm.Turn{}, err
	}
	return ex.Drain(render)
}

// Begin appends the user's turn and opens the reply stream. When opening
// fails the user turn stays in history and no assistant turn is added.
func (l *Loop) Begin(ctx context.Context, history History, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	if err := history.Append(llm.UserTurn(text)); err != nil {
		return nil, err
	}

	stream, err := l.responder.Respond(ctx, history.View())
	if err != nil {
		return nil, err
	}

	return &Exchange{
		history: history,
		stream:  stream,
		logger:  l.logger,
	}, nil
}

// Exchange is one reply in flight.
type Exchange struct {
	history History
	stream  *responder.Stream
	logger  *zap.Logger
}

// Drain consumes the stream to the end, rendering every fragment. On
// completion the concatenated fragments are appended as the assistant turn and
// returned. On failure nothing is appended; the partial reply is discarded.
func (e *Exchange) Drain(render RenderFunc) (llm.Turn, error) {
	defer e.stream.Close()

	var reply strings.Builder
	rendering := render != nil

	for e.stream.Next() {
		fragment := e.stream.Fragment()
		reply.WriteString(fragment)

		if !rendering {
			continue
		}
		if err := render(fragment); err != nil {
			// Keep draining so the reply still lands in history
			e.logger.Warn("failed to render fragment, continuing without display", zap.Error(err))
			rendering = false
		}
	}

	if err := e.stream.Err(); err != nil {
		e.logger.Warn("discarding partial reply",
			zap.Int("partial_length", reply.Len()),
			zap.Error(err),
		)
		return llm.Turn{}, err
	}

	turn := llm.AssistantTurn(reply.String())
	if err := e.history.Append(turn); err != nil {
		return llm.Turn{}, err
	}
	return turn, nil
}

// State returns the lifecycle state of the underlying stream.
func (e *Exchange) State() responder.State {
	return e.stream.State()
}
