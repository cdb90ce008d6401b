package responder

import (
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

// State is the lifecycle position of one streaming call.
type State int

const (
	Idle State = iota
	Requesting
	Streaming
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Stream yields the non-empty fragments of one reply. It is finite, consumed
// once, and not safe for concurrent use.
type Stream struct {
	src      llm.Stream
	provider string
	logger   *zap.Logger
	started  time.Time

	state    State
	fragment string
	count    int
	err      error
}

// Next advances to the next non-empty fragment. It returns false once the
// stream completed or failed; check Err to tell which.
func (s *Stream) Next() bool {
	if s.state.Terminal() {
		return false
	}

	for s.src.Next() {
		fragment := s.src.Fragment()
		if fragment == "" {
			continue
		}
		s.state = Streaming
		s.fragment = fragment
		s.count++
		return true
	}

	s.fragment = ""
	if err := s.src.Err(); err != nil {
		if !isProviderErr(err) {
			err = llm.Failed(s.provider, "stream failed", err)
		}
		s.err = err
		s.state = Failed
		s.logger.Error("reply stream failed",
			zap.String("provider", s.provider),
			zap.Int("fragments", s.count),
			zap.Error(err),
		)
	} else {
		s.state = Completed
		s.logger.Debug("reply stream completed",
			zap.String("provider", s.provider),
			zap.Int("fragments", s.count),
			zap.Duration("duration", time.Since(s.started)),
		)
	}

	if err := s.src.Close(); err != nil {
		s.logger.Debug("failed to close reply stream", zap.Error(err))
	}
	return false
}

// Fragment returns the current fragment. It is never empty while Next last
// returned true.
func (s *Stream) Fragment() string {
	return s.fragment
}

// Err returns the terminal error, or nil while streaming or after completion.
func (s *Stream) Err() error {
	return s.err
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return s.state
}

// Close abandons a stream that was not drained and releases the connection.
// An abandoned stream ends Failed. Close after a terminal state is a no-op.
func (s *Stream) Close() error {
	if s.state.Terminal() {
		return nil
	}
	s.state = Failed
	s.err = llm.Failed(s.provider, "stream abandoned", nil)
	return s.src.Close()
}
