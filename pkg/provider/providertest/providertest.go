// Package providertest provides a scripted provider for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

// Script describes how one stream behaves.
type Script struct {
	// Fragments are emitted in order. Empty strings model metadata-only events.
	Fragments []string

	// OpenErr, when set, is returned from Open instead of a stream.
	OpenErr error

	// FailAfter, when set, ends the stream with this error once all
	// Fragments were emitted.
	FailAfter error
}

// Provider replays scripts, one per Open call, and records every request.
// After the scripts run out it replays the last one.
type Provider struct {
	mu       sync.Mutex
	scripts  []Script
	requests []*llm.ChatRequest
}

// New returns a provider that replays scripts in order.
func New(scripts ...Script) *Provider {
	return &Provider{scripts: scripts}
}

// Reply is a shorthand for a provider whose every stream emits fragments and
// completes.
func Reply(fragments ...string) *Provider {
	return New(Script{Fragments: fragments})
}

// Name implements provider.Provider.
func (p *Provider) Name() string {
	return "scripted"
}

// Open implements provider.Provider.
func (p *Provider) Open(_ context.Context, req *llm.ChatRequest) (llm.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := *req
	copied.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, &copied)

	var script Script
	if n := len(p.requests); n <= len(p.scripts) {
		script = p.scripts[n-1]
	} else if len(p.scripts) > 0 {
		script = p.scripts[len(p.scripts)-1]
	}

	if script.OpenErr != nil {
		return nil, script.OpenErr
	}
	return &Stream{script: script, pos: -1}, nil
}

// Requests returns every request seen so far.
func (p *Provider) Requests() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.ChatRequest(nil), p.requests...)
}

// Last returns the most recent request, or nil.
func (p *Provider) Last() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// Stream replays one script.
type Stream struct {
	script Script
	pos    int
	err    error
	Closed bool
}

// Next implements llm.Stream.
func (s *Stream) Next() bool {
	if s.err != nil {
		return false
	}
	s.pos++
	if s.pos < len(s.script.Fragments) {
		return true
	}
	s.err = s.script.FailAfter
	return false
}

// Fragment implements llm.Stream.
func (s *Stream) Fragment() string {
	if s.pos < 0 || s.pos >= len(s.script.Fragments) {
		return ""
	}
	return s.script.Fragments[s.pos]
}

// Err implements llm.Stream.
func (s *Stream) Err() error {
	return s.err
}

// Close implements llm.Stream.
func (s *Stream) Close() error {
	s.Closed = true
	return nil
}
