// Package openai streams chat completions from OpenAI-compatible endpoints
// such as Groq, which speak server-sent events terminated by "data: [DONE]".
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	name = "openai"

	// maxLine bounds a single SSE line.
	maxLine = 1 << 20
)

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client opens streaming completions.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client. An empty APIKey is sent as-is; the provider decides
// whether it is acceptable.
func New(config Config, logger *zap.Logger) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string {
	return name
}

// Open implements provider.Provider.
func (c *Client) Open(ctx context.Context, req *llm.ChatRequest) (llm.Stream, error) {
	body := completionRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	}
	if req.Options != nil {
		body.Temperature = req.Options.Temperature
		body.MaxTokens = req.Options.MaxTokens
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("opening completion stream",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.Unavailable(name, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		c.logger.Error("provider returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, llm.StatusError(name, httpResp.StatusCode, errorMessage(respBody))
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	return &stream{
		body:    httpResp.Body,
		scanner: scanner,
		logger:  c.logger,
	}, nil
}

// stream reads "data:" lines; comments, event names and ids are ignored.
type stream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	logger   *zap.Logger
	fragment string
	done     bool
	finished bool
	err      error
}

func (s *stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)

		if string(data) == "[DONE]" {
			s.done = true
			s.fragment = ""
			return false
		}

		var chunk completionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.logger.Warn("failed to parse chunk", zap.Error(err), zap.String("line", string(data)))
			continue
		}

		if chunk.Error != nil {
			s.err = llm.Failed(name, chunk.Error.Message, nil)
			return false
		}

		s.fragment = ""
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			s.fragment = choice.Delta.Content
			if choice.FinishReason != nil {
				s.finished = true
			}
		}
		return true
	}

	s.fragment = ""
	if err := s.scanner.Err(); err != nil {
		s.err = llm.Failed(name, "reading stream", err)
		return false
	}

	// Some compatible servers close right after the finish reason
	if s.finished {
		s.done = true
		return false
	}
	s.err = llm.Failed(name, "stream ended before completion", io.ErrUnexpectedEOF)
	return false
}

func (s *stream) Fragment() string {
	return s.fragment
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Close() error {
	return s.body.Close()
}

// errorMessage extracts the message of an OpenAI-style error body, falling back
// to the raw body.
func errorMessage(body []byte) string {
	var resp struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return strings.TrimSpace(string(body))
}
