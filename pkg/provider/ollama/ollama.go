// Package ollama streams chat replies from an Ollama server's NDJSON /api/chat
// endpoint.
package ollama

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

// DefaultBaseURL is where a local Ollama listens.
const DefaultBaseURL = "http://localhost:11434"

const (
	name = "ollama"

	// maxLine bounds a single NDJSON chunk.
	maxLine = 1 << 20
)

// Config configures the client.
type Config struct {
	BaseURL   string
	KeepAlive string
	Timeout   time.Duration
}

// Client opens streaming chats against Ollama.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client.
func New(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
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
	streaming := true
	body := chatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Stream:    &streaming,
		KeepAlive: c.config.KeepAlive,
	}
	if req.Options != nil {
		body.Options = &options{
			Temperature: req.Options.Temperature,
			NumPredict:  req.Options.MaxTokens,
		}
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.config.BaseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("forwarding streaming request to ollama",
		zap.String("url", url),
		zap.String("model", req.Model),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.Unavailable(name, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		c.logger.Error("ollama returned error",
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

type stream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	logger   *zap.Logger
	fragment string
	done     bool
	err      error
}

func (s *stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.logger.Warn("failed to parse chunk", zap.Error(err), zap.String("line", string(line)))
			continue
		}

		if chunk.Error != "" {
			s.err = llm.Failed(name, chunk.Error, nil)
			s.fragment = ""
			return false
		}

		// The final chunk may still carry content
		s.fragment = chunk.Message.Content
		if chunk.Done {
			s.done = true
			s.logger.Debug("ollama stream complete",
				zap.String("model", chunk.Model),
				zap.Int("prompt_eval_count", chunk.PromptEvalCount),
				zap.Int("eval_count", chunk.EvalCount),
				zap.Duration("total_duration", time.Duration(chunk.TotalDuration)),
			)
		}
		return true
	}

	s.fragment = ""
	if err := s.scanner.Err(); err != nil {
		s.err = llm.Failed(name, "reading stream", err)
	} else {
		s.err = llm.Failed(name, "stream ended before completion", io.ErrUnexpectedEOF)
	}
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

func errorMessage(body []byte) string {
	var resp llm.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	return strings.TrimSpace(string(body))
}
