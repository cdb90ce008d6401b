// Package server provides the browser chat UI. Each browser session owns one
// in-memory conversation; replies are streamed to the page as server-sent
// events while they are generated.
package server

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http/pprof"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/chat"
	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/logger"
	"github.com/papercomputeco/chatterbox/pkg/responder"
	"github.com/papercomputeco/chatterbox/pkg/session"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "chatterbox_session"

// errBusy is reported when a reply is still streaming for the session.
var errBusy = errors.New("a reply is already streaming for this session")

//go:embed templates/index.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// Server is the web UI.
type Server struct {
	config   Config
	sessions *session.Manager
	loop     *chat.Loop
	renderer *renderer
	logger   *zap.Logger
	server   *fiber.App
}

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	Content string `json:"content"`
}

// HistoryResponse contains the conversation history of the caller's session.
type HistoryResponse struct {
	// Turns in chronological order
	Turns []llm.Turn `json:"turns"`
	// Head is the chain hash of the latest turn, empty for a new session
	Head string `json:"head"`
	// Depth is the number of turns in the history
	Depth int `json:"depth"`
}

// New creates a new Server around loop.
func New(config Config, loop *chat.Loop, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		sessions: session.NewManager(config.SessionTTL, logger),
		loop:     loop,
		renderer: newRenderer(),
		logger:   logger,
		server:   app,
	}

	app.Get("/", s.handleIndex)
	app.Post("/api/chat", s.handleChat)
	app.Get("/api/history", s.handleHistory)
	app.Delete("/api/session", s.handleEndSession)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	if config.Debug {
		app.Get("/debug/pprof/cmdline", adaptor.HTTPHandlerFunc(pprof.Cmdline))
		app.Get("/debug/pprof/profile", adaptor.HTTPHandlerFunc(pprof.Profile))
		app.Get("/debug/pprof/symbol", adaptor.HTTPHandlerFunc(pprof.Symbol))
		app.Get("/debug/pprof/trace", adaptor.HTTPHandlerFunc(pprof.Trace))
		app.Get("/debug/pprof/*", adaptor.HTTPHandlerFunc(pprof.Index))
	}

	return s
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting chat server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("provider", s.config.Provider),
		zap.String("model", s.config.Model),
	)

	return s.server.Listen(s.config.ListenAddr)
}

// Shutdown stops accepting connections and waits for open streams to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}

// session resolves the caller's session from its cookie, starting a new one
// when the cookie is missing or stale.
func (s *Server) session(c *fiber.Ctx) *session.Session {
	sess, created := s.sessions.GetOrCreate(c.Cookies(SessionCookie))
	if created {
		c.Cookie(&fiber.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	return sess
}

// handleIndex renders the page with the session's history.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	sess := s.session(c)

	turns, err := s.renderer.Turns(sess.View())
	if err != nil {
		s.logger.Error("failed to render history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("could not render history")
	}

	var buf bytes.Buffer
	err = indexTemplate.Execute(&buf, map[string]any{
		"Provider":       s.config.Provider,
		"Model":          s.config.Model,
		"Turns":          turns,
		"UserStyle":      styleFor(llm.RoleUser),
		"AssistantStyle": styleFor(llm.RoleAssistant),
	})
	if err != nil {
		s.logger.Error("failed to execute page template", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("could not render page")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

// handleChat appends the user's message and streams the reply as server-sent
// events. The provider call is opened before responding so that a provider
// that cannot be reached is reported with a status code. Once streaming, the
// reply is drained to the end even if the browser goes away.
func (s *Server) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	var req chatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	sess := s.session(c)
	if !sess.Acquire() {
		return c.Status(statusFor(errBusy)).JSON(llm.ErrorResponse{Error: errBusy.Error()})
	}

	s.logger.Debug("received chat message",
		zap.String("session", sess.ID),
		zap.Int("history_length", sess.Len()),
		zap.String("content_preview", logger.Truncate(req.Content, 50)),
	)

	// Not bound to the request: the exchange outlives the handler.
	ex, err := s.loop.Begin(context.Background(), sess, req.Content)
	if err != nil {
		sess.Release()
		s.logger.Error("failed to start reply", zap.String("session", sess.ID), zap.Error(err))
		return c.Status(statusFor(err)).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sess.Release()

		turn, err := ex.Drain(func(fragment string) error {
			return writeEvent(w, "fragment", map[string]string{"content": fragment})
		})
		if err != nil {
			if werr := writeEvent(w, "error", llm.ErrorResponse{Error: err.Error()}); werr != nil {
				s.logger.Debug("failed to report stream error", zap.Error(werr))
			}
			return
		}

		html, err := s.renderer.HTML(turn.Content)
		if err != nil {
			s.logger.Warn("failed to render reply", zap.Error(err))
		}

		head := sess.Head()
		s.logger.Info("reply stored",
			zap.String("session", sess.ID),
			zap.String("head_hash", logger.Truncate(head, 16)),
			zap.String("content_preview", logger.Truncate(turn.Content, 50)),
			zap.Duration("duration", time.Since(startTime)),
		)

		if err := writeEvent(w, "done", map[string]string{"html": html, "head": head}); err != nil {
			s.logger.Debug("failed to send completion", zap.Error(err))
		}
	}))

	return nil
}

// handleHistory returns the session's turns. The chain head doubles as the
// entity tag, so an unchanged history answers 304.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	sess := s.session(c)

	turns := sess.View()
	head := sess.Head()
	etag := `"` + head + `"`

	c.Set(fiber.HeaderETag, etag)
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}

	if turns == nil {
		turns = []llm.Turn{}
	}
	return c.JSON(HistoryResponse{
		Turns: turns,
		Head:  head,
		Depth: len(turns),
	})
}

// handleEndSession tears down the caller's session and its history.
func (s *Server) handleEndSession(c *fiber.Ctx) error {
	id := c.Cookies(SessionCookie)
	if id == "" || !s.sessions.End(id) {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "no such session"})
	}

	c.ClearCookie(SessionCookie)
	return c.SendStatus(fiber.StatusNoContent)
}

// statusFor maps a failed exchange to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return fiber.StatusBadRequest
	case errors.Is(err, errBusy), errors.Is(err, responder.ErrInvalidHistory):
		return fiber.StatusConflict
	case errors.Is(err, llm.ErrConfiguration):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, llm.ErrProviderUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// writeEvent sends one server-sent event and flushes it.
func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
