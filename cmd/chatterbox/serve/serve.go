package servecmder

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/cmd/chatterbox/cmdutil"
	"github.com/papercomputeco/chatterbox/pkg/config"
	"github.com/papercomputeco/chatterbox/server"
)

const serveLongDesc string = `Serve the chat UI in the browser.

Every browser session gets its own conversation, kept in memory until the
session is ended or sits idle for the session TTL. Replies stream into the
page as they are generated.

Examples:
  chatterbox serve
  chatterbox serve --listen 127.0.0.1:3000 --provider ollama`

const serveShortDesc string = "Serve the web chat UI"

type serveCommander struct {
	globals *cmdutil.Globals
	listen  string
}

func NewServeCmd(globals *cmdutil.Globals) *cobra.Command {
	cmder := &serveCommander{globals: globals}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default from config, :8080)")

	return cmd
}

func (c *serveCommander) override(cfg *config.Config) {
	if c.listen != "" {
		cfg.Listen = c.listen
	}
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, log, loop, err := c.globals.Setup(c.override)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	srv := server.New(server.Config{
		ListenAddr: cfg.Listen,
		Provider:   string(cfg.Provider),
		Model:      cfg.Model,
		SessionTTL: cfg.SessionTTL.Duration,
		Debug:      cfg.Debug,
	}, loop, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("chat server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down, waiting for open replies", zap.Duration("timeout", cfg.RequestTimeout.Duration))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("could not shut down chat server: %w", err)
	}
	return <-errCh
}
