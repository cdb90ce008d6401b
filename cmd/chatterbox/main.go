package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatterbox/cmd/chatterbox/chat"
	"github.com/papercomputeco/chatterbox/cmd/chatterbox/cmdutil"
	servecmder "github.com/papercomputeco/chatterbox/cmd/chatterbox/serve"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const rootLongDesc string = `chatterbox is a small chat front-end for hosted and local models.

It keeps the conversation for the length of a session, sends it with a
fixed system directive on every message, and streams the reply back as
it is generated.

Configuration is read from an optional TOML file, a .env file and the
environment (GROQ_API_KEY, ANTHROPIC_API_KEY, MODEL, CHATTERBOX_PROVIDER);
flags take precedence.`

func newRootCmd() *cobra.Command {
	globals := &cmdutil.Globals{}

	cmd := &cobra.Command{
		Use:           "chatterbox",
		Short:         "Stream chat replies from an LLM",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	globals.Register(cmd)

	cmd.AddCommand(servecmder.NewServeCmd(globals))
	cmd.AddCommand(chatcmder.NewChatCmd(globals))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
