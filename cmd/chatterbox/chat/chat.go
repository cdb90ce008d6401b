package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/chatterbox/cmd/chatterbox/cmdutil"
	"github.com/papercomputeco/chatterbox/pkg/chat"
	"github.com/papercomputeco/chatterbox/pkg/conversation"
	"github.com/papercomputeco/chatterbox/pkg/llm"
)

const chatLongDesc string = `Chat with the model in the terminal.

Each line you type is sent with the whole conversation so far, and the
reply is printed as it streams in. The history lives only as long as the
command runs.

Commands:
  /reset  start a new conversation
  /exit   quit (so does Ctrl-D)

Examples:
  chatterbox chat
  chatterbox chat --provider ollama --model llama3.2`

const chatShortDesc string = "Chat in the terminal"

type chatCommander struct {
	globals *cmdutil.Globals
	noColor bool
}

// styles decorates the transcript. The zero value renders plain text.
type styles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	notice    lipgloss.Style
	err       lipgloss.Style
}

func newStyles(out io.Writer, color bool) styles {
	var opts []termenv.OutputOption
	if !color {
		opts = append(opts, termenv.WithProfile(termenv.Ascii))
	}
	r := lipgloss.NewRenderer(out, opts...)

	return styles{
		user:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		notice:    r.NewStyle().Faint(true),
		err:       r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func NewChatCmd(globals *cmdutil.Globals) *cobra.Command {
	cmder := &chatCommander{globals: globals}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, log, loop, err := c.globals.Setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	out := cmd.OutOrStdout()
	st := newStyles(out, !c.noColor && isTerminal(out))

	fmt.Fprintln(out, st.notice.Render(fmt.Sprintf("chatterbox · %s · %s (/exit to quit)", cfg.Provider, cfg.Model)))

	return repl(ctx, cmd.InOrStdin(), out, loop, st)
}

// repl reads one message per line until EOF, /exit or ctx is done. A reply
// already streaming when ctx is done is still drained and stored.
func repl(ctx context.Context, in io.Reader, out io.Writer, loop *chat.Loop, st styles) error {
	history := conversation.NewStore()
	exchangeCtx := context.WithoutCancel(ctx)

	done := make(chan struct{})
	defer close(done)
	lines, scanErr := readLines(in, done)

	for {
		if ctx.Err() != nil {
			fmt.Fprintln(out)
			return nil
		}

		fmt.Fprint(out, st.user.Render("you")+" › ")

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			return <-scanErr
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			history = conversation.NewStore()
			fmt.Fprintln(out, st.notice.Render("conversation cleared"))
			continue
		}

		fmt.Fprint(out, st.assistant.Render("bot")+" › ")
		_, err := loop.Submit(exchangeCtx, history, line, func(fragment string) error {
			// Model output must not drive the terminal.
			_, err := io.WriteString(out, ansi.Strip(fragment))
			return err
		})
		fmt.Fprintln(out)

		if err != nil {
			fmt.Fprintln(out, st.err.Render(describe(err)))
		}
	}
}

// readLines scans in on its own goroutine so a blocked read does not hold up
// shutdown. lines is closed at EOF, after the scan error is sent.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	return lines, scanErr
}

// describe words a failed exchange for the transcript.
func describe(err error) string {
	switch {
	case errors.Is(err, llm.ErrConfiguration):
		return "configuration error: " + err.Error()
	case errors.Is(err, llm.ErrProviderUnavailable):
		return "provider unavailable: " + err.Error()
	case errors.Is(err, llm.ErrProviderError):
		return "reply failed, partial answer discarded: " + err.Error()
	default:
		return "error: " + err.Error()
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
