package chatcmder

import (
	"bytes"
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/cmd/chatterbox/cmdutil"
	"github.com/papercomputeco/chatterbox/pkg/chat"
	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/provider/providertest"
	"github.com/papercomputeco/chatterbox/pkg/responder"
)

var _ = Describe("Chat Command", func() {
	var (
		ctx      context.Context
		provider *providertest.Provider
		out      *bytes.Buffer
	)

	newLoop := func(p *providertest.Provider) *chat.Loop {
		provider = p
		r := responder.New(p, responder.Config{Directive: "be brief", Model: "test-model"}, zap.NewNop())
		return chat.NewLoop(r, zap.NewNop())
	}

	BeforeEach(func() {
		ctx = context.Background()
		out = &bytes.Buffer{}
	})

	It("streams replies and carries the history forward", func() {
		loop := newLoop(providertest.Reply("Sa", "lut"))

		err := repl(ctx, strings.NewReader("Bonjour\nEncore\n"), out, loop, styles{})
		Expect(err).NotTo(HaveOccurred())

		Expect(out.String()).To(ContainSubstring("bot › Salut\n"))
		Expect(provider.Requests()).To(HaveLen(2))
		Expect(provider.Last().Messages).To(Equal([]llm.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "Bonjour"},
			{Role: "assistant", Content: "Salut"},
			{Role: "user", Content: "Encore"},
		}))
	})

	It("skips blank lines", func() {
		loop := newLoop(providertest.Reply("ok"))

		Expect(repl(ctx, strings.NewReader("\n   \n"), out, loop, styles{})).To(Succeed())
		Expect(provider.Requests()).To(BeEmpty())
	})

	It("stops at /exit", func() {
		loop := newLoop(providertest.Reply("ok"))

		Expect(repl(ctx, strings.NewReader("/exit\nBonjour\n"), out, loop, styles{})).To(Succeed())
		Expect(provider.Requests()).To(BeEmpty())
	})

	It("starts over after /reset", func() {
		loop := newLoop(providertest.Reply("ok"))

		Expect(repl(ctx, strings.NewReader("Bonjour\n/reset\nEncore\n"), out, loop, styles{})).To(Succeed())
		Expect(out.String()).To(ContainSubstring("conversation cleared"))
		Expect(provider.Last().Messages).To(Equal([]llm.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "Encore"},
		}))
	})

	It("reports a failure and keeps going", func() {
		loop := newLoop(providertest.New(
			providertest.Script{OpenErr: llm.Unavailable("scripted", errors.New("connection refused"))},
			providertest.Script{Fragments: []string{"enfin"}},
		))

		Expect(repl(ctx, strings.NewReader("Bonjour\nEncore\n"), out, loop, styles{})).To(Succeed())
		Expect(out.String()).To(ContainSubstring("provider unavailable"))
		Expect(out.String()).To(ContainSubstring("bot › enfin"))

		// The unanswered message stays in the history.
		Expect(provider.Last().Messages).To(Equal([]llm.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "Bonjour"},
			{Role: "user", Content: "Encore"},
		}))
	})

	It("strips terminal escapes from replies but keeps them in history", func() {
		loop := newLoop(providertest.Reply("\x1b[2J", "Salut"))

		Expect(repl(ctx, strings.NewReader("Bonjour\nEncore\n"), out, loop, styles{})).To(Succeed())
		Expect(out.String()).NotTo(ContainSubstring("\x1b"))
		Expect(provider.Last().Messages[2]).To(Equal(llm.Message{Role: "assistant", Content: "\x1b[2JSalut"}))
	})

	It("renders plain labels without color", func() {
		st := newStyles(out, false)
		Expect(st.user.Render("you")).To(Equal("you"))
		Expect(st.err.Render("boom")).To(Equal("boom"))
	})

	It("returns without sending anything once interrupted", func() {
		loop := newLoop(providertest.Reply("ok"))
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := repl(cancelled, strings.NewReader("one\ntwo\nthree\n"), out, loop, styles{})
		Expect(err).NotTo(HaveOccurred())
		Expect(provider.Requests()).To(BeEmpty())
	})

	It("finishes a reply interrupted mid-flight, then stops", func() {
		interruptible, interrupt := context.WithCancel(ctx)
		defer interrupt()
		p := &interruptingProvider{Provider: providertest.Reply("Sa", "lut"), interrupt: interrupt}
		r := responder.New(p, responder.Config{Directive: "be brief", Model: "test-model"}, zap.NewNop())
		loop := chat.NewLoop(r, zap.NewNop())

		err := repl(interruptible, strings.NewReader("Bonjour\nEncore\n"), out, loop, styles{})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.openErr).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("bot › Salut\n"))
		Expect(p.Requests()).To(HaveLen(1))
	})

	It("wires the command flags", func() {
		cmd := NewChatCmd(&cmdutil.Globals{})
		Expect(cmd.Flags().Lookup("no-color")).NotTo(BeNil())
	})
})

// interruptingProvider cancels the session context while opening a reply,
// like Ctrl-C pressed during a request, and records what the request saw.
type interruptingProvider struct {
	*providertest.Provider
	interrupt context.CancelFunc
	openErr   error
}

func (p *interruptingProvider) Open(ctx context.Context, req *llm.ChatRequest) (llm.Stream, error) {
	p.interrupt()
	p.openErr = ctx.Err()
	return p.Provider.Open(ctx, req)
}

var _ = Describe("describe", func() {
	It("names each failure category", func() {
		Expect(describe(llm.StatusError("p", 401, "bad key"))).To(HavePrefix("configuration error"))
		Expect(describe(llm.Unavailable("p", errors.New("dial")))).To(HavePrefix("provider unavailable"))
		Expect(describe(llm.Failed("p", "cut", nil))).To(HavePrefix("reply failed"))
		Expect(describe(errors.New("boom"))).To(Equal("error: boom"))
	})
})
