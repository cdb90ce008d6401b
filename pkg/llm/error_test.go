package llm_test

import (
	"errors"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

var _ = Describe("Provider errors", func() {
	It("categorizes 401 and 403 as configuration errors", func() {
		for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
			err := llm.StatusError("openai", status, "invalid api key")
			Expect(errors.Is(err, llm.ErrConfiguration)).To(BeTrue())
			Expect(errors.Is(err, llm.ErrProviderUnavailable)).To(BeTrue())
			Expect(errors.Is(err, llm.ErrProviderError)).To(BeFalse())
		}
	})

	It("categorizes other statuses as unavailable", func() {
		err := llm.StatusError("openai", http.StatusBadGateway, "")
		Expect(errors.Is(err, llm.ErrProviderUnavailable)).To(BeTrue())
		Expect(errors.Is(err, llm.ErrConfiguration)).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("status 502"))
	})

	It("keeps the cause reachable", func() {
		err := llm.Failed("ollama", "reading stream", io.ErrUnexpectedEOF)
		Expect(errors.Is(err, llm.ErrProviderError)).To(BeTrue())
		Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		Expect(err.Error()).To(Equal("ollama: provider error: reading stream: unexpected EOF"))
	})

	It("wraps transport failures as unavailable", func() {
		err := llm.Unavailable("anthropic", errors.New("connection refused"))
		Expect(errors.Is(err, llm.ErrProviderUnavailable)).To(BeTrue())

		var perr *llm.ProviderErr
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Provider).To(Equal("anthropic"))
	})
})

var _ = Describe("Turn", func() {
	It("builds tagged turns", func() {
		Expect(llm.UserTurn("hi").Role).To(Equal(llm.RoleUser))
		Expect(llm.AssistantTurn("hey").Role).To(Equal(llm.RoleAssistant))
		Expect(llm.SystemTurn("be brief").Role).To(Equal(llm.RoleSystem))
	})

	It("validates roles", func() {
		Expect(llm.RoleUser.Valid()).To(BeTrue())
		Expect(llm.Role("").Valid()).To(BeFalse())
		Expect(llm.Role("tool").Valid()).To(BeFalse())
	})

	It("converts to the wire message", func() {
		Expect(llm.UserTurn("Bonjour").Message()).To(Equal(llm.Message{Role: "user", Content: "Bonjour"}))
	})
})
