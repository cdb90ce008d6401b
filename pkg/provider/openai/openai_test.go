package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/provider/openai"
)

func deltaEvent(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","model":"m","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", content)
}

const (
	roleEvent   = `data: {"id":"c1","model":"m","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}` + "\n\n"
	finishEvent = `data: {"id":"c1","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}` + "\n\n"
	doneEvent   = "data: [DONE]\n\n"
)

func drain(s llm.Stream) []string {
	var out []string
	for s.Next() {
		out = append(out, s.Fragment())
	}
	return out
}

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		handler  http.HandlerFunc
		received *http.Request
		body     map[string]any
		client   *openai.Client
		request  *llm.ChatRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		body = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received = r
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			handler(w, r)
		}))
		client = openai.New(openai.Config{BaseURL: server.URL + "/", APIKey: "gsk-test"}, zap.NewNop())
		request = &llm.ChatRequest{
			Model: "llama-3.3-70b-versatile",
			Messages: []llm.Message{
				{Role: "system", Content: "be crazy"},
				{Role: "user", Content: "Bonjour"},
			},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	It("streams content deltas until [DONE]", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": keep-alive\n\n")
			fmt.Fprint(w, roleEvent)
			fmt.Fprint(w, deltaEvent("Bon"))
			fmt.Fprint(w, deltaEvent("jour !"))
			fmt.Fprint(w, finishEvent)
			fmt.Fprint(w, doneEvent)
		}

		s, err := client.Open(ctx, request)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		Expect(drain(s)).To(Equal([]string{"", "Bon", "jour !", ""}))
		Expect(s.Err()).NotTo(HaveOccurred())
		Expect(s.Next()).To(BeFalse())
	})

	It("sends the request the way the completions API expects", func() {
		temp := 0.7
		request.Options = &llm.Options{Temperature: &temp}
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, doneEvent)
		}

		s, err := client.Open(ctx, request)
		Expect(err).NotTo(HaveOccurred())
		drain(s)
		s.Close()

		Expect(received.URL.Path).To(Equal("/chat/completions"))
		Expect(received.Header.Get("Authorization")).To(Equal("Bearer gsk-test"))
		Expect(body["model"]).To(Equal("llama-3.3-70b-versatile"))
		Expect(body["stream"]).To(BeTrue())
		Expect(body["temperature"]).To(Equal(0.7))
		Expect(body).NotTo(HaveKey("max_tokens"))

		messages := body["messages"].([]any)
		Expect(messages).To(HaveLen(2))
		Expect(messages[0]).To(HaveKeyWithValue("role", "system"))
		Expect(messages[1]).To(HaveKeyWithValue("content", "Bonjour"))
	})

	It("completes when the server closes after a finish reason", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, deltaEvent("Salut"))
			fmt.Fprint(w, finishEvent)
		}

		s, err := client.Open(ctx, request)
		Expect(err).NotTo(HaveOccurred())
		Expect(drain(s)).To(Equal([]string{"Salut", ""}))
		Expect(s.Err()).NotTo(HaveOccurred())
	})

	It("fails when the stream is cut before completion", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, deltaEvent("Bon"))
		}

		s, err := client.Open(ctx, request)
		Expect(err).NotTo(HaveOccurred())
		Expect(drain(s)).To(Equal([]string{"Bon"}))
		Expect(errors.Is(s.Err(), llm.ErrProviderError)).To(BeTrue())
	})

	It("fails on a mid-stream error event", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, deltaEvent("Bon"))
			fmt.Fprint(w, `data: {"error":{"message":"model overloaded"}}`+"\n\n")
			fmt.Fprint(w, deltaEvent("never"))
		}

		s, err := client.Open(ctx, request)
		Expect(err).NotTo(HaveOccurred())
		Expect(drain(s)).To(Equal([]string{"Bon"}))
		Expect(errors.Is(s.Err(), llm.ErrProviderError)).To(BeTrue())
		Expect(s.Err().Error()).To(ContainSubstring("model overloaded"))
	})

	It("skips malformed chunks", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {not json\n\n")
			fmt.Fprint(w, deltaEvent("ok"))
			fmt.Fprint(w, doneEvent)
		}

		s, err := client.Open(ctx, request)
		Expect(err).NotTo(HaveOccurred())
		Expect(drain(s)).To(Equal([]string{"ok"}))
		Expect(s.Err()).NotTo(HaveOccurred())
	})

	It("reports a rejected credential as a configuration error", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`)
		}

		_, err := client.Open(ctx, request)
		Expect(errors.Is(err, llm.ErrConfiguration)).To(BeTrue())
		Expect(errors.Is(err, llm.ErrProviderUnavailable)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("Invalid API Key"))
	})

	It("reports server failures as unavailable", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
		}

		_, err := client.Open(ctx, request)
		Expect(errors.Is(err, llm.ErrProviderUnavailable)).To(BeTrue())
		Expect(errors.Is(err, llm.ErrConfiguration)).To(BeFalse())
	})

	It("reports an unreachable provider as unavailable", func() {
		unreachable := openai.New(openai.Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())

		_, err := unreachable.Open(ctx, request)
		Expect(errors.Is(err, llm.ErrProviderUnavailable)).To(BeTrue())
	})
})
