package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/pkg/jsonextract"
)

// chatServer mimics the OpenAI chat completions endpoint.
func chatServer(t *testing.T, status int, content string, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
		_, _ = w.Write(body)
	}))
}

func newTestClient(t *testing.T, baseURL string, attempts int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o-mini",
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		MaxAttempts: attempts,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestComplete(t *testing.T) {
	var hits int32
	srv := chatServer(t, http.StatusOK, "hello", &hits)
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL+"/v1", 1).Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "hello" || resp.Usage.TotalTokens != 15 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCompleteDoesNotRetryRejectedRequests(t *testing.T) {
	var hits int32
	srv := chatServer(t, http.StatusUnauthorized, "", &hits)
	defer srv.Close()

	_, err := newTestClient(t, srv.URL+"/v1", 3).Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("hits = %d, want 1", n)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Provider: "openai"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := NewClient(Config{Provider: "mystery", APIKey: "k"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	c, err := NewClient(Config{Provider: "Anthropic", APIKey: "k", Model: "claude-3-haiku-20240307"})
	if err != nil {
		t.Fatalf("anthropic NewClient() error = %v", err)
	}
	if c.Provider() != ProviderAnthropic {
		t.Fatalf("provider = %q", c.Provider())
	}
}

type stubCompleter struct {
	content string
	err     error
	req     CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &CompletionResponse{Content: s.content}, nil
}

func TestVerifyClaim(t *testing.T) {
	stub := &stubCompleter{content: "```json\n{\"claim\":\"Water boils at 100C\",\"is_correct\":true,\"confidence_score\":95}\n```"}
	raw, err := NewVerifier(stub).VerifyClaim(context.Background(), "Water boils at 100C")
	if err != nil {
		t.Fatalf("VerifyClaim() error = %v", err)
	}
	res, ok := raw.(*factcheck.RawResult)
	if !ok {
		t.Fatalf("raw = %T, want *factcheck.RawResult", raw)
	}
	if res.Claim == nil || *res.Claim != "Water boils at 100C" {
		t.Fatalf("claim = %v", res.Claim)
	}
	if !strings.Contains(stub.req.UserPrompt, "Water boils at 100C") {
		t.Fatalf("prompt = %q", stub.req.UserPrompt)
	}
}

func TestVerifyClaimReplyShapes(t *testing.T) {
	t.Run("no json", func(t *testing.T) {
		raw, err := NewVerifier(&stubCompleter{content: "I cannot judge that."}).VerifyClaim(context.Background(), "x")
		if err != nil {
			t.Fatalf("VerifyClaim() error = %v", err)
		}
		if raw != factcheck.RawText("I cannot judge that.") {
			t.Fatalf("raw = %#v", raw)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := NewVerifier(&stubCompleter{content: "{not json}"}).VerifyClaim(context.Background(), "x")
		var perr *jsonextract.ParseError
		if !errors.As(err, &perr) || perr.Reason != jsonextract.ReasonInvalidJSON {
			t.Fatalf("err = %v, want invalid JSON parse error", err)
		}
	})

	t.Run("unknown verdict", func(t *testing.T) {
		reply := `{"claim":"X","is_correct":"unknown","confidence_score":"high","verdict":"unclear"}`
		raw, err := NewVerifier(&stubCompleter{content: reply}).VerifyClaim(context.Background(), "x")
		if err != nil {
			t.Fatalf("VerifyClaim() error = %v", err)
		}
		res, ok := raw.(*factcheck.RawResult)
		if !ok || res.Claim == nil || *res.Claim != "X" {
			t.Fatalf("raw = %#v", raw)
		}
		if res.IsCorrect != nil || res.ConfidenceScore != nil {
			t.Fatalf("is_correct = %v confidence_score = %v, want both unset", res.IsCorrect, res.ConfidenceScore)
		}
		if _, ok := res.Object["verdict"]; !ok {
			t.Fatalf("reply object lost verdict: %v", res.Object)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		_, err := NewVerifier(&stubCompleter{err: errors.New("boom")}).VerifyClaim(context.Background(), "x")
		var upstream *factcheck.UpstreamError
		if !errors.As(err, &upstream) || upstream.Collaborator != "fact_checker" {
			t.Fatalf("err = %v, want fact_checker upstream error", err)
		}
	})
}
