package page

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/llm"
)

const articleHTML = `<html><head><title>City council vote</title><script>var x = 1;</script></head>
<body><nav>Home | News</nav>
<article><p>The council approved the budget on Monday. Turnout was the highest in a decade.</p>
<p>Critics said the vote was rushed.</p></article>
<footer>Copyright</footer></body></html>`

type stubCompleter struct {
	content string
	err     error
	req     llm.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func pageServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestFetchExtractsReadableSentences(t *testing.T) {
	srv := pageServer(t, http.StatusOK, articleHTML)
	defer srv.Close()

	content, err := NewAnalyzer(&stubCompleter{}, Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if content.Title != "City council vote" {
		t.Fatalf("title = %q", content.Title)
	}
	if len(content.Sentences) != 3 {
		t.Fatalf("sentences = %q, want 3", content.Sentences)
	}
	text := content.Text()
	for _, unwanted := range []string{"var x", "Home | News", "Copyright"} {
		if strings.Contains(text, unwanted) {
			t.Fatalf("text contains %q: %s", unwanted, text)
		}
	}
}

func TestFetchLimitsSentences(t *testing.T) {
	srv := pageServer(t, http.StatusOK, articleHTML)
	defer srv.Close()

	content, err := NewAnalyzer(&stubCompleter{}, Config{MaxSentences: 1}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(content.Sentences) != 1 {
		t.Fatalf("sentences = %q, want 1", content.Sentences)
	}
}

func TestAnalyzePage(t *testing.T) {
	srv := pageServer(t, http.StatusOK, articleHTML)
	defer srv.Close()

	stub := &stubCompleter{content: `{"is_misleading":false,"overall_credibility_score":80,
		"fact_check_summary":"Accurate","risk_level":"low","issues_found":[],"recommendation":"OK"}`}
	raw, err := NewAnalyzer(stub, Config{}).AnalyzePage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("AnalyzePage() error = %v", err)
	}
	res, ok := raw.(*factcheck.RawResult)
	if !ok {
		t.Fatalf("raw = %T", raw)
	}
	if res.AnalyzedTitle == nil || *res.AnalyzedTitle != "City council vote" {
		t.Fatalf("analyzed_title = %v", res.AnalyzedTitle)
	}
	if res.AnalyzedURL == nil || *res.AnalyzedURL != srv.URL {
		t.Fatalf("analyzed_url = %v", res.AnalyzedURL)
	}
	if !strings.Contains(stub.req.UserPrompt, "The council approved the budget on Monday.") {
		t.Fatalf("prompt = %q", stub.req.UserPrompt)
	}

	got, err := factcheck.Standardize(raw, factcheck.SourcePage, time.Now())
	if err != nil {
		t.Fatalf("Standardize() error = %v", err)
	}
	if got.IsCorrect == nil || !*got.IsCorrect || got.ConfidenceScore != 80 {
		t.Fatalf("standardized = %+v", got)
	}
}

func TestAnalyzePageFailures(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		srv := pageServer(t, http.StatusNotFound, "gone")
		defer srv.Close()

		_, err := NewAnalyzer(&stubCompleter{}, Config{}).AnalyzePage(context.Background(), srv.URL)
		var upstream *factcheck.UpstreamError
		if !errors.As(err, &upstream) || upstream.Collaborator != "page_analyzer" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("model", func(t *testing.T) {
		srv := pageServer(t, http.StatusOK, articleHTML)
		defer srv.Close()

		_, err := NewAnalyzer(&stubCompleter{err: errors.New("quota")}, Config{}).AnalyzePage(context.Background(), srv.URL)
		if err == nil || !strings.Contains(err.Error(), "quota") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("prose reply", func(t *testing.T) {
		srv := pageServer(t, http.StatusOK, articleHTML)
		defer srv.Close()

		raw, err := NewAnalyzer(&stubCompleter{content: "Looks fine to me."}, Config{}).AnalyzePage(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("AnalyzePage() error = %v", err)
		}
		if raw != factcheck.RawText("Looks fine to me.") {
			t.Fatalf("raw = %#v", raw)
		}
	})
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"日本語", 4, "日"},
		{"日本語", 2, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.text, tt.n); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
		}
	}
}

func TestFetchMultibyteTextStaysValid(t *testing.T) {
	body := "<html><body><article><p>" + strings.Repeat("日本語のニュース記事", 40) + "</p></article></body></html>"
	srv := pageServer(t, http.StatusOK, body)
	defer srv.Close()

	content, err := NewAnalyzer(&stubCompleter{}, Config{MaxChars: 25}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(content.Sentences) == 0 {
		t.Fatal("no sentences")
	}
	for _, s := range content.Sentences {
		if !utf8.ValidString(s) {
			t.Fatalf("sentence is not valid UTF-8: %q", s)
		}
	}
}
