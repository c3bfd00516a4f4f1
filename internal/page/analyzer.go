// Package page fetches a web page, reduces it to readable sentences and asks
// the language model whether the page is misleading.
package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/llm"
	"github.com/factcheck-pro/backend/pkg/jsonextract"
	"github.com/factcheck-pro/backend/pkg/logger"
)

const systemPrompt = `You are a professional fact-checker reviewing a web page for misleading or false content.

Return your analysis in JSON format with these exact keys:
{
"is_misleading": true or false,
"overall_credibility_score": 0-100,
"fact_check_summary": "Short summary of what is accurate and what is not",
"risk_level": "low/medium/high",
"issues_found": ["Each specific problem you found"],
"recommendation": "What a reader should do with this page",
"sources": ["URLs or references supporting your assessment"]
}

Return JSON only.`

var whitespace = regexp.MustCompile(`\s+`)

type Config struct {
	Timeout      time.Duration
	MaxChars     int
	MaxSentences int
}

type Analyzer struct {
	llm          llm.Completer
	httpClient   *http.Client
	maxChars     int
	maxSentences int
}

func NewAnalyzer(completer llm.Completer, cfg Config) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 8000
	}
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = 60
	}
	return &Analyzer{
		llm:          completer,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		maxChars:     cfg.MaxChars,
		maxSentences: cfg.MaxSentences,
	}
}

// Content is the readable part of a fetched page.
type Content struct {
	URL       string
	Title     string
	Sentences []string
}

func (c Content) Text() string {
	return strings.Join(c.Sentences, " ")
}

func (a *Analyzer) AnalyzePage(ctx context.Context, url string) (factcheck.Raw, error) {
	logger.Info("Analyzing page", zap.String("url", url))

	content, err := a.Fetch(ctx, url)
	if err != nil {
		return nil, &factcheck.UpstreamError{Collaborator: "page_analyzer", Err: err}
	}

	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Title: %s\nURL: %s\n\nContent:\n%s", content.Title, content.URL, content.Text()),
		Temperature:  0.2,
		MaxTokens:    1000,
	})
	if err != nil {
		return nil, &factcheck.UpstreamError{Collaborator: "page_analyzer", Err: err}
	}

	var result factcheck.RawResult
	if err := jsonextract.Decode(resp.Content, &result); err != nil {
		var perr *jsonextract.ParseError
		if errors.As(err, &perr) && perr.Reason == jsonextract.ReasonNoJSON {
			return factcheck.RawText(resp.Content), nil
		}
		return nil, err
	}

	if result.AnalyzedTitle == nil {
		result.AnalyzedTitle = &content.Title
	}
	if result.AnalyzedURL == nil {
		result.AnalyzedURL = &content.URL
	}

	logger.Info("Page analyzed",
		zap.String("url", url),
		zap.Int("sentences", len(content.Sentences)),
	)

	return &result, nil
}

// Fetch downloads url and returns its title and leading sentences.
func (a *Analyzer) Fetch(ctx context.Context, url string) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; FactCheckerPro/1.0)")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = "Untitled"
	}

	doc.Find("script, style, noscript, nav, footer, header, aside, form").Remove()

	text := doc.Find("article").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if text == "" {
		return nil, errors.New("no readable content on page")
	}

	sentences, err := a.sentences(text)
	if err != nil {
		return nil, err
	}

	return &Content{URL: url, Title: title, Sentences: sentences}, nil
}

// sentences segments text and keeps whole sentences up to the configured limits.
func (a *Analyzer) sentences(text string) ([]string, error) {
	text = truncate(text, a.maxChars*2)

	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to segment page text: %w", err)
	}

	var (
		out   []string
		total int
	)
	for _, s := range doc.Sentences() {
		sentence := strings.TrimSpace(s.Text)
		if sentence == "" {
			continue
		}
		if len(out) >= a.maxSentences || total+len(sentence) > a.maxChars {
			break
		}
		out = append(out, sentence)
		total += len(sentence) + 1
	}
	if len(out) == 0 {
		out = append(out, truncate(text, a.maxChars))
	}
	return out, nil
}

// truncate cuts text to at most n bytes without splitting a UTF-8 sequence.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
