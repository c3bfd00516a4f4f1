// Package gemini calls the Generative Language generateContent endpoint with
// a text prompt and one inline image.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/metrics"
	"github.com/factcheck-pro/backend/pkg/circuitbreaker"
	"github.com/factcheck-pro/backend/pkg/logger"
	"github.com/factcheck-pro/backend/pkg/retry"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// InvalidResponseError is a 200 reply without candidates[0].content.parts[0].text.
type InvalidResponseError struct {
	Body []byte
}

func (e *InvalidResponseError) Error() string {
	return "Invalid response structure from Gemini API"
}

// StatusError is a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini returned status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	retry      retry.Config
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	cb := circuitbreaker.New("gemini", circuitbreaker.Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		IsFailure:        isUpstreamFailure,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.Named("gemini"),
	})

	logger.Info("Gemini client initialized", zap.String("model", cfg.Model))

	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         cb,
		retry:      retry.FromAttempts(cfg.MaxAttempts, logger.Named("gemini")),
	}
}

// isUpstreamFailure keeps client-side mistakes from tripping the breaker.
func isUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateWithImage sends prompt plus the base64 image and returns the text
// of the first candidate part.
func (c *Client) GenerateWithImage(ctx context.Context, prompt, mimeType, base64Data string) (string, error) {
	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: mimeType, Data: base64Data}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	var text string
	err = c.cb.Execute(func() error {
		return retry.Do(ctx, c.retry, func(ctx context.Context) error {
			out, err := c.post(ctx, body)
			if err != nil {
				if !isUpstreamFailure(err) || isInvalidResponse(err) {
					return retry.Permanent(err)
				}
				return err
			}
			text = out
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func isInvalidResponse(err error) bool {
	var ir *InvalidResponseError
	return errors.As(err, &ir)
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 || parsed.Candidates[0].Content == nil ||
		len(parsed.Candidates[0].Content.Parts) == 0 || parsed.Candidates[0].Content.Parts[0].Text == nil {
		return "", &InvalidResponseError{Body: respBody}
	}

	return *parsed.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
