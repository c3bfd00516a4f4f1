// Package imageagent submits images to the generative model, extracts the
// verdict from the free-text reply and appends every outcome to the result log.
package imageagent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/gemini"
	"github.com/factcheck-pro/backend/pkg/jsonextract"
	"github.com/factcheck-pro/backend/pkg/logger"
)

const PromptVersion = "image-factcheck/v1"

const Prompt = `Analyze this image and extract any claims, statements, or information that can be fact-checked. Then evaluate whether the information shown is true or false.

Return your analysis in JSON format with these exact keys:
{
"claim": "The main claim or statement extracted from the image",
"is_correct": true or false,
"confidence_score": 0-100,
"category": "Science/Health/Politics/History/etc.",
"sources": ["List of URLs or references supporting your conclusion"],
"explanation": "Detailed explanation of why this claim is true or false with evidence",
"image_description": "Brief description of what's shown in the image"
}`

// Generator sends a prompt with one inline image and returns the reply text.
type Generator interface {
	GenerateWithImage(ctx context.Context, prompt, mimeType, base64Data string) (string, error)
}

// Appender persists one record.
type Appender interface {
	Append(record any) error
}

type Agent struct {
	generator Generator
	results   Appender
	timeout   time.Duration
}

func New(generator Generator, results Appender, timeout time.Duration) *Agent {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Agent{generator: generator, results: results, timeout: timeout}
}

// ProcessImageFile reads the image at path and runs Process on it.
func (a *Agent) ProcessImageFile(ctx context.Context, path, mimeType string) (*factcheck.RawResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return a.Process(ctx, base64.StdEncoding.EncodeToString(data), mimeType), nil
}

// Process never fails: transport, decode and shape problems come back as a
// record with Error set. The record is tagged as an image result and
// appended to the result log before it is returned.
func (a *Agent) Process(ctx context.Context, base64Data, mimeType string) *factcheck.RawResult {
	result := a.query(ctx, base64Data, mimeType)
	result.SourceType = string(factcheck.SourceImage)

	if a.results != nil {
		if err := a.results.Append(result); err != nil {
			logger.Error("Failed to append image result to log", zap.Error(err))
		}
	}
	return result
}

func (a *Agent) query(ctx context.Context, base64Data, mimeType string) *factcheck.RawResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	logger.Info("Submitting image for fact-check",
		zap.String("mime_type", mimeType),
		zap.String("prompt_version", PromptVersion),
		zap.Int("payload_bytes", len(base64Data)),
	)

	text, err := a.generator.GenerateWithImage(ctx, Prompt, mimeType, base64Data)
	if err != nil {
		var invalid *gemini.InvalidResponseError
		if errors.As(err, &invalid) {
			res := factcheck.ErrorResult(invalid.Error(), "")
			if json.Valid(invalid.Body) {
				body := json.RawMessage(invalid.Body)
				res.Response = &body
			} else {
				res.RawResponse = string(invalid.Body)
			}
			return res
		}
		return factcheck.ErrorResult(fmt.Sprintf("Failed to fetch or parse API response: %v", err), "")
	}

	return ExtractResult(text)
}

// ExtractResult parses the verdict embedded in a model reply.
func ExtractResult(text string) *factcheck.RawResult {
	var result factcheck.RawResult
	if err := jsonextract.Decode(text, &result); err != nil {
		var perr *jsonextract.ParseError
		if errors.As(err, &perr) {
			logger.Warn("Could not extract JSON from image reply", zap.String("reason", perr.Reason))
			return factcheck.ErrorResult(perr.Reason, text)
		}
		return factcheck.ErrorResult(err.Error(), text)
	}
	return &result
}
