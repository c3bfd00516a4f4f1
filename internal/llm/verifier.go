package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/pkg/jsonextract"
	"github.com/factcheck-pro/backend/pkg/logger"
)

const claimSystemPrompt = `You are a professional fact-checker. Evaluate the claim you are given using well-established, verifiable knowledge.

Return your analysis in JSON format with these exact keys:
{
"claim": "The claim as you understood it",
"is_correct": true or false,
"confidence_score": 0-100,
"category": "Science/Health/Politics/History/etc.",
"sources": ["List of URLs or references supporting your conclusion"],
"explanation": "Detailed explanation of why this claim is true or false with evidence"
}

Return JSON only.`

// Completer produces one chat completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Verifier judges free-text claims with a chat model.
type Verifier struct {
	llm Completer
}

func NewVerifier(llm Completer) *Verifier {
	return &Verifier{llm: llm}
}

// VerifyClaim returns the model's verdict. A reply without any JSON object is
// passed on as factcheck.RawText; a reply with a malformed object is an error.
func (v *Verifier) VerifyClaim(ctx context.Context, text string) (factcheck.Raw, error) {
	resp, err := v.llm.Complete(ctx, CompletionRequest{
		SystemPrompt: claimSystemPrompt,
		UserPrompt:   fmt.Sprintf("Fact-check this claim:\n\n%s", text),
		Temperature:  0.2,
		MaxTokens:    800,
	})
	if err != nil {
		return nil, &factcheck.UpstreamError{Collaborator: "fact_checker", Err: err}
	}

	var result factcheck.RawResult
	if err := jsonextract.Decode(resp.Content, &result); err != nil {
		var perr *jsonextract.ParseError
		if errors.As(err, &perr) && perr.Reason == jsonextract.ReasonNoJSON {
			logger.Warn("Fact checker replied without JSON", zap.Int("reply_length", len(resp.Content)))
			return factcheck.RawText(resp.Content), nil
		}
		return nil, err
	}

	logger.Info("Claim verified", zap.Int("reply_length", len(resp.Content)))

	return &result, nil
}
