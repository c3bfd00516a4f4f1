package factcheck

import (
	"errors"
	"time"
)

// Standardize maps any collaborator reply onto Result. It fails only when
// the reply itself reports an error. Every other shape yields a record
// with is_correct, confidence_score and sources set.
func Standardize(raw Raw, source SourceType, now time.Time) (*Result, error) {
	result := &Result{
		SourceType: source,
		Timestamp:  now.Format(time.RFC3339Nano),
	}

	switch r := raw.(type) {
	case *RawResult:
		if r == nil {
			result.Sources = []string{}
			return result, nil
		}
		if r.Error != "" {
			return nil, &UpstreamError{Collaborator: string(source), Err: errors.New(r.Error), Raw: r.RawResponse}
		}
		standardizeRecord(result, r)
	case RawText:
		result.Explanation = string(r)
		result.Sources = []string{}
	default:
		result.Sources = []string{}
	}

	return result, nil
}

func standardizeRecord(result *Result, r *RawResult) {
	result.Claim = str(r.Claim)
	result.IsCorrect = r.IsCorrect.Bool()
	result.Category = str(r.Category)
	result.Explanation = str(r.Explanation)
	result.IsMisleading = r.IsMisleading.Bool()
	result.FactCheckSummary = str(r.FactCheckSummary)
	result.AnalyzedTitle = str(r.AnalyzedTitle)
	result.AnalyzedURL = str(r.AnalyzedURL)
	result.Query = str(r.Query)
	result.RiskLevel = str(r.RiskLevel)
	result.Recommendation = str(r.Recommendation)
	result.ImageDescription = str(r.ImageDescription)
	if len(r.IssuesFound) > 0 {
		result.IssuesFound = append([]string(nil), r.IssuesFound...)
	}
	if r.OverallCredibilityScore != nil {
		v := clampScore(float64(*r.OverallCredibilityScore))
		result.OverallCredibilityScore = &v
	}

	if result.IsCorrect == nil && result.IsMisleading != nil {
		v := !*result.IsMisleading
		result.IsCorrect = &v
	}

	switch {
	case r.ConfidenceScore != nil:
		result.ConfidenceScore = clampScore(float64(*r.ConfidenceScore))
	case result.OverallCredibilityScore != nil:
		result.ConfidenceScore = *result.OverallCredibilityScore
	}

	if r.Explanation == nil && r.FactCheckSummary != nil {
		result.Explanation = *r.FactCheckSummary
	}

	result.Sources = []string{}
	if r.Sources != nil {
		result.Sources = append(result.Sources, r.Sources...)
	}
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
