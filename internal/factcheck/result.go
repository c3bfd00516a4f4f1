package factcheck

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type SourceType string

const (
	SourceText  SourceType = "text"
	SourceURL   SourceType = "url"
	SourceImage SourceType = "image"
	SourcePage  SourceType = "page"
)

// Raw is a collaborator reply before standardization. The variants are
// *RawResult for structured replies and RawText for anything else.
type Raw interface {
	isRaw()
}

// RawText is a reply that carried no structured record.
type RawText string

func (RawText) isRaw() {}

// RawResult is the union of every field the collaborators are known to
// return. Absent fields stay nil.
type RawResult struct {
	Claim                   *string          `json:"claim,omitempty"`
	IsCorrect               *Flag            `json:"is_correct,omitempty"`
	ConfidenceScore         *Score           `json:"confidence_score,omitempty"`
	Category                *string          `json:"category,omitempty"`
	Sources                 Strings          `json:"sources,omitempty"`
	Explanation             *string          `json:"explanation,omitempty"`
	IsMisleading            *Flag            `json:"is_misleading,omitempty"`
	OverallCredibilityScore *Score           `json:"overall_credibility_score,omitempty"`
	FactCheckSummary        *string          `json:"fact_check_summary,omitempty"`
	AnalyzedTitle           *string          `json:"analyzed_title,omitempty"`
	AnalyzedURL             *string          `json:"analyzed_url,omitempty"`
	Query                   *string          `json:"query,omitempty"`
	RiskLevel               *string          `json:"risk_level,omitempty"`
	IssuesFound             Strings          `json:"issues_found,omitempty"`
	Recommendation          *string          `json:"recommendation,omitempty"`
	ImageDescription        *string          `json:"image_description,omitempty"`
	SourceType              string           `json:"source_type,omitempty"`
	Error                   string           `json:"error,omitempty"`
	RawResponse             string           `json:"raw_response,omitempty"`
	Response                *json.RawMessage `json:"response,omitempty"`

	// Object is the reply object exactly as it was decoded, including keys
	// this struct does not know about.
	Object map[string]json.RawMessage `json:"-"`
}

func (*RawResult) isRaw() {}

// UnmarshalJSON accepts any JSON object. Each known field is decoded on its
// own; a value of an unexpected type leaves that field unset instead of
// failing the whole record.
func (r *RawResult) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = RawResult{Object: obj}

	for key, dst := range map[string]**string{
		"claim":              &r.Claim,
		"category":           &r.Category,
		"explanation":        &r.Explanation,
		"fact_check_summary": &r.FactCheckSummary,
		"analyzed_title":     &r.AnalyzedTitle,
		"analyzed_url":       &r.AnalyzedURL,
		"query":              &r.Query,
		"risk_level":         &r.RiskLevel,
		"recommendation":     &r.Recommendation,
		"image_description":  &r.ImageDescription,
	} {
		if raw, ok := present(obj, key); ok {
			text := textValue(raw)
			*dst = &text
		}
	}
	for key, dst := range map[string]**Flag{
		"is_correct":    &r.IsCorrect,
		"is_misleading": &r.IsMisleading,
	} {
		decodeField(obj, key, dst)
	}
	for key, dst := range map[string]**Score{
		"confidence_score":          &r.ConfidenceScore,
		"overall_credibility_score": &r.OverallCredibilityScore,
	} {
		decodeField(obj, key, dst)
	}
	for key, dst := range map[string]*Strings{
		"sources":      &r.Sources,
		"issues_found": &r.IssuesFound,
	} {
		if raw, ok := present(obj, key); ok {
			var list Strings
			if err := json.Unmarshal(raw, &list); err == nil {
				*dst = list
			}
		}
	}
	for key, dst := range map[string]*string{
		"source_type":  &r.SourceType,
		"error":        &r.Error,
		"raw_response": &r.RawResponse,
	} {
		if raw, ok := present(obj, key); ok {
			*dst = textValue(raw)
		}
	}
	if raw, ok := present(obj, "response"); ok {
		response := append(json.RawMessage(nil), raw...)
		r.Response = &response
	}
	return nil
}

// MarshalJSON writes the decoded object back unchanged. Fields set after
// decoding are added when the object lacks them, and the bookkeeping
// fields (source_type, error, raw_response) always reflect the struct.
func (r RawResult) MarshalJSON() ([]byte, error) {
	type plain RawResult
	typed, err := json.Marshal(plain(r))
	if err != nil || r.Object == nil {
		return typed, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(r.Object)+len(fields))
	for key, value := range r.Object {
		out[key] = value
	}
	for key, value := range fields {
		switch key {
		case "source_type", "error", "raw_response":
			out[key] = value
		default:
			if _, ok := out[key]; !ok {
				out[key] = value
			}
		}
	}
	return json.Marshal(out)
}

func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeField[T any](obj map[string]json.RawMessage, key string, dst **T) {
	raw, ok := present(obj, key)
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = &v
	}
}

// textValue returns a JSON string's contents, or the compact JSON text of
// any other value.
func textValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

// ErrorResult builds the error-shaped reply collaborators return instead of failing.
func ErrorResult(message, rawResponse string) *RawResult {
	return &RawResult{Error: message, RawResponse: rawResponse}
}

// Result is the standardized record returned to clients.
type Result struct {
	SourceType              SourceType `json:"source_type"`
	Timestamp               string     `json:"timestamp"`
	Claim                   string     `json:"claim"`
	IsCorrect               *bool      `json:"is_correct"`
	ConfidenceScore         float64    `json:"confidence_score"`
	Category                string     `json:"category,omitempty"`
	Sources                 []string   `json:"sources"`
	Explanation             string     `json:"explanation"`
	IsMisleading            *bool      `json:"is_misleading,omitempty"`
	OverallCredibilityScore *float64   `json:"overall_credibility_score,omitempty"`
	FactCheckSummary        string     `json:"fact_check_summary,omitempty"`
	AnalyzedTitle           string     `json:"analyzed_title,omitempty"`
	AnalyzedURL             string     `json:"analyzed_url,omitempty"`
	Query                   string     `json:"query,omitempty"`
	RiskLevel               string     `json:"risk_level,omitempty"`
	IssuesFound             []string   `json:"issues_found,omitempty"`
	Recommendation          string     `json:"recommendation,omitempty"`
	ImageDescription        string     `json:"image_description,omitempty"`
}

// Flag is a boolean that also accepts "true"/"false"/"yes"/"no" strings,
// which models emit often enough to matter. Anything else, such as
// "unknown" or "partially true", is an error, and RawResult leaves the
// field unset.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("flag: expected boolean, got %s", data)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		*f = true
	case "false", "no":
		*f = false
	default:
		return fmt.Errorf("flag: unrecognized value %q", s)
	}
	return nil
}

func (f *Flag) Bool() *bool {
	if f == nil {
		return nil
	}
	b := bool(*f)
	return &b
}

// Score is a number that also accepts numeric strings such as "85" or "85%".
// Words like "high" are an error, and RawResult leaves the field unset.
type Score float64

func (s *Score) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Score(n)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("score: expected number, got %s", data)
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(text), "%"), 64)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = Score(n)
	return nil
}

// Strings is a list that also accepts a single string.
type Strings []string

func (l *Strings) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = Strings{single}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("strings: expected list, got %s", data)
	}
	out := make(Strings, 0, len(items))
	for _, item := range items {
		out = append(out, itemString(item))
	}
	*l = out
	return nil
}

// itemString flattens one list entry. Models sometimes cite sources as
// {"title": ..., "url": ...} objects instead of plain strings.
func itemString(item json.RawMessage) string {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(item, &obj); err == nil {
		for _, key := range []string{"url", "link", "source", "title", "text"} {
			if v, ok := obj[key].(string); ok && v != "" {
				return v
			}
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, item); err != nil {
		return string(item)
	}
	return compact.String()
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
