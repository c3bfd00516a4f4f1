// Package jsonextract pulls a JSON object out of free-form model output.
//
// The extraction is a heuristic: code fences are stripped, then everything
// from the first '{' to the last '}' is taken as the object. A reply carrying
// two separate objects yields a region that does not parse, which surfaces as
// a ParseError with the raw text attached.
package jsonextract

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	ReasonNoJSON      = "No JSON found in response"
	ReasonInvalidJSON = "Failed to parse cleaned JSON"
)

var fencePattern = regexp.MustCompile("(?i)```(json)?")

// ParseError reports a reply that did not contain a usable object.
type ParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// StripFences removes markdown code fence markers and surrounding whitespace.
func StripFences(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}

// Object returns the brace-delimited region of text after fences are removed.
func Object(text string) (string, error) {
	cleaned := StripFences(text)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return "", &ParseError{Reason: ReasonNoJSON, Raw: text}
	}
	return cleaned[start : end+1], nil
}

// Decode extracts the object from text and unmarshals it into dst.
func Decode(text string, dst any) error {
	obj, err := Object(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return &ParseError{Reason: ReasonInvalidJSON, Raw: text, Err: err}
	}
	return nil
}
