package util

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoJSONSpan is returned when text holds no {...} span.
	ErrNoJSONSpan = errors.New("no valid JSON structure found in message content")
	// ErrMalformedJSON is returned when the located span is not valid JSON.
	ErrMalformedJSON = errors.New("malformed JSON")
	// ErrNotObject is returned when valid JSON is not an object.
	ErrNotObject = errors.New("JSON value is not an object")
)

// ExtractJSONSpan returns the text between the first '{' and the last '}'
// inclusive. It does not check that the span is well-formed.
func ExtractJSONSpan(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return "", ErrNoJSONSpan
	}
	return text[start : end+1], nil
}

// CheckObject verifies that raw is syntactically valid JSON holding an object.
func CheckObject(raw string) error {
	if !gjson.Valid(raw) {
		return ErrMalformedJSON
	}
	if !gjson.Parse(raw).IsObject() {
		return ErrNotObject
	}
	return nil
}
