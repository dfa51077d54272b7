package service

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The engine's text output is supposed to be pure JSON but in practice
// arrives wrapped in markdown fences, prose, or both. RecoverJSON tries a
// fixed chain of strategies and returns the first syntactically valid JSON
// value, or ok=false when nothing can be recovered. It never fails loudly:
// callers must be able to distinguish "field genuinely absent" from "parse
// failure", so an unrecoverable response is a definitive no-value, not an
// error.
var (
	taggedFenceRe = regexp.MustCompile("(?s)```(?:json|JSON)\\s*(.*?)```")
	anyFenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
)

// RecoverJSON recovers a structured value from the engine's free-form text.
func RecoverJSON(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	// Strategy 1: the whole response is already valid JSON.
	if value, ok := validJSON(trimmed); ok {
		return value, true
	}

	// Strategy 2: a fenced block explicitly tagged as JSON.
	if m := taggedFenceRe.FindStringSubmatch(trimmed); m != nil {
		if value, ok := validJSON(strings.TrimSpace(m[1])); ok {
			return value, true
		}
	}

	// Strategy 3: any fenced block.
	if m := anyFenceRe.FindStringSubmatch(trimmed); m != nil {
		if value, ok := validJSON(strings.TrimSpace(m[1])); ok {
			return value, true
		}
	}

	// Strategy 4: the outermost brace or bracket span embedded in prose.
	if value, ok := validJSON(outermostSpan(trimmed)); ok {
		return value, true
	}

	return nil, false
}

// validJSON reports whether s is a JSON object or array and returns it as a
// raw message. Bare scalars are rejected: no phase expects one, and treating
// stray numbers in prose as results would defeat the recovery chain.
func validJSON(s string) (json.RawMessage, bool) {
	if s == "" {
		return nil, false
	}
	if s[0] != '{' && s[0] != '[' {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

// outermostSpan extracts the first-opening-to-last-closing brace or bracket
// span, whichever bracket kind opens first.
func outermostSpan(s string) string {
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start, closer := objStart, "}"
	if objStart == -1 || (arrStart != -1 && arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
