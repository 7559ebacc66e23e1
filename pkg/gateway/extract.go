package gateway

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedJSONPattern matches a ```json ... ``` fenced block; fencedAnyPattern
// matches an unlabelled ``` ... ``` fenced block. Extraction tries, in
// order: bare JSON, fenced ```json, unlabelled fenced — "extraction uses
// first matching fence" (§4.3.2).
var (
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")
	fencedAnyPattern  = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")
)

// rawTextPreviewLen is the "first ~500 characters" §4.3.3 logs on parse
// failure.
const rawTextPreviewLen = 500

// extractJSON tolerates bare JSON, fenced ```json blocks, and unlabelled
// fenced blocks, returning the first candidate that parses. Grounded on
// react_parser.go's multi-tier, forgiving detection strategy, generalized
// from ReAct sections to JSON extraction.
func extractJSON(text string, target any) error {
	candidates := []string{strings.TrimSpace(text)}
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := fencedAnyPattern.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), target); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errEmptyResponse
	}
	return lastErr
}

var errEmptyResponse = jsonExtractError("empty or unparseable agent response")

type jsonExtractError string

func (e jsonExtractError) Error() string { return string(e) }

// preview truncates text to the first rawTextPreviewLen characters, the
// "first ~500 characters" §4.3.3 logs on parse failure.
func preview(text string) string {
	if len(text) <= rawTextPreviewLen {
		return text
	}
	return text[:rawTextPreviewLen]
}
