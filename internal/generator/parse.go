package generator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns; compiling on every parse is much slower.
var (
	// Matches ```json ... ``` and bare ``` ... ``` fences anywhere in
	// the response, newlines optional.
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\n?([\\s\\S]*?)\n?`{3}")

	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)

	// Greedy so nested structures are captured whole
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// parseJSON unmarshals model output into T, tolerating the formatting
// quirks models produce despite instructions: markdown code fences,
// trailing commas, and prose surrounding the JSON. Strategies run in
// order and the first successful parse wins.
func parseJSON[T any](text string) (T, error) {
	var zero T

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, fmt.Errorf("empty response")
	}

	// Strategy 1: direct parse
	if result, err := tryParse[T](trimmed); err == nil {
		return result, nil
	}

	// Strategy 2: strip code fences
	unfenced := removeCodeFences(trimmed)
	if unfenced != trimmed {
		if result, err := tryParse[T](unfenced); err == nil {
			return result, nil
		}
	}

	// Strategy 3: drop trailing commas
	cleaned := trailingCommaRegex.ReplaceAllString(unfenced, "$1")
	if result, err := tryParse[T](cleaned); err == nil {
		return result, nil
	}

	// Strategy 4: extract JSON from surrounding prose
	if extracted := extractJSON(cleaned); extracted != "" {
		if result, err := tryParse[T](extracted); err == nil {
			return result, nil
		}
	}

	return zero, fmt.Errorf("no parseable JSON in response")
}

func tryParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// removeCodeFences strips markdown fences wrapping the payload
func removeCodeFences(text string) string {
	cleaned := codeFenceRegex.ReplaceAllString(text, "$1")

	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimPrefix(cleaned, "`")
		cleaned = strings.TrimSuffix(cleaned, "`")
	}

	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the first object or array out of mixed content.
// The leading-character check keeps an object from being carved out of
// a larger array.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return arrayRegex.FindString(text)
	}

	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}
