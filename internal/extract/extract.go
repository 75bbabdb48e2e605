// Package extract pulls structured JSON objects out of free-text model
// replies, which routinely wrap JSON in prose or markdown code fences.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fenced matches a ``` or ```json code fence and captures its brace-delimited
// interior.
var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(\\{.*?\\})\\s*\\n?```")

// braced matches the first balanced brace group, supporting one level of
// nested braces.
var braced = regexp.MustCompile(`(?s)\{(?:[^{}]|\{[^{}]*\})*\}`)

// Object extracts a JSON object from text using a tiered strategy: the whole
// text, then the interior of a code fence, then the first balanced brace
// group. The first tier that parses wins; if none do, ok is false.
func Object(text string) (map[string]any, bool) {
	if obj, ok := parse(strings.TrimSpace(text)); ok {
		return obj, true
	}

	if m := fenced.FindStringSubmatch(text); m != nil {
		if obj, ok := parse(m[1]); ok {
			return obj, true
		}
	}

	if m := braced.FindString(text); m != "" {
		if obj, ok := parse(m); ok {
			return obj, true
		}
	}

	return nil, false
}

func parse(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
