package llm

import (
	"encoding/json"
	"strings"
)

// ParsingErrorMessage is recorded in a degraded result when no parsing
// strategy can recover structured data from the model output.
const ParsingErrorMessage = "Failed to extract valid JSON from ChatGPT response"

// RecoverJSON attempts to recover a JSON object from raw model output.
// Strategies are tried in order, first success wins:
//  1. the whole text as a JSON object
//  2. the first ```json fenced block
//  3. the first ``` fenced block of any tag
//  4. the span from the first '{' to the last '}'
//
// Malformed output is data, not an error: when every strategy fails,
// RecoverJSON returns a degraded payload carrying the original text
// verbatim, and ok=false. It never returns an error.
func RecoverJSON(raw string) (data map[string]any, ok bool) {
	content := strings.TrimSpace(raw)

	if m, err := decodeObject(content); err == nil {
		return m, true
	}

	// The presence of a fence marker commits to that strategy: a fence
	// that cannot be completed or parsed degrades rather than falling
	// through to a weaker strategy.
	switch {
	case strings.Contains(content, "```json"):
		if body, found := fencedBlock(content, "```json"); found {
			if m, err := decodeObject(body); err == nil {
				return m, true
			}
		}
	case strings.Contains(content, "```"):
		if body, found := fencedBlock(content, "```"); found {
			if m, err := decodeObject(body); err == nil {
				return m, true
			}
		}
	default:
		if start := strings.IndexByte(content, '{'); start >= 0 {
			if end := strings.LastIndexByte(content, '}'); end > start {
				if m, err := decodeObject(content[start : end+1]); err == nil {
					return m, true
				}
			}
		}
	}

	return map[string]any{
		"raw_response":  raw,
		"parsing_error": ParsingErrorMessage,
	}, false
}

// fencedBlock returns the trimmed content between the first occurrence
// of the opening fence and the next closing ``` after it.
func fencedBlock(content, open string) (string, bool) {
	start := strings.Index(content, open)
	if start < 0 {
		return "", false
	}
	start += len(open)
	end := strings.Index(content[start:], "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(content[start : start+end]), true
}

func decodeObject(s string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
