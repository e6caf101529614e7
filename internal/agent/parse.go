package agent

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBlockRegex extracts a JSON payload from a fenced markdown block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// trailingSyntaxRegex strips JSON punctuation a model sometimes leaks
// into the tail of a string field even under a forced JSON format.
var trailingSyntaxRegex = regexp.MustCompile("[}\\]\\[{,\"'`]+$")

// extractJSON pulls the JSON object out of a model response that may
// wrap it in a markdown fence or surround it with prose.
func extractJSON(response string) (string, error) {
	content := strings.TrimSpace(response)

	if matches := jsonBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
		content = strings.TrimSpace(matches[1])
	} else {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start == -1 || end == -1 || end < start {
			return "", fmt.Errorf("no JSON object found in response")
		}
		content = content[start : end+1]
	}

	if content == "" {
		return "", fmt.Errorf("empty JSON payload in response")
	}
	return content, nil
}

// decodeJSONResponse unmarshals the JSON object embedded in a model
// response into out.
func decodeJSONResponse(response string, out interface{}) error {
	payload, err := extractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to unmarshal model response: %w", err)
	}
	return nil
}

// sanitizeText removes trailing JSON syntax characters from a string
// field.
func sanitizeText(s string) string {
	return strings.TrimSpace(trailingSyntaxRegex.ReplaceAllString(strings.TrimSpace(s), ""))
}
