package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseVerdictJSON extracts a Verdict from an LLM response
func parseVerdictJSON(text string) (*Verdict, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var verdict Verdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	switch {
	case verdict.Confidence < 0:
		verdict.Confidence = 0
	case verdict.Confidence > 1:
		verdict.Confidence = 1
	}
	verdict.DocumentType = strings.ToLower(strings.TrimSpace(verdict.DocumentType))
	if !verdict.IsDocument {
		verdict.DocumentType = ""
	}

	return &verdict, nil
}

