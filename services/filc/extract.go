package filc

import (
	"encoding/json"
	"strings"
)

// NoResponseFallback is returned when no known envelope variant matches.
const NoResponseFallback = "No response"

// ExtractResponseText pulls the reply text out of an agent response payload.
// Deployed agent versions have answered in several envelope shapes over time,
// so the parsers run in a fixed order from most to least specific:
//
//  1. outputs[0].outputs[0].results.message.text
//  2. result.message.text
//  3. result as a bare string
//  4. output as a bare string
//  5. the whole payload as a bare string
//
// The first parser that yields a non-empty string wins.
func ExtractResponseText(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return NoResponseFallback
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		// Not a JSON object; a bare JSON string or raw text is the reply.
		var s string
		if err := json.Unmarshal(payload, &s); err == nil && s != "" {
			return s
		}
		return trimmed
	}

	parsers := []func(map[string]json.RawMessage) string{
		extractFromOutputsTree,
		extractFromResultMessage,
		extractResultString,
		extractOutputString,
	}
	for _, parse := range parsers {
		if text := parse(doc); text != "" {
			return text
		}
	}
	return NoResponseFallback
}

func extractFromOutputsTree(doc map[string]json.RawMessage) string {
	raw, ok := doc["outputs"]
	if !ok {
		return ""
	}
	var outer []struct {
		Outputs []struct {
			Results struct {
				Message struct {
					Text string `json:"text"`
				} `json:"message"`
			} `json:"results"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return ""
	}
	if len(outer) == 0 || len(outer[0].Outputs) == 0 {
		return ""
	}
	return outer[0].Outputs[0].Results.Message.Text
}

func extractFromResultMessage(doc map[string]json.RawMessage) string {
	raw, ok := doc["result"]
	if !ok {
		return ""
	}
	var result struct {
		Message struct {
			Text string `json:"text"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return ""
	}
	return result.Message.Text
}

func extractResultString(doc map[string]json.RawMessage) string {
	raw, ok := doc["result"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func extractOutputString(doc map[string]json.RawMessage) string {
	raw, ok := doc["output"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
