package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// TryParseObject extracts a JSON object from raw model text. It tries, in
// order: a direct parse, the substring from the first "{" to the last "}",
// and a mechanical repair of that substring (unquoted keys, trailing commas,
// code fences and similar model artifacts). Returns nil when no object can
// be recovered.
func TryParseObject(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if obj := parseObject(text); obj != nil {
		return obj
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	snippet := text[start : end+1]

	if obj := parseObject(snippet); obj != nil {
		return obj
	}

	fixed, err := jsonrepair.JSONRepair(snippet)
	if err != nil {
		return nil
	}
	return parseObject(fixed)
}

func parseObject(text string) map[string]any {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return obj
}
