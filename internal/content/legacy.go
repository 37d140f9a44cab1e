package content

import (
	"encoding/json"
	"strings"
)

// legacyRecord covers the JSON shapes older importers wrote. Key matching is
// case-insensitive, so "correctindex" and "correctIndex" land in the same field.
type legacyRecord struct {
	Question           string          `json:"question"`
	Statement          string          `json:"statement"`
	Enunciado          string          `json:"enunciado"`
	Options            json.RawMessage `json:"options"`
	Opciones           json.RawMessage `json:"opciones"`
	Correct            *int            `json:"correct"`
	CorrectIndex       *int            `json:"correctIndex"`
	CorrectAnswerIndex *int            `json:"correctanswerindex"`
	Explanation        string          `json:"explanation"`
	Feedback           string          `json:"feedback"`
}

func parseLegacyJSON(text string) (draft, string) {
	var rec legacyRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return draft{}, "malformed json: " + err.Error()
	}

	d := draft{
		statement:   firstNonEmpty(rec.Question, rec.Statement, rec.Enunciado),
		correct:     -1,
		explanation: firstNonEmpty(rec.Explanation, rec.Feedback),
	}
	rawOptions := rec.Options
	if len(rawOptions) == 0 {
		rawOptions = rec.Opciones
	}
	options, ok := decodeOptions(rawOptions)
	if !ok {
		return draft{}, "unreadable options"
	}
	d.options = options

	for _, idx := range []*int{rec.CorrectIndex, rec.CorrectAnswerIndex, rec.Correct} {
		if idx != nil {
			d.correct = *idx
			break
		}
	}
	return d, ""
}

// decodeOptions accepts a JSON array of strings, a JSON array encoded as a
// string, or a loosely delimited list such as "[A,B,C]" or `{A,"B, C",D}`.
func decodeOptions(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return splitLooseList(s), true
}

func splitLooseList(s string) []string {
	s = strings.TrimSpace(s)
	var nested []string
	if err := json.Unmarshal([]byte(s), &nested); err == nil {
		return nested
	}
	s = strings.ReplaceAll(s, `\"`, `"`)
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		s = s[1:]
		s = strings.TrimSuffix(strings.TrimSuffix(s, "]"), "}")
	}

	var (
		items   []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			items = append(items, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	items = append(items, current.String())

	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
