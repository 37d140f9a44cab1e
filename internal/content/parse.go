// Package content turns heterogeneous question records into validated questions.
//
// Parsing never fails with an error: every record yields either Parsed or Skipped,
// and callers switch on the outcome.
package content

import (
	"strings"
	"unicode/utf8"

	"exam-duel-service/internal/domain"
)

const (
	// MaxOptions is the most options a platform poll accepts.
	MaxOptions = 10
	// MaxOptionRunes caps the text of a single option.
	MaxOptionRunes = 100
	// MinOptions is the fewest options a usable question may have.
	MinOptions = 2
)

// Outcome is the result of parsing one raw record: Parsed or Skipped.
type Outcome interface {
	outcome()
}

// Parsed carries a question that passed validation.
type Parsed struct {
	Question domain.Question
}

// Skipped explains why a record cannot be used.
type Skipped struct {
	Reason string
}

func (Parsed) outcome()  {}
func (Skipped) outcome() {}

func skip(reason string) Outcome {
	return Skipped{Reason: reason}
}

// Parse detects the record format and returns a validated question or the skip reason.
func Parse(raw domain.RawQuestion) Outcome {
	text := strings.TrimSpace(raw.Content)
	if text == "" {
		return skip("empty content")
	}

	var (
		draft  draft
		reason string
	)
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		draft, reason = parseLegacyJSON(text)
	} else {
		draft, reason = parseGIFT(text)
	}
	if reason != "" {
		return skip(reason)
	}

	q, reason := draft.validate()
	if reason != "" {
		return skip(reason)
	}
	q.Ref = raw.ID
	q.Source = raw.Source
	return Parsed{Question: q}
}

// draft is a question before normalisation; correct is -1 when unknown.
type draft struct {
	statement   string
	options     []string
	correct     int
	explanation string
}

func (d draft) validate() (domain.Question, string) {
	statement := collapseSpace(d.statement)
	if statement == "" {
		return domain.Question{}, "missing statement"
	}
	if d.correct < 0 {
		return domain.Question{}, "no correct option"
	}
	if d.correct >= len(d.options) {
		return domain.Question{}, "correct option out of range"
	}

	options := make([]string, 0, len(d.options))
	correct := -1
	for i, opt := range d.options {
		opt = collapseSpace(stripWeight(opt))
		if opt == "" {
			if i == d.correct {
				return domain.Question{}, "correct option is empty"
			}
			continue
		}
		if i == d.correct {
			correct = len(options)
		}
		options = append(options, Truncate(opt, MaxOptionRunes))
	}
	if len(options) < MinOptions {
		return domain.Question{}, "fewer than 2 options"
	}
	if len(options) > MaxOptions {
		if correct >= MaxOptions {
			return domain.Question{}, "correct option beyond option limit"
		}
		options = options[:MaxOptions]
	}

	return domain.Question{
		Statement:    statement,
		Options:      options,
		CorrectIndex: correct,
		Explanation:  strings.TrimSpace(d.explanation),
	}, ""
}

// stripWeight removes a leading GIFT weight marker such as "%-33.3%" and stray quotes.
func stripWeight(opt string) string {
	opt = strings.TrimSpace(opt)
	opt = strings.Trim(opt, `"'`)
	if strings.HasPrefix(opt, "%") {
		if end := strings.Index(opt[1:], "%"); end >= 0 {
			weight := opt[1 : end+1]
			if isWeight(weight) {
				opt = opt[end+2:]
			}
		}
	}
	return strings.Trim(strings.TrimSpace(opt), `"'`)
}

func isWeight(s string) bool {
	if s == "" {
		return true
	}
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
		case (r == '-' || r == '+') && i == 0:
		default:
			return false
		}
	}
	return true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate caps s at max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
