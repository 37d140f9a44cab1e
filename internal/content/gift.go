package content

import "strings"

const generalFeedbackMarker = "####"

// parseGIFT reads the GIFT dialect used by the question bank:
//
//	// comment
//	::Title:: Statement text {
//	=correct answer#feedback
//	~%-33.33333%wrong answer
//	#### general feedback
//	}
func parseGIFT(text string) (draft, string) {
	text = stripComments(text)
	text = stripTitle(text)

	open := indexUnescaped(text, '{')
	if open < 0 {
		return draft{}, "no answer block"
	}
	closeIdx := indexUnescaped(text[open+1:], '}')
	if closeIdx < 0 {
		return draft{}, "unterminated answer block"
	}
	statement := unescape(strings.TrimSpace(text[:open]))
	block := text[open+1 : open+1+closeIdx]

	explanation := ""
	if i := strings.Index(block, generalFeedbackMarker); i >= 0 {
		explanation = unescape(strings.TrimSpace(strings.TrimLeft(block[i:], "#")))
		block = block[:i]
	}

	d := draft{statement: statement, correct: -1, explanation: explanation}
	for _, opt := range splitOptions(block) {
		if opt.correct && d.correct < 0 {
			d.correct = len(d.options)
		}
		d.options = append(d.options, opt.text)
	}
	if len(d.options) == 0 {
		return draft{}, "no options in answer block"
	}
	return d, ""
}

type giftOption struct {
	correct bool
	text    string
}

// splitOptions cuts the answer block at every unescaped "=" or "~", so options
// may sit on one line or wrap over several.
func splitOptions(block string) []giftOption {
	var (
		out     []giftOption
		start   = -1
		correct bool
	)
	flush := func(end int) {
		if start >= 0 {
			out = append(out, giftOption{correct: correct, text: optionText(block[start:end])})
		}
	}
	for i := 0; i < len(block); i++ {
		switch block[i] {
		case '\\':
			i++
		case '=', '~':
			flush(i)
			start, correct = i+1, block[i] == '='
		}
	}
	flush(len(block))
	return out
}

// optionText drops per-option feedback ("#...") and unescapes the rest.
func optionText(s string) string {
	if i := indexUnescaped(s, '#'); i >= 0 {
		s = s[:i]
	}
	return unescape(strings.TrimSpace(s))
}

func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func stripTitle(text string) string {
	if !strings.HasPrefix(text, "::") {
		return text
	}
	if end := strings.Index(text[2:], "::"); end >= 0 {
		return strings.TrimSpace(text[end+4:])
	}
	return text
}

func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == c {
			return i
		}
	}
	return -1
}

var giftUnescaper = strings.NewReplacer(`\{`, "{", `\}`, "}", `\=`, "=", `\~`, "~", `\#`, "#", `\:`, ":", `\n`, " ")

func unescape(s string) string {
	return giftUnescaper.Replace(s)
}
