package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeMessage converts text to NFC, replaces control characters with
// spaces, and trims surrounding whitespace.
func NormalizeMessage(text string) string {
	text = norm.NFC.String(text)
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(text)
}

// Length counts runes after NFC normalization.
func Length(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}

// Truncate returns at most limit runes of text. A limit <= 0 disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return strings.TrimRightFunc(text[:i], unicode.IsSpace)
		}
		count++
	}
	return text
}

var titleCaser = cases.Title(language.Und)

// DisplayName turns a voice model identifier such as "en-US_jenny-neural" into
// a label for forms and tables.
func DisplayName(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return ""
	}
	words := strings.FieldsFunc(model, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})
	return titleCaser.String(strings.Join(words, " "))
}
