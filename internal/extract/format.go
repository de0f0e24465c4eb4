package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// premisePattern matches a premise marker: Roman numerals I to VII or digits,
// then a dot, preceded by start of text, whitespace, '?' or '!'.
var premisePattern = regexp.MustCompile(`(\s|^|[?!])(VII|VI|IV|V|III|II|I|\d+)\.`)

var (
	newlineSpace  = regexp.MustCompile(`\n\s+`)
	blankLines    = regexp.MustCompile(`\n\s*\n`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// FormatText puts each premise of a question stem on its own line and
// normalizes the result to NFC. A marker only counts when followed by
// whitespace or a capital letter, so decimals and dates stay intact.
func FormatText(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	last := 0
	for _, m := range premisePattern.FindAllStringSubmatchIndex(text, -1) {
		end := m[1]
		next, _ := utf8.DecodeRuneInString(text[end:])
		if end >= len(text) || !(unicode.IsSpace(next) || ('A' <= next && next <= 'Z')) {
			continue
		}

		b.WriteString(text[last:m[0]])
		if sep := text[m[2]:m[3]]; sep == "?" || sep == "!" {
			b.WriteString(sep)
		}
		b.WriteString("\n")
		b.WriteString(text[m[4]:m[5]])
		b.WriteString(".")
		if !unicode.IsSpace(next) {
			b.WriteString(" ")
		}
		last = end
	}
	b.WriteString(text[last:])

	out := trailingSpace.ReplaceAllString(b.String(), "\n")
	out = newlineSpace.ReplaceAllString(out, "\n")
	out = blankLines.ReplaceAllString(out, "\n")
	out = strings.TrimSpace(out)
	return norm.NFC.String(out)
}

// FormatOption trims and normalizes an option text.
func FormatOption(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
