package whatsapp

import (
	"regexp"
	"strings"
)

// Placeholder is shown in place of any variation that could not be generated.
const Placeholder = "*Error generating message*\nPlease try again."

var (
	doubleBoldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	lineBulletRe   = regexp.MustCompile(`(?m)^([ \t]*)[•*][ \t]+`)
	inlineBulletRe = regexp.MustCompile(`•[ \t]+`)
	numberedRe     = regexp.MustCompile(`(?m)^([ \t]*\d+)\.([^\s\d])`)
	doubleItalicRe = regexp.MustCompile(`__(.+?)__`)
)

// Normalize repairs common markdown-isms into WhatsApp markup.
// The rules are applied until nothing changes so the result is stable
// under repeated normalization.
func Normalize(text string) string {
	for {
		next := normalizeOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func normalizeOnce(text string) string {
	text = doubleBoldRe.ReplaceAllString(text, "*$1*")
	text = lineBulletRe.ReplaceAllString(text, "$1- ")
	text = inlineBulletRe.ReplaceAllString(text, "- ")
	text = numberedRe.ReplaceAllString(text, "$1. $2")
	text = doubleItalicRe.ReplaceAllString(text, "_${1}_")
	return text
}

// NormalizeAll returns a normalized copy of every variation.
func NormalizeAll(variations [3]string) [3]string {
	var out [3]string
	for i, v := range variations {
		if strings.TrimSpace(v) == "" {
			v = Placeholder
		}
		out[i] = Normalize(v)
	}
	return out
}
