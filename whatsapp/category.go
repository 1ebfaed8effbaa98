package whatsapp

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
)

// Category is the business purpose of a message. It decides which
// structural pattern the final text has to follow.
type Category string

const (
	Marketing      Category = "marketing"
	Authentication Category = "authentication"
	Utility        Category = "utility"
	Service        Category = "service"
)

// Categories lists every supported category in display order.
var Categories = []Category{Marketing, Authentication, Utility, Service}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var (
	boldPairRe   = regexp.MustCompile(`\*[^*\n]+\*`)
	labelValueRe = regexp.MustCompile(`^[^:]{1,40}:\s*\S`)
	authCodeRe   = regexp.MustCompile(`Your .+ is: \*.+\*`)
	greetingRe   = regexp.MustCompile(`^Hi .+,\s*$`)
)

// PatternError lists the structural requirements a message failed.
type PatternError struct {
	Category Category
	Missing  []string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%s message does not match its pattern: %s", e.Category, strings.Join(e.Missing, "; "))
}

// CheckPattern verifies that text carries the mandatory lines of its
// category and that every formatting marker is closed.
func CheckPattern(category Category, text string) error {
	lines := strings.Split(text, "\n")
	var missing []string

	switch category {
	case Marketing:
		if !anyLine(lines, func(l string) bool { return StartsWithEmoji(l) && boldPairRe.MatchString(l) }) {
			missing = append(missing, "emoji headline line with *bold* text")
		}
		if countLines(lines, StartsWithEmoji) < 2 {
			missing = append(missing, "emoji-prefixed benefit or CTA lines")
		}
		if !anyLine(lines, func(l string) bool { return strings.TrimSpace(l) == "" }) {
			missing = append(missing, "blank line between sections")
		}
	case Utility:
		if !anyLine(lines, func(l string) bool { return StartsWithEmoji(l) && boldPairRe.MatchString(l) }) {
			missing = append(missing, "emoji title line with *bold* text")
		}
		if !anyLine(lines, func(l string) bool {
			return StartsWithEmoji(l) && labelValueRe.MatchString(stripLeadingEmoji(l))
		}) {
			missing = append(missing, "emoji label: value line")
		}
	case Authentication:
		if !anyLine(lines, authCodeRe.MatchString) {
			missing = append(missing, "'Your <type> is: *<code>*' line")
		}
		if !anyLine(lines, func(l string) bool { return strings.HasPrefix(strings.TrimSpace(l), "\u26a0") }) {
			missing = append(missing, "⚠️ warning line")
		}
	case Service:
		if !anyLine(lines, func(l string) bool { return greetingRe.MatchString(strings.TrimSpace(l)) }) {
			missing = append(missing, "'Hi <name>,' greeting line")
		}
		if countLines(lines, StartsWithEmoji) < 1 {
			missing = append(missing, "emoji-prefixed detail line")
		}
	default:
		missing = append(missing, fmt.Sprintf("unknown category %q", category))
	}

	missing = append(missing, unclosedMarkers(text)...)
	if len(missing) > 0 {
		return &PatternError{Category: category, Missing: missing}
	}
	return nil
}

// StartsWithEmoji reports whether the first visible character of line is an emoji.
func StartsWithEmoji(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !gomoji.ContainsEmoji(trimmed) {
		return false
	}
	for _, e := range gomoji.FindAll(trimmed) {
		if e.Character != "" && strings.HasPrefix(trimmed, e.Character) {
			return true
		}
	}
	return false
}

func stripLeadingEmoji(line string) string {
	trimmed := strings.TrimSpace(line)
	for _, e := range gomoji.FindAll(trimmed) {
		if e.Character != "" && strings.HasPrefix(trimmed, e.Character) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, e.Character))
		}
	}
	return trimmed
}

// unclosedMarkers reports formatting markers that are opened but never
// closed. Monospace fences are counted over the whole text, the inline
// markers per line since WhatsApp does not carry them across line breaks.
// Inline markers only count at word boundaries, so SAVE_20 or 5*3 are
// plain text.
func unclosedMarkers(text string) []string {
	var out []string
	if strings.Count(text, "```")%2 != 0 {
		out = append(out, "unclosed ``` block")
	}
	withoutFences := strings.ReplaceAll(text, "```", "")
	for i, line := range strings.Split(withoutFences, "\n") {
		body := line
		if t := strings.TrimLeft(line, " \t"); strings.HasPrefix(t, "- ") {
			body = t[2:]
		}
		for _, m := range []rune{'*', '~'} {
			if leftOpen(body, m) {
				out = append(out, fmt.Sprintf("unclosed %c on line %d", m, i+1))
			}
		}
		if leftOpen(stripPlaceholders(body), '_') && !strings.Contains(body, "://") {
			out = append(out, fmt.Sprintf("unclosed _ on line %d", i+1))
		}
	}
	return out
}

// leftOpen pairs marker runes the way WhatsApp does: an opener follows
// the line start or a non-word rune and precedes a visible rune, a closer
// follows a visible rune and precedes the line end or a non-word rune.
// Markers that can be neither are literal.
func leftOpen(line string, marker rune) bool {
	runes := []rune(line)
	open := false
	for i, r := range runes {
		if r != marker {
			continue
		}
		hasPrev, hasNext := i > 0, i+1 < len(runes)
		var prev, next rune
		if hasPrev {
			prev = runes[i-1]
		}
		if hasNext {
			next = runes[i+1]
		}
		opener := (!hasPrev || !isWordRune(prev)) && hasNext && !unicode.IsSpace(next) && next != marker
		closer := hasPrev && !unicode.IsSpace(prev) && prev != marker && (!hasNext || !isWordRune(next))
		switch {
		case open && closer:
			open = false
		case !open && opener:
			open = true
		}
	}
	return open
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

var placeholderRe = regexp.MustCompile(`\{\{[^}]*\}\}`)

func stripPlaceholders(s string) string {
	return placeholderRe.ReplaceAllString(s, "")
}

func anyLine(lines []string, pred func(string) bool) bool {
	return countLines(lines, pred) > 0
}

func countLines(lines []string, pred func(string) bool) int {
	n := 0
	for _, l := range lines {
		if pred(l) {
			n++
		}
	}
	return n
}
