package whatsapp

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
)

// Occurrence is one formatted span inside a message. Start and End are
// rune offsets into the message, End exclusive.
type Occurrence struct {
	Type    string `json:"format_type"`
	Start   int    `json:"position_start"`
	End     int    `json:"position_end"`
	Content string `json:"content"`
}

const (
	FormatBold          = "bold"
	FormatItalic        = "italic"
	FormatStrikethrough = "strikethrough"
	FormatMonospace     = "monospace"
	FormatBulletList    = "bullet_list"
	FormatNumberedList  = "numbered_list"
	FormatEmoji         = "emoji"
	FormatPlaceholder   = "placeholder"
)

var spanPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{FormatMonospace, regexp.MustCompile("(?s)```(.+?)```")},
	{FormatBold, regexp.MustCompile(`\*([^*\n]+)\*`)},
	{FormatItalic, regexp.MustCompile(`(?:^|[^\w])_([^_\n]+)_`)},
	{FormatStrikethrough, regexp.MustCompile(`~([^~\n]+)~`)},
	{FormatBulletList, regexp.MustCompile(`(?m)^[ \t]*- (.+)$`)},
	{FormatNumberedList, regexp.MustCompile(`(?m)^[ \t]*\d+\. (.+)$`)},
	{FormatPlaceholder, regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)},
}

// Analyze lists the formatting used in text, ordered by position.
func Analyze(text string) []Occurrence {
	var out []Occurrence
	for _, p := range spanPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			// italic may have consumed one leading boundary character
			if p.kind == FormatItalic && text[start] != '_' {
				_, size := utf8.DecodeRuneInString(text[start:])
				start += size
			}
			out = append(out, Occurrence{
				Type:    p.kind,
				Start:   runeOffset(text, start),
				End:     runeOffset(text, end),
				Content: text[m[2]:m[3]],
			})
		}
	}
	out = append(out, emojiOccurrences(text)...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func emojiOccurrences(text string) []Occurrence {
	if !gomoji.ContainsEmoji(text) {
		return nil
	}
	var out []Occurrence
	seen := make(map[string]bool)
	for _, e := range gomoji.FindAll(text) {
		if e.Character == "" || seen[e.Character] {
			continue
		}
		seen[e.Character] = true
		offset := 0
		for {
			idx := strings.Index(text[offset:], e.Character)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(e.Character)
			out = append(out, Occurrence{
				Type:    FormatEmoji,
				Start:   runeOffset(text, start),
				End:     runeOffset(text, end),
				Content: e.Character,
			})
			offset = end
		}
	}
	return out
}

func runeOffset(text string, byteOffset int) int {
	return utf8.RuneCountInString(text[:byteOffset])
}
