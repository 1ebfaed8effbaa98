// Package preview renders WhatsApp-formatted text as HTML so a message can
// be checked in a browser before it is sent.
package preview

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
	// WhatsApp keeps every line break
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var (
	boldRe        = regexp.MustCompile(`\*([^*\n]+)\*`)
	strikeRe      = regexp.MustCompile(`~([^~\n]+)~`)
	placeholderRe = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)
)

// ToMarkdown rewrites WhatsApp markup into the CommonMark equivalent.
// Monospace segments are copied through untouched.
func ToMarkdown(text string) string {
	parts := strings.Split(text, "```")
	var sb strings.Builder
	for i, part := range parts {
		if i%2 == 1 && i < len(parts)-1 {
			if strings.Contains(part, "\n") {
				sb.WriteString("\n```\n" + strings.Trim(part, "\n") + "\n```\n")
			} else {
				sb.WriteString("`" + part + "`")
			}
			continue
		}
		if i%2 == 1 {
			// unterminated fence: keep it literal
			sb.WriteString("```")
		}
		part = boldRe.ReplaceAllString(part, "**$1**")
		part = strikeRe.ReplaceAllString(part, "~~$1~~")
		sb.WriteString(part)
	}
	return sb.String()
}

// Render converts a WhatsApp message into an HTML fragment wrapped in a
// bubble div. Raw HTML in the message is not rendered.
func Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(ToMarkdown(text)), &buf); err != nil {
		return "", err
	}
	return wrapBubble(markPlaceholders(buf.String())), nil
}

func markPlaceholders(h string) string {
	return placeholderRe.ReplaceAllString(h, `<span class="wa-placeholder">{{$1}}</span>`)
}

func wrapBubble(h string) string {
	return `<div class="wa-bubble">` + strings.TrimSpace(h) + `</div>`
}
