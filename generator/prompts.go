package generator

import (
	"fmt"
	"strings"

	"wa_message_composer/whatsapp"
)

// Prompt wording is tunable; each stage only depends on the JSON shape the
// system prompt asks for. Placeholders in {braces} are filled from the
// stage bindings, {{name}} stays literal.

const markupRules = `WhatsApp formatting rules:
- bold is *text* with single asterisks, italic is _text_, strikethrough is ~text~, monospace is ` + "```text```" + `
- never use ** or __ or markdown headings
- bullet lists start lines with "- ", numbered lists use "1. "
- put a blank line between sections and a single line break inside a section
- close every formatting marker you open
- personalization placeholders use double braces, for example {{name}}`

const intentSystem = `You analyze requests for WhatsApp Business messages.
Identify what the sender wants to achieve and who they are talking to.
Reply with a single JSON object and nothing else:
{"coreIntent": "...", "tone": "...", "targetAudience": "...", "contextualNuance": "...",
 "keyElements": ["..."], "creativeAngles": ["..."], "emotionalHooks": ["..."], "psychologicalPrinciples": ["..."]}
Every list needs at least one entry.`

const intentUser = `Message category: {request.messageCategory}
Media: {request.mediaPresentation}
Requested tone: {request.voiceTone}

Source text:
{request.sourceText}

Existing drafts to consider:
{seeds}`

const copySystem = `You are a copywriter for WhatsApp Business messages.
Write three distinct creative variants from the analysis you are given.
Reply with a single JSON object and nothing else:
{"variants": [{"headline": "...", "body": "...", "callToAction": "...", "tone": "..."}, ... exactly 3 ...],
 "suggestedEmojis": ["..."], "highlights": ["..."]}`

const copyUser = `Message category: {request.messageCategory}
Media: {request.mediaPresentation}
Requested tone: {request.voiceTone}

Source text:
{request.sourceText}

Intent analysis:
{analysis}`

const structureSystem = `You plan the layout of WhatsApp Business messages.
For each creative variant produce the structured content and a formatting plan.
Reply with a single JSON object and nothing else:
{"plans": [{"structuredContent": "...", "formatting": {
  "bold": ["..."], "italic": ["..."], "strikethrough": ["..."], "monospace": ["..."],
  "bulletLists": [{"intro": "...", "items": ["..."]}], "numberedLists": [{"intro": "...", "items": ["..."]}],
  "emojis": [{"emoji": "...", "position": "..."}], "spacing": [{"location": "...", "break": "single|double"}]}}, ... exactly 3 ...]}`

const structureUser = `Message category: {request.messageCategory}
Media: {request.mediaPresentation}

Creative variants:
{creative}

Required layout for this category:
{pattern}`

const formatSystem = `You produce final WhatsApp Business message text.
Apply each formatting plan to its variant and follow the category layout exactly.
` + markupRules + `
Reply with a single JSON object and nothing else:
{"messages": ["first message", "second message", "third message"]}`

const formatUser = `Message category: {request.messageCategory}
Media: {request.mediaPresentation}
Requested tone: {request.voiceTone}

Creative variants:
{creative}

Formatting plans:
{plans}

Required layout for this category:
{pattern}`

const fanOutIntentSystem = `You analyze requests for WhatsApp Business messages and suggest three
different creative angles, one per message variation.
Reply with a single JSON object and nothing else:
{"analysis": {"coreIntent": "...", "tone": "...", "targetAudience": "...", "contextualNuance": "...",
  "keyElements": ["..."], "creativeAngles": ["..."], "emotionalHooks": ["..."], "psychologicalPrinciples": ["..."]},
 "suggestions": [{"angle": "...", "rationale": "..."}, ... exactly 3 ...]}`

const fanOutMessageSystem = `You write one WhatsApp Business message from a creative angle.
` + markupRules + `
Reply with a single JSON object and nothing else:
{"message": "the complete message text"}`

const fanOutMessageUser = `Message category: {request.messageCategory}
Media: {request.mediaPresentation}
Requested tone: {request.voiceTone}

Source text:
{request.sourceText}

Intent analysis:
{analysis}

Angle for variation {slot}: {suggestion.angle}
Why: {suggestion.rationale}

Draft to build on:
{seed}

Required layout for this category:
{pattern}`

var categoryLayouts = map[whatsapp.Category]string{
	whatsapp.Marketing: `[emoji] *HEADLINE* [emoji]

urgency line
[emoji] benefit
[emoji] benefit

[emoji] CTA: <link>
optional closing invitation`,
	whatsapp.Utility: `[emoji] *CONFIRMATION TITLE* [optional id]

[emoji] label: value
[emoji] label: value

action link or instruction
support line`,
	whatsapp.Authentication: `[security emoji] *VERIFICATION TITLE*

Your <type> is: *<code>*
expiry information
⚠️ warning line
support line`,
	whatsapp.Service: `Hi <name> [emoji],

acknowledgment line
issue summary line
[emoji] solution detail
[emoji] solution detail

closing question or next steps`,
}

func layoutFor(c whatsapp.Category) string {
	return categoryLayouts[c]
}

func describeSeeds(seeds [3]string) string {
	var sb strings.Builder
	for i, s := range seeds {
		if strings.TrimSpace(s) == "" {
			continue
		}
		fmt.Fprintf(&sb, "Draft %d:\n%s\n\n", i+1, s)
	}
	if sb.Len() == 0 {
		return "(none)"
	}
	return strings.TrimSpace(sb.String())
}
