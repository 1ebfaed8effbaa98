package generator

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wa_message_composer/provider"
	"wa_message_composer/whatsapp"
)

const analysisJSON = `{"coreIntent":"Promote the weekend shoe sale","tone":"excited","targetAudience":"sneaker fans",
"contextualNuance":"limited to this weekend","keyElements":["50% off"],"creativeAngles":["urgency"],
"emotionalHooks":["fear of missing out"],"psychologicalPrinciples":["scarcity"]}`

const creativeJSON = `{"variants":[
{"headline":"WEEKEND SHOE SALE","body":"Half price sneakers","callToAction":"Shop now","tone":"urgent"},
{"headline":"SNEAKER DEALS","body":"Fresh kicks for less","callToAction":"Grab yours","tone":"friendly"},
{"headline":"LAST CHANCE","body":"Sale ends Sunday","callToAction":"Don't miss out","tone":"urgent"}],
"suggestedEmojis":["🔥","✅"],"highlights":["50% off"]}`

const structureJSON = `{"plans":[
{"structuredContent":"headline, urgency, benefits, cta","formatting":{"bold":["WEEKEND SHOE SALE"],"emojis":[{"emoji":"🔥","position":"around headline"}],"spacing":[{"location":"after headline","break":"double"}]}},
{"structuredContent":"headline, benefits, cta","formatting":{"bold":["SNEAKER DEALS"],"bulletLists":[{"intro":"","items":["50% off","free delivery"]}]}},
{"structuredContent":"headline, countdown, cta","formatting":{"bold":["LAST CHANCE"],"spacing":[{"location":"before cta","break":"double"}]}}]}`

const fanIntentJSON = `{"analysis":` + analysisJSON + `,"suggestions":[
{"angle":"Urgency","rationale":"the sale is short"},
{"angle":"Value","rationale":"half price"},
{"angle":"Community","rationale":"sneaker fans share deals"}]}`

var marketingMessages = []string{
	"🔥 *WEEKEND SHOE SALE* 🔥\n\nOnly this Saturday and Sunday!\n✅ Up to 50% off sneakers\n✅ Free delivery over $50\n\n👉 Shop now: https://shop.example.com",
	"👟 *SNEAKER DEALS* 👟\n\nFresh kicks for less this weekend.\n✅ Half price on top brands\n✅ Easy returns\n\n🛒 Grab yours: https://shop.example.com",
	"⏰ *LAST CHANCE* ⏰\n\nThe sale ends Sunday at midnight.\n✅ 50% off everything\n\n👉 Don't miss out: https://shop.example.com\nSee you there, {{name}}!",
}

var boldPair = regexp.MustCompile(`\*[^*\n]+\*`)

// script answers each stage by its system prompt.
type script struct {
	intent, copy, structure, format func(user string) (string, error)
	fanIntent, message              func(user string) (string, error)
}

func (s script) reply(_ context.Context, msgs []provider.Message, _ provider.Options) (string, error) {
	var h func(string) (string, error)
	switch msgs[0].Content {
	case intentSystem:
		h = s.intent
	case copySystem:
		h = s.copy
	case structureSystem:
		h = s.structure
	case formatSystem:
		h = s.format
	case fanOutIntentSystem:
		h = s.fanIntent
	case fanOutMessageSystem:
		h = s.message
	}
	if h == nil {
		return "", errors.New("unscripted stage")
	}
	return h(provider.LastUser(msgs))
}

func fixed(s string) func(string) (string, error) {
	return func(string) (string, error) { return s, nil }
}

func failing(string) (string, error) { return "", errors.New("backend down") }

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func happyScript(t *testing.T) script {
	return script{
		intent:    fixed("<think>let me think</think>" + analysisJSON),
		copy:      fixed(creativeJSON),
		structure: fixed(structureJSON),
		format:    fixed("```json\n" + mustJSON(t, FormattedSet{Messages: marketingMessages}) + "\n```"),
		fanIntent: fixed(fanIntentJSON),
		message:   fixed(mustJSON(t, SlotMessage{Message: marketingMessages[0]})),
	}
}

func newTestAdapter(mocks map[string]*provider.Mock) *provider.Adapter {
	a := provider.NewAdapter(nil)
	for id, m := range mocks {
		a.Register(id, m)
	}
	return a
}

func newTestOrchestrator(inv Invoker, cfg Config) *Orchestrator {
	return NewOrchestrator(nil, NewSequential(inv, cfg, nil), NewFanOut(inv, cfg, nil))
}

var shoeSale = GenerationRequest{SourceText: "Weekend shoe sale", Category: whatsapp.Marketing}

func TestSequentialHappyPath(t *testing.T) {
	mock := &provider.Mock{Func: happyScript(t).reply}
	o := newTestOrchestrator(newTestAdapter(map[string]*provider.Mock{"p": mock}), Config{Providers: []string{"p"}})

	res, err := o.Generate(context.Background(), shoeSale)
	require.NoError(t, err)

	for i, v := range res.Variations {
		assert.NotEqual(t, whatsapp.Placeholder, v, "variation %d", i+1)
		assert.Regexp(t, boldPair, v)
		lines := strings.Split(v, "\n")
		assert.True(t, anyEmojiLine(lines), "variation %d has no emoji-led line", i+1)
	}
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "Promote the weekend shoe sale", res.Analysis.CoreIntent)
	assert.Len(t, mock.Calls(), 4)
}

func anyEmojiLine(lines []string) bool {
	for _, l := range lines {
		if whatsapp.StartsWithEmoji(l) {
			return true
		}
	}
	return false
}

func TestSequentialThreadsArtifactsForward(t *testing.T) {
	var formatPrompt string
	s := happyScript(t)
	next := s.format
	s.format = func(user string) (string, error) {
		formatPrompt = user
		return next(user)
	}
	inv := newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}})

	res := NewSequential(inv, Config{Providers: []string{"p"}}, nil).Generate(context.Background(), shoeSale)
	assert.NotEqual(t, ErrorResult(), res)
	assert.Contains(t, formatPrompt, "SNEAKER DEALS")
	assert.Contains(t, formatPrompt, "headline, countdown, cta")
	assert.Contains(t, formatPrompt, "CTA: <link>")
}

func TestSequentialIntentFailureFallsBack(t *testing.T) {
	s := happyScript(t)
	s.intent = fixed("not json at all")
	var copyPrompt string
	s.copy = func(user string) (string, error) {
		copyPrompt = user
		return creativeJSON, nil
	}
	inv := newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}})

	res := NewSequential(inv, Config{Providers: []string{"p"}}, nil).Generate(context.Background(), shoeSale)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, FallbackAnalysis(), *res.Analysis)
	assert.NotContains(t, res.Variations, whatsapp.Placeholder)
	assert.Contains(t, copyPrompt, "Intent analysis unavailable")
}

func TestFallbackAnalysisIsPopulated(t *testing.T) {
	fb := FallbackAnalysis()
	require.NoError(t, validate.Struct(fb))
	for _, s := range []string{fb.CoreIntent, fb.Tone, fb.TargetAudience, fb.ContextualNuance} {
		assert.NotEmpty(t, strings.TrimSpace(s))
	}
	for _, list := range [][]string{fb.KeyElements, fb.CreativeAngles, fb.EmotionalHooks, fb.PsychologicalPrinciples} {
		require.NotEmpty(t, list)
		assert.Contains(t, list[0], "Error")
	}
	assert.Equal(t, FallbackAnalysis(), fb)
}

func TestSequentialAbortsOnLaterStageFailure(t *testing.T) {
	for _, stage := range []string{"copy", "structure", "format"} {
		t.Run(stage, func(t *testing.T) {
			s := happyScript(t)
			switch stage {
			case "copy":
				s.copy = failing
			case "structure":
				s.structure = fixed(`{"plans":[]}`)
			case "format":
				s.format = fixed(`{"messages":["only one"]}`)
			}
			inv := newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}})
			res := NewSequential(inv, Config{Providers: []string{"p"}}, nil).Generate(context.Background(), shoeSale)
			assert.Equal(t, ErrorResult(), res)
		})
	}
}

func TestSequentialRejectsOffPatternMessages(t *testing.T) {
	s := happyScript(t)
	// marketing copy handed back for an authentication request
	inv := newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}})
	req := GenerationRequest{SourceText: "Login code 482913", Category: whatsapp.Authentication}

	res := NewSequential(inv, Config{Providers: []string{"p"}}, nil).Generate(context.Background(), req)
	assert.Equal(t, ErrorResult(), res)
}

func TestSequentialChecksNormalizedMessages(t *testing.T) {
	raw := []string{
		"🔥 **WEEKEND SHOE SALE** 🔥\n\nOnly this weekend!\n* Up to 50% off\n✅ Use code CODE_20 at checkout\n\n👉 Shop now: https://shop.example.com",
		"👟 *SNEAKER DEALS* 👟\n\n• Half price on top brands\n✅ Code CODE_20 works online\n\n🛒 Grab yours: https://shop.example.com",
		"⏰ *LAST CHANCE* ⏰\n\nBuy 2*3 packs, pay for 2.\n✅ 50% off everything\n\n👉 Don't miss out: https://shop.example.com",
	}
	s := happyScript(t)
	s.format = fixed(mustJSON(t, FormattedSet{Messages: raw}))
	o := newTestOrchestrator(newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}}), Config{Providers: []string{"p"}})

	res, err := o.GenerateWith(context.Background(), StrategySequential, shoeSale)
	require.NoError(t, err)
	for i, v := range res.Variations {
		assert.NotEqual(t, whatsapp.Placeholder, v, "variation %d", i+1)
		assert.NoError(t, whatsapp.CheckPattern(whatsapp.Marketing, v))
	}
	assert.Contains(t, res.Variations[0], "*WEEKEND SHOE SALE*")
	assert.Contains(t, res.Variations[0], "- Up to 50% off")
	assert.Contains(t, res.Variations[0], "CODE_20")
	assert.Contains(t, res.Variations[1], "- Half price")
}

func TestStageRetries(t *testing.T) {
	var copyCalls int
	s := happyScript(t)
	s.copy = func(string) (string, error) {
		copyCalls++
		if copyCalls == 1 {
			return "{broken", nil
		}
		return creativeJSON, nil
	}
	inv := newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}})

	res := NewSequential(inv, Config{Providers: []string{"p"}, StageRetries: 1}, nil).Generate(context.Background(), shoeSale)
	assert.NotContains(t, res.Variations, whatsapp.Placeholder)
	assert.Equal(t, 2, copyCalls)
}

func TestAllStagesFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	down := &provider.Mock{Func: func(context.Context, []provider.Message, provider.Options) (string, error) {
		return "", errors.New("backend down")
	}}
	o := newTestOrchestrator(newTestAdapter(map[string]*provider.Mock{"p": down}), Config{Providers: []string{"p"}})

	for _, strategy := range []string{StrategySequential, StrategyFanOut} {
		res, err := o.GenerateWith(context.Background(), strategy, shoeSale)
		require.NoError(t, err)
		assert.Equal(t, [3]string{
			"*Error generating message*\nPlease try again.",
			"*Error generating message*\nPlease try again.",
			"*Error generating message*\nPlease try again.",
		}, res.Variations, strategy)
		assert.Nil(t, res.Analysis)
	}
}

func TestFanOutPartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	good := &provider.Mock{Func: happyScript(t).reply}
	bad := &provider.Mock{Func: func(context.Context, []provider.Message, provider.Options) (string, error) {
		return "", &provider.Error{StatusCode: 500, Message: "internal"}
	}}
	third := &provider.Mock{Func: happyScript(t).reply}
	inv := newTestAdapter(map[string]*provider.Mock{"p1": good, "p2": bad, "p3": third})
	o := newTestOrchestrator(inv, Config{Providers: []string{"p1", "p2", "p3"}})

	res, err := o.GenerateWith(context.Background(), StrategyFanOut, shoeSale)
	require.NoError(t, err)
	assert.Equal(t, marketingMessages[0], res.Variations[0])
	assert.Equal(t, whatsapp.Placeholder, res.Variations[1])
	assert.Equal(t, marketingMessages[0], res.Variations[2])
	assert.Nil(t, res.Analysis)

	// intent and slot 1 on p1, slot 2 on p2, slot 3 on p3
	assert.Len(t, good.Calls(), 2)
	assert.Len(t, bad.Calls(), 1)
	assert.Len(t, third.Calls(), 1)
}

func TestFanOutSlotsGetTheirOwnAngle(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := happyScript(t)
	s.fanIntent = failing
	var seen atomic.Int32
	s.message = func(user string) (string, error) {
		for _, fb := range fallbackSuggestions() {
			if strings.Contains(user, fb.Angle) {
				seen.Add(1)
			}
		}
		return `{"message":"**Hi** __there__ • item"}`, nil
	}
	inv := newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}})
	o := newTestOrchestrator(inv, Config{Providers: []string{"p"}})

	res, err := o.GenerateWith(context.Background(), StrategyFanOut, GenerationRequest{SourceText: "Order update", Category: whatsapp.Service})
	require.NoError(t, err)
	assert.EqualValues(t, 3, seen.Load())
	for _, v := range res.Variations {
		assert.Equal(t, "*Hi* _there_ - item", v)
	}
}

func TestRegenerateIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := happyScript(t)
	mock := &provider.Mock{Func: s.reply}
	fan := NewFanOut(newTestAdapter(map[string]*provider.Mock{"p": mock}), Config{Providers: []string{"p"}}, nil)
	r := NewRegenerator(fan, nil)

	existing := [3]string{"A: first variation", "B: second variation", "C: third variation"}
	out, err := r.Regenerate(context.Background(), existing[1], whatsapp.Marketing, "", "", 2)
	require.NoError(t, err)
	assert.Equal(t, marketingMessages[0], out)

	calls := mock.Calls()
	require.Len(t, calls, 2, "one intent call and one message call")
	for _, call := range calls {
		for _, m := range call {
			assert.NotContains(t, m.Content, existing[0])
			assert.NotContains(t, m.Content, existing[2])
		}
	}
	intentPrompt := provider.LastUser(calls[0])
	assert.Contains(t, intentPrompt, "Draft 2:\nB: second variation")
	assert.NotContains(t, intentPrompt, "Draft 1:")
	assert.NotContains(t, intentPrompt, "Draft 3:")
	assert.Contains(t, provider.LastUser(calls[1]), "Angle for variation 2: Value")
}

func TestRegenerateRejectsBadInput(t *testing.T) {
	mock := &provider.Mock{}
	fan := NewFanOut(newTestAdapter(map[string]*provider.Mock{"p": mock}), Config{Providers: []string{"p"}}, nil)
	r := NewRegenerator(fan, nil)

	for _, slot := range []int{0, 4, -1} {
		_, err := r.Regenerate(context.Background(), "text", whatsapp.Utility, "", "", slot)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.ErrorIs(t, err, ErrInvalidSlot)
	}

	_, err := r.Regenerate(context.Background(), "  ", whatsapp.Utility, "", "", 1)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sourceText", verr.Field)
	assert.Empty(t, mock.Calls())
}

func TestRegeneratePlaceholderOnFailure(t *testing.T) {
	s := happyScript(t)
	s.message = failing
	fan := NewFanOut(newTestAdapter(map[string]*provider.Mock{"p": {Func: s.reply}}), Config{Providers: []string{"p"}}, nil)

	out, err := NewRegenerator(fan, nil).Regenerate(context.Background(), "Weekend shoe sale", whatsapp.Marketing, MediaImage, ToneCheeky, 3)
	require.NoError(t, err)
	assert.Equal(t, whatsapp.Placeholder, out)
}

func TestOrchestratorValidation(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		req      GenerationRequest
		field    string
	}{
		{"empty text", "", GenerationRequest{Category: whatsapp.Marketing}, "sourceText"},
		{"blank text", "", GenerationRequest{SourceText: " \n\t", Category: whatsapp.Marketing}, "sourceText"},
		{"too long", "", GenerationRequest{SourceText: strings.Repeat("é", MaxSourceText+1), Category: whatsapp.Marketing}, "sourceText"},
		{"missing category", "", GenerationRequest{SourceText: "hi"}, "messageCategory"},
		{"unknown category", "", GenerationRequest{SourceText: "hi", Category: "newsletter"}, "messageCategory"},
		{"bad media", "", GenerationRequest{SourceText: "hi", Category: whatsapp.Utility, Media: "hologram"}, "mediaPresentation"},
		{"bad tone", "", GenerationRequest{SourceText: "hi", Category: whatsapp.Utility, Tone: "sarcastic"}, "voiceTone"},
		{"unknown strategy", "roundrobin", shoeSale, "strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &provider.Mock{}
			o := newTestOrchestrator(newTestAdapter(map[string]*provider.Mock{"p": mock}), Config{Providers: []string{"p"}})

			_, err := o.GenerateWith(context.Background(), tt.strategy, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, mock.Calls())
		})
	}
}

func TestPrepareDefaults(t *testing.T) {
	req, err := Prepare(GenerationRequest{
		SourceText: "  Weekend shoe sale  ",
		Category:   whatsapp.Marketing,
		SeedFields: [3]string{" draft ", "", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Weekend shoe sale", req.SourceText)
	assert.Equal(t, MediaStandard, req.Media)
	assert.Equal(t, ToneProfessional, req.Tone)
	assert.Equal(t, "draft", req.SeedFields[0])

	_, err = Prepare(GenerationRequest{SourceText: strings.Repeat("é", MaxSourceText), Category: whatsapp.Marketing})
	assert.NoError(t, err)
}

func TestOrchestratorStrategies(t *testing.T) {
	o := newTestOrchestrator(provider.NewAdapter(nil), Config{})
	assert.Equal(t, []string{StrategyFanOut, StrategySequential}, o.Strategies())
}
