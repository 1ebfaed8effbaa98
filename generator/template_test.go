package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa_message_composer/provider"
	"wa_message_composer/whatsapp"
)

func TestFlattenNested(t *testing.T) {
	vars, err := Flatten(map[string]any{
		"request": GenerationRequest{SourceText: "Weekend shoe sale", Category: whatsapp.Marketing},
		"plans": StructureSet{Plans: []StructurePlan{
			{StructuredContent: "first", Formatting: FormattingPlan{Bold: []string{"SALE"}}},
		}},
		"slot":  2,
		"extra": map[string]any{"a": map[string]any{"b": map[string]any{"c": true}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Weekend shoe sale", vars["request.sourceText"])
	assert.Equal(t, "marketing", vars["request.messageCategory"])
	assert.Equal(t, "first", vars["plans.plans.0.structuredContent"])
	assert.Equal(t, "SALE", vars["plans.plans.0.formatting.bold.0"])
	assert.Equal(t, "2", vars["slot"])
	assert.Equal(t, "true", vars["extra.a.b.c"])
	assert.Contains(t, vars["plans"], `"structuredContent": "first"`)
}

func TestRender(t *testing.T) {
	vars := map[string]string{"request.sourceText": "Sale", "name": "Ana"}

	out, err := Render("Text: {request.sourceText}\nHi {{name}}! {\"json\": 1}", vars)
	require.NoError(t, err)
	assert.Equal(t, "Text: Sale\nHi {{name}}! {\"json\": 1}", out)

	_, err = Render("{missing.path} and {other}", vars)
	var merr *MissingBindingError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, []string{"missing.path", "other"}, merr.Names)
}

func TestPromptTemplatesRender(t *testing.T) {
	req := GenerationRequest{SourceText: "Weekend shoe sale", Category: whatsapp.Marketing, Media: MediaStandard, Tone: ToneUrgent}
	rc := runContext{Request: req}.
		withAnalysis(FallbackAnalysis()).
		withCreative(CreativeSet{}).
		withPlans(StructureSet{})
	vars, err := Flatten(rc.bindings())
	require.NoError(t, err)

	for _, tmpl := range []string{intentSystem, intentUser, copySystem, copyUser, structureSystem, structureUser, formatSystem, formatUser, fanOutIntentSystem, fanOutMessageSystem} {
		_, err := Render(tmpl, vars)
		assert.NoError(t, err)
	}

	b := requestBindings(req)
	b["analysis"] = FallbackAnalysis()
	b["suggestion"] = fallbackSuggestions()[0]
	b["slot"] = 1
	b["seed"] = "(none)"
	vars, err = Flatten(b)
	require.NoError(t, err)
	out, err := Render(fanOutMessageUser, vars)
	require.NoError(t, err)
	assert.Contains(t, out, "Angle for variation 1: Direct and clear")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Sure! Here it is:\n{\"a\":{\"b\":2}}\nHope it helps.", `{"a":{"b":2}}`},
	}
	for _, tt := range tests {
		got, err := extractJSON(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := extractJSON("no json here")
	assert.Error(t, err)
}

func TestStageErrors(t *testing.T) {
	adapter := provider.NewAdapter(nil)
	reply := ""
	adapter.Register("p", &provider.Mock{Func: func(context.Context, []provider.Message, provider.Options) (string, error) {
		return reply, nil
	}})
	st := Stage[CreativeSet]{Name: "copy", Provider: "p", System: copySystem, User: "{request.sourceText}"}
	bindings := map[string]any{"request": GenerationRequest{SourceText: "x"}}

	reply = "I cannot help with that."
	_, err := st.Run(context.Background(), adapter, bindings)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "copy", serr.Stage)
	assert.Equal(t, reply, serr.Raw)

	reply = `{"variants":[{"headline":"a","body":"b","callToAction":"c"}]}`
	_, err = st.Run(context.Background(), adapter, bindings)
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Violation, "variants must have exactly 3 items")

	reply = `{"variants":[{"headline":"a","body":"b","callToAction":"c"},{"headline":"a","body":"b","callToAction":"c"},{"headline":"","body":"b","callToAction":"c"}]}`
	_, err = st.Run(context.Background(), adapter, bindings)
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Violation, "variants[2].headline is required")

	_, err = st.Run(context.Background(), adapter, map[string]any{})
	require.ErrorAs(t, err, &serr)
	var merr *MissingBindingError
	assert.ErrorAs(t, err, &merr)
}

func TestStageProviderErrorStaysReachable(t *testing.T) {
	adapter := provider.NewAdapter(nil)
	adapter.Register("down", &provider.Mock{Func: func(context.Context, []provider.Message, provider.Options) (string, error) {
		return "", &provider.Error{StatusCode: 503, Message: "unavailable"}
	}})
	st := Stage[SlotMessage]{Name: "message-1", Provider: "down", System: "s", User: "u"}

	_, err := st.Run(context.Background(), adapter, nil)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Empty(t, serr.Raw)

	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 503, perr.StatusCode)
	assert.Equal(t, "down", perr.Provider)
}
