package render

import (
	"bytes"
	"testing"

	"querydeck/internal/aggregate"
	"querydeck/internal/query"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestTerminalPrintsSettlementsAndSummary(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, false)
	agg := aggregate.New()
	agg.Subscribe(term.Listen)

	gen := agg.Reset([]query.Slot{
		{ID: "anthropic", Provider: query.NewProvider("anthropic")},
		{ID: "openai", Provider: query.NewProvider("openai")},
		{ID: "gemini", Provider: query.NewProvider("gemini")},
	})
	agg.Settle(gen, "openai", query.Failed("rate limited"))
	agg.Settle(gen, "anthropic", query.Succeeded("A"))
	agg.Settle(gen, "gemini", query.Succeeded("G"))

	assert.Equal(t, "[OpenAI] Error: rate limited\n"+
		"[Anthropic] A\n"+
		"[Gemini] G\n"+
		"3 slot(s): 2 ok, 1 failed\n", buf.String())
}

func TestTerminalSnapshotShowsPending(t *testing.T) {
	term := NewTerminal(&bytes.Buffer{}, false)
	snap := aggregate.Snapshot{Slots: []aggregate.SlotState{
		{ID: "slot-1", Label: "gpt-4o (OpenAI)", Result: query.Pending()},
		{ID: "slot-2", Label: "claude", Result: query.Succeeded("hi")},
	}}
	assert.Equal(t, "[gpt-4o (OpenAI)] Loading...\n[claude] hi\n", term.Snapshot(snap))
}

func TestTerminalPrettyWithoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	term := NewTerminal(&buf, true)
	term.Listen(aggregate.Event{Kind: aggregate.EventReset, Snapshot: aggregate.Snapshot{Slots: make([]aggregate.SlotState, 2)}})
	assert.Equal(t, "Querying 2 slot(s)...\n", buf.String())
}

func TestTerminalModels(t *testing.T) {
	term := NewTerminal(&bytes.Buffer{}, false)
	assert.Equal(t, "No models available\n", term.Models(nil))
	assert.Equal(t, "gpt-4o (OpenAI)\nmystery (unknown)\n", term.Models([]query.Model{
		{Name: "gpt-4o", Provider: query.NewProvider("openai")},
		{Name: "mystery"},
	}))
}
