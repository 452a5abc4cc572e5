package main

import (
	"strings"
	"testing"

	"querydeck/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionOverrideImpliesMode(t *testing.T) {
	fn, err := askFlags{providers: []string{"anthropic", "openai"}}.selectionOverride(nil)
	require.NoError(t, err)
	sel := fn(query.Selection{Mode: query.ModeSingle})
	assert.Equal(t, query.ModeProvider, sel.Mode)
	assert.Equal(t, []query.SlotBinding{{Provider: "anthropic"}, {Provider: "openai"}}, sel.Slots)

	temp := 30.0
	fn, err = askFlags{models: []string{"gpt-4o"}}.selectionOverride(&temp)
	require.NoError(t, err)
	sel = fn(query.Selection{Mode: query.ModeSingle})
	assert.Equal(t, query.ModeModel, sel.Mode)
	require.NotNil(t, sel.Temperature)
	assert.Equal(t, 30.0, *sel.Temperature)
}

func TestSelectionOverrideKeepsLayoutWithoutFlags(t *testing.T) {
	fn, err := askFlags{}.selectionOverride(nil)
	require.NoError(t, err)
	base := query.Selection{Mode: query.ModeMultiplexed, Slots: []query.SlotBinding{{Provider: "gemini"}}}
	assert.Equal(t, base, fn(base))
}

func TestSelectionOverrideRejectsUnknownMode(t *testing.T) {
	_, err := askFlags{mode: "smoke-signal"}.selectionOverride(nil)
	assert.Error(t, err)
}

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt([]string{"what", "is", "go"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "what is go", got)

	got, err = readPrompt(nil, strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", got)
}
