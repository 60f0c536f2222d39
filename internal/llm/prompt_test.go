package llm_test

import (
	"strings"
	"testing"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt(t *testing.T) {
	prompt := llm.BuildSystemPrompt(
		[]domain.Material{{
			Name:    "graphene",
			Formula: "C",
			Summary: "single-layer carbon lattice",
			Properties: map[string]string{
				"band_gap": "0 eV",
			},
		}},
		[]domain.Source{{
			Title:   "Electric Field Effect in Atomically Thin Carbon Films",
			Snippet: "We describe monocrystalline graphitic films...",
		}},
	)

	mustContain := []string{
		"materials science research assistant",
		"graphene",
		"band_gap: 0 eV",
		"Electric Field Effect",
		"monocrystalline graphitic films",
	}
	for _, s := range mustContain {
		assert.Contains(t, prompt, s)
	}
}

func TestBuildSystemPrompt_NoContext(t *testing.T) {
	prompt := llm.BuildSystemPrompt(nil, nil)

	assert.NotContains(t, prompt, "Known materials")
	assert.NotContains(t, prompt, "Literature excerpts")
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"plain", "Graphene Band Structure", "Graphene Band Structure"},
		{"wrapped quotes", `"Graphene Band Structure"`, "Graphene Band Structure"},
		{"multiline keeps first", "Graphene Basics\nextra rambling", "Graphene Basics"},
		{"whitespace", "  Graphene Basics  ", "Graphene Basics"},
		{"overlong truncated", strings.Repeat("a", 120), strings.Repeat("a", 80)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, llm.CleanTitle(tt.content))
		})
	}
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{
			"json array",
			`["What about doping?","How is it made?"]`,
			[]string{"What about doping?", "How is it made?"},
		},
		{
			"fenced json array",
			"```json\n[\"What about doping?\"]\n```",
			[]string{"What about doping?"},
		},
		{
			"numbered lines",
			"1. What about doping?\n2. How is it made?",
			[]string{"What about doping?", "How is it made?"},
		},
		{
			"bulleted lines",
			"- What about doping?\n- How is it made?",
			[]string{"What about doping?", "How is it made?"},
		},
		{
			"capped at three",
			`["a","b","c","d","e"]`,
			[]string{"a", "b", "c"},
		},
		{
			"blank entries dropped",
			"[\"a\",\"\",\"b\"]",
			[]string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, llm.ParseSuggestions(tt.content))
		})
	}
}
