package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ellenlabs/ellen/internal/domain"
)

// BuildSystemPrompt assembles the system message for an answer generation,
// grounding the model in the retrieved materials and literature snippets.
func BuildSystemPrompt(materials []domain.Material, sources []domain.Source) string {
	var b strings.Builder
	b.WriteString(`You are a materials science research assistant. Answer questions about materials, their properties, and their applications.

Rules:
1. Ground every claim in the provided context when it covers the question
2. Say clearly when the context does not cover the question
3. Use precise units and chemical formulas
4. Keep answers concise; prefer short paragraphs over lists`)

	if len(materials) > 0 {
		b.WriteString("\n\nKnown materials:\n")
		for _, m := range materials {
			fmt.Fprintf(&b, "- %s (%s): %s\n", m.Name, m.Formula, m.Summary)
			for key, value := range m.Properties {
				fmt.Fprintf(&b, "  %s: %s\n", key, value)
			}
		}
	}

	if len(sources) > 0 {
		b.WriteString("\nLiterature excerpts:\n")
		for i, s := range sources {
			fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, s.Title, s.Snippet)
		}
	}

	return b.String()
}

// TitlePrompt asks for a short session title from the opening question.
func TitlePrompt(question string) string {
	return fmt.Sprintf(`Generate a short title (3-6 words) for a conversation that starts with this question. Respond with ONLY the title, no quotes or punctuation around it.

Question: %s

Title:`, question)
}

// SuggestionsPrompt asks for follow-up questions after an answer.
func SuggestionsPrompt(question, answer string) string {
	return fmt.Sprintf(`Given this exchange, suggest 3 short follow-up questions the user might ask next. Respond with ONLY a JSON array of strings.

Question: %s

Answer: %s

Follow-ups:`, question, answer)
}

// CleanTitle normalizes a model-generated title: one line, no wrapping
// quotes, bounded length.
func CleanTitle(content string) string {
	title := strings.TrimSpace(content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if len(title) > 80 {
		title = strings.TrimSpace(title[:80])
	}
	return title
}

// ParseSuggestions extracts follow-up questions from a model response.
// Accepts a JSON array, optionally wrapped in a markdown fence, and falls
// back to one suggestion per line.
func ParseSuggestions(content string) []string {
	content = stripCodeFence(strings.TrimSpace(content))

	var parsed []string
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return normalizeSuggestions(parsed)
	}

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		line = strings.Trim(line, `"`)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return normalizeSuggestions(lines)
}

func normalizeSuggestions(raw []string) []string {
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// stripCodeFence unwraps a ```json ... ``` block if the whole content is one.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
