package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ellenlabs/ellen/internal/domain"
)

// EventType discriminates the wire-level event union.
type EventType string

const (
	EventToken       EventType = "token"
	EventSources     EventType = "sources"
	EventMaterials   EventType = "materials"
	EventSuggestions EventType = "suggestions"
	EventError       EventType = "error"
)

var (
	// ErrUnknownEvent means the line parsed as JSON but its type
	// discriminator is not one we recognize.
	ErrUnknownEvent = errors.New("unknown event type")
)

// Event is one decoded unit from the chat-completion transport. Exactly one
// payload field is populated, matching Type.
type Event struct {
	Type        EventType
	Token       string
	Sources     []domain.Source
	Materials   []domain.Material
	Suggestions []string
	Message     string
}

// UpstreamError is an error event sent deliberately by the server. It marks
// the stream as logically failed without tearing down the transport.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

type envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// ParseEvent validates the type discriminator before trusting the shape of
// content. Any mismatch is an error for the caller to skip, never a panic.
func ParseEvent(line string) (Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}

	ev := Event{Type: EventType(env.Type)}
	switch ev.Type {
	case EventToken:
		if err := json.Unmarshal(env.Content, &ev.Token); err != nil {
			return Event{}, fmt.Errorf("bad token payload: %w", err)
		}
	case EventSources:
		if err := json.Unmarshal(env.Content, &ev.Sources); err != nil {
			return Event{}, fmt.Errorf("bad sources payload: %w", err)
		}
	case EventMaterials:
		if err := json.Unmarshal(env.Content, &ev.Materials); err != nil {
			return Event{}, fmt.Errorf("bad materials payload: %w", err)
		}
	case EventSuggestions:
		if err := json.Unmarshal(env.Content, &ev.Suggestions); err != nil {
			return Event{}, fmt.Errorf("bad suggestions payload: %w", err)
		}
	case EventError:
		if err := json.Unmarshal(env.Content, &ev.Message); err != nil {
			return Event{}, fmt.Errorf("bad error payload: %w", err)
		}
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	return ev, nil
}

// Marshal encodes the event back into its wire form.
func (e Event) Marshal() ([]byte, error) {
	var content any
	switch e.Type {
	case EventToken:
		content = e.Token
	case EventSources:
		content = e.Sources
	case EventMaterials:
		content = e.Materials
	case EventSuggestions:
		content = e.Suggestions
	case EventError:
		content = e.Message
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}

	return json.Marshal(map[string]any{
		"type":    string(e.Type),
		"content": content,
	})
}
