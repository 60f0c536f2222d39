package stream

import (
	"fmt"
	"io"

	"github.com/ellenlabs/ellen/internal/domain"
)

// Writer emits stream events over w in the chosen framing. Tokens are
// written as deltas; accumulating them is the consumer's job.
type Writer struct {
	w       io.Writer
	framing Framing
	flush   func()
}

// NewWriter creates an event writer. flush may be nil; when set it is called
// after every event so proxies and clients see tokens as they are produced.
func NewWriter(w io.Writer, framing Framing, flush func()) *Writer {
	return &Writer{w: w, framing: framing, flush: flush}
}

// WriteEvent frames and writes a single event.
func (w *Writer) WriteEvent(ev Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	return w.writeFrame(string(data))
}

// Token writes one content delta.
func (w *Writer) Token(delta string) error {
	return w.WriteEvent(Event{Type: EventToken, Token: delta})
}

// Sources writes the full replacement source list.
func (w *Writer) Sources(sources []domain.Source) error {
	return w.WriteEvent(Event{Type: EventSources, Sources: sources})
}

// Materials writes the full replacement material list.
func (w *Writer) Materials(materials []domain.Material) error {
	return w.WriteEvent(Event{Type: EventMaterials, Materials: materials})
}

// Suggestions writes the full replacement follow-up list.
func (w *Writer) Suggestions(suggestions []string) error {
	return w.WriteEvent(Event{Type: EventSuggestions, Suggestions: suggestions})
}

// Error writes an upstream error event.
func (w *Writer) Error(message string) error {
	return w.WriteEvent(Event{Type: EventError, Message: message})
}

// Done terminates the stream. Only the SSE framing has an explicit sentinel;
// NDJSON streams end by closing the body.
func (w *Writer) Done() error {
	if w.framing != FramingSSE {
		return nil
	}
	return w.writeFrame(DoneSentinel)
}

func (w *Writer) writeFrame(payload string) error {
	var err error
	if w.framing == FramingSSE {
		_, err = fmt.Fprintf(w.w, "data: %s\n\n", payload)
	} else {
		_, err = fmt.Fprintf(w.w, "%s\n", payload)
	}
	if err != nil {
		return fmt.Errorf("failed to write stream event: %w", err)
	}
	if w.flush != nil {
		w.flush()
	}
	return nil
}
