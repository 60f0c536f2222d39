package stream

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/rs/zerolog/log"
)

// Handlers receives routed events. The token handler is always invoked with
// the cumulative assistant content, never the delta, so a late-attaching
// observer needs no replay. Extras handlers replace whole arrays.
type Handlers struct {
	Token       func(cumulative string)
	Sources     func([]domain.Source)
	Materials   func([]domain.Material)
	Suggestions func([]string)
	Error       func(err error)
}

// Dispatcher parses decoded lines into events and routes each to exactly one
// handler. A line that fails to parse, or carries an unknown type, is logged
// and skipped: one corrupted chunk must not lose the rest of the answer.
type Dispatcher struct {
	handlers Handlers
	acc      strings.Builder
	failed   bool
}

// NewDispatcher creates a dispatcher with the given handlers. Nil handlers
// are allowed and simply drop their events.
func NewDispatcher(h Handlers) *Dispatcher {
	return &Dispatcher{handlers: h}
}

// Content returns the assistant content accumulated so far.
func (d *Dispatcher) Content() string {
	return d.acc.String()
}

// Failed reports whether an error event arrived on the stream.
func (d *Dispatcher) Failed() bool {
	return d.failed
}

// Dispatch routes one decoded line. It never returns an error and never
// panics on malformed input.
func (d *Dispatcher) Dispatch(line string) {
	ev, err := ParseEvent(line)
	if err != nil {
		log.Warn().Err(err).Str("line", truncate(line, 200)).Msg("skipping malformed stream event")
		return
	}

	switch ev.Type {
	case EventToken:
		d.acc.WriteString(ev.Token)
		if d.handlers.Token != nil {
			d.handlers.Token(d.acc.String())
		}
	case EventSources:
		if d.handlers.Sources != nil {
			d.handlers.Sources(ev.Sources)
		}
	case EventMaterials:
		if d.handlers.Materials != nil {
			d.handlers.Materials(ev.Materials)
		}
	case EventSuggestions:
		if d.handlers.Suggestions != nil {
			d.handlers.Suggestions(ev.Suggestions)
		}
	case EventError:
		// The server may still emit late events (e.g. suggestions)
		// after an error, so the stream keeps going.
		d.failed = true
		if d.handlers.Error != nil {
			d.handlers.Error(&UpstreamError{Message: ev.Message})
		}
	}
}

// Run consumes the reader until end-of-stream, dispatching every payload in
// arrival order. It returns only transport-level failures; upstream error
// events are surfaced through the error handler instead.
func (d *Dispatcher) Run(ctx context.Context, r *Reader) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		d.Dispatch(line)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
