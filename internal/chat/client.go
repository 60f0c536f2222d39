package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Phase is the request lifecycle state for one session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// Transport opens a streamed chat-completion response for a message.
type Transport interface {
	OpenStream(ctx context.Context, sessionID uuid.UUID, message string) (io.ReadCloser, stream.Framing, error)
}

// SessionStore is the read side of the persistent session store.
type SessionStore interface {
	CreateSession(ctx context.Context, projectID *uuid.UUID, title string) (*domain.Session, error)
	LoadSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
}

// TransportError means the byte stream itself failed. Fatal to the current
// request; the session state is left intact.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReconciliationError means the authoritative reload after streaming failed.
// The optimistic state stays visible so partial answers are not lost.
type ReconciliationError struct {
	Err error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("failed to reload session: %v", e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Client owns one conversation: it is the single writer of the session value
// and the lifecycle manager for its in-flight request. A new Send supersedes
// any prior in-flight request; events from a superseded request are dropped
// before they can touch the session.
type Client struct {
	transport Transport
	store     SessionStore

	mu       sync.Mutex
	session  domain.Session
	phase    Phase
	gen      uint64
	cancel   context.CancelFunc
	lastErr  error
	onCommit func(domain.Session)
}

// Option configures a Client.
type Option func(*Client)

// WithObserver registers a callback invoked with an immutable session
// snapshot after every committed update.
func WithObserver(fn func(domain.Session)) Option {
	return func(c *Client) { c.onCommit = fn }
}

// WithProject scopes sessions created by this client to a project.
func WithProject(projectID uuid.UUID) Option {
	return func(c *Client) { c.session.ProjectID = &projectID }
}

// NewClient creates a chat client. Both dependencies are injected so tests
// can substitute fakes without touching package state.
func NewClient(transport Transport, store SessionStore, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		store:     store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Adopt replaces the client's session with an existing one, e.g. when
// resuming a stored conversation. Ignored while a request is in flight.
func (c *Client) Adopt(session domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		return
	}
	session.Streaming = false
	session.PendingQuery = ""
	c.session = session
	c.lastErr = nil
}

// Session returns the current committed session snapshot.
func (c *Client) Session() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Phase returns the current lifecycle phase.
func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Err returns the user-visible error slot for the session. Cancellation
// never populates it.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Cancel aborts the in-flight request, if any. Not an error.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Send submits one user message and blocks until the exchange reaches a
// terminal state. Calling Send again while a previous call is streaming
// supersedes it: the older request is cancelled and none of its remaining
// events reach the session.
func (c *Client) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.lastErr = nil
	c.phase = PhaseSending
	needsSession := c.session.ID == uuid.Nil
	projectID := c.session.ProjectID
	sessionID := c.session.ID
	c.mu.Unlock()

	defer cancel()

	// First message on a fresh conversation creates the session before any
	// placeholder appears, so a creation failure leaves nothing to undo.
	if needsSession {
		created, err := c.store.CreateSession(sctx, projectID, firstTitle(content))
		if err != nil {
			err = fmt.Errorf("failed to create session: %w", err)
			c.fail(gen, err)
			return err
		}
		sessionID = created.ID
		c.commit(gen, func(s domain.Session) domain.Session {
			s.ID = created.ID
			s.ProjectID = created.ProjectID
			s.Title = created.Title
			s.CreatedAt = created.CreatedAt
			s.UpdatedAt = created.UpdatedAt
			return s
		})
	}

	// Placeholder goes in before the completion request starts, so the user
	// sees their message immediately.
	c.commit(gen, func(s domain.Session) domain.Session {
		s = AppendOptimisticThread(s, content)
		s.Streaming = true
		return s
	})

	body, framing, err := c.transport.OpenStream(sctx, sessionID, content)
	if err != nil {
		if sctx.Err() != nil {
			c.finish(gen)
			return nil
		}
		terr := &TransportError{Err: err}
		c.fail(gen, terr)
		return terr
	}
	defer body.Close()

	c.setPhase(gen, PhaseStreaming)

	// Handlers check the generation inside commit, so a request superseded
	// mid-chunk mutates nothing even if a few more bytes decode.
	dispatcher := stream.NewDispatcher(stream.Handlers{
		Token: func(cumulative string) {
			c.commit(gen, func(s domain.Session) domain.Session {
				return ApplyTokenUpdate(s, cumulative)
			})
		},
		Sources: func(sources []domain.Source) {
			c.commit(gen, func(s domain.Session) domain.Session {
				return ApplySources(s, sources)
			})
		},
		Materials: func(materials []domain.Material) {
			c.commit(gen, func(s domain.Session) domain.Session {
				return ApplyMaterials(s, materials)
			})
		},
		Suggestions: func(suggestions []string) {
			c.commit(gen, func(s domain.Session) domain.Session {
				return ApplySuggestions(s, suggestions)
			})
		},
		Error: func(err error) {
			c.setErr(gen, err)
		},
	})

	if err := dispatcher.Run(sctx, stream.NewReader(body, framing)); err != nil {
		if sctx.Err() != nil {
			c.finish(gen)
			return nil
		}
		terr := &TransportError{Err: err}
		c.fail(gen, terr)
		return terr
	}

	// Authoritative reload runs even when the stream ended in an error
	// event, so the UI converges on durable IDs instead of a placeholder.
	c.setPhase(gen, PhaseReconciling)
	loaded, err := c.store.LoadSession(sctx, sessionID)
	if err != nil {
		if sctx.Err() != nil {
			c.finish(gen)
			return nil
		}
		rerr := &ReconciliationError{Err: err}
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("authoritative reload failed")
		c.fail(gen, rerr)
		return rerr
	}

	c.commit(gen, func(s domain.Session) domain.Session {
		return Reconcile(s, *loaded)
	})
	c.finish(gen)

	c.mu.Lock()
	err = c.lastErr
	c.mu.Unlock()
	return err
}

// commit applies fn to the session and publishes the result, unless the
// request identified by gen has been superseded.
func (c *Client) commit(gen uint64, fn func(domain.Session) domain.Session) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.session = fn(c.session)
	snapshot := c.session
	cb := c.onCommit
	c.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

func (c *Client) setPhase(gen uint64, phase Phase) {
	c.mu.Lock()
	if gen == c.gen {
		c.phase = phase
	}
	c.mu.Unlock()
}

func (c *Client) setErr(gen uint64, err error) {
	c.mu.Lock()
	if gen == c.gen {
		c.lastErr = err
	}
	c.mu.Unlock()
}

// fail records err and returns the session to idle. Partial content already
// committed stays visible.
func (c *Client) fail(gen uint64, err error) {
	c.setErr(gen, err)
	c.finish(gen)
}

// finish clears the streaming flag and returns to idle for the active
// request. A superseded request's finish is a no-op.
func (c *Client) finish(gen uint64) {
	c.commit(gen, func(s domain.Session) domain.Session {
		s.Streaming = false
		return s
	})
	c.setPhase(gen, PhaseIdle)
}

// Superseded reports whether err came from a cancelled request.
func Superseded(err error) bool {
	return errors.Is(err, context.Canceled)
}

// firstTitle derives an initial session title from the opening message,
// mirroring what the server does before async title generation runs.
func firstTitle(content string) string {
	const max = 30
	if len(content) > max {
		return content[:max] + "..."
	}
	return content
}
