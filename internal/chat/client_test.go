package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/stream"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBody feeds one NDJSON line per channel send and honors context
// cancellation the way an HTTP response body does.
type scriptedBody struct {
	ctx   context.Context
	lines chan string
	buf   []byte
}

func newScriptedBody(ctx context.Context) *scriptedBody {
	return &scriptedBody{ctx: ctx, lines: make(chan string, 16)}
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	if len(b.buf) == 0 {
		select {
		case line, ok := <-b.lines:
			if !ok {
				return 0, io.EOF
			}
			b.buf = []byte(line + "\n")
		case <-b.ctx.Done():
			return 0, b.ctx.Err()
		}
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

func (b *scriptedBody) Close() error { return nil }

type fakeTransport struct {
	mu    sync.Mutex
	calls int
	open  func(ctx context.Context, sessionID uuid.UUID, message string) (io.ReadCloser, stream.Framing, error)
}

func (f *fakeTransport) OpenStream(ctx context.Context, sessionID uuid.UUID, message string) (io.ReadCloser, stream.Framing, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.open(ctx, sessionID, message)
}

func (f *fakeTransport) openCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu      sync.Mutex
	created int
	create  func(ctx context.Context, projectID *uuid.UUID, title string) (*domain.Session, error)
	load    func(ctx context.Context, id uuid.UUID) (*domain.Session, error)
}

func (f *fakeStore) CreateSession(ctx context.Context, projectID *uuid.UUID, title string) (*domain.Session, error) {
	f.mu.Lock()
	f.created++
	f.mu.Unlock()
	if f.create != nil {
		return f.create(ctx, projectID, title)
	}
	return &domain.Session{ID: uuid.New(), ProjectID: projectID, Title: title, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) LoadSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return f.load(ctx, id)
}

func ndjsonTransport(payload string) *fakeTransport {
	return &fakeTransport{
		open: func(context.Context, uuid.UUID, string) (io.ReadCloser, stream.Framing, error) {
			return io.NopCloser(strings.NewReader(payload)), stream.FramingNDJSON, nil
		},
	}
}

func serverSession(id uuid.UUID, question, answer string) *domain.Session {
	return &domain.Session{
		ID:    id,
		Title: question,
		Threads: []domain.Thread{{
			ID:        uuid.New(),
			User:      domain.Message{Role: domain.RoleUser, Content: question},
			Assistant: domain.Message{Role: domain.RoleAssistant, Content: answer},
			CreatedAt: time.Now(),
		}},
	}
}

// waitFor drains observer snapshots until pred matches or the test times out.
func waitFor(t *testing.T, snapshots <-chan domain.Session, pred func(domain.Session) bool) domain.Session {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-snapshots:
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for session snapshot")
		}
	}
}

func TestClient_SendHappyPath(t *testing.T) {
	payload := `{"type":"token","content":"Hel"}` + "\n" +
		`{"type":"token","content":"lo"}` + "\n" +
		`{"type":"sources","content":[{"title":"paper","url":"https://p"}]}` + "\n" +
		`{"type":"suggestions","content":["and then?"]}` + "\n"

	var sessionID uuid.UUID
	store := &fakeStore{
		load: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return serverSession(id, "what is graphene?", "Hello"), nil
		},
	}

	snapshots := make(chan domain.Session, 256)
	c := NewClient(ndjsonTransport(payload), store, WithObserver(func(s domain.Session) {
		snapshots <- s
	}))

	err := c.Send(context.Background(), "what is graphene?")
	require.NoError(t, err)

	// The optimistic placeholder with partial content was observable while
	// the stream was still open.
	waitFor(t, snapshots, func(s domain.Session) bool {
		return len(s.Threads) == 1 && s.Threads[0].Pending &&
			s.Threads[0].Assistant.Content == "Hel"
	})

	final := c.Session()
	sessionID = final.ID
	assert.NotEqual(t, uuid.Nil, sessionID)
	require.Len(t, final.Threads, 1)
	assert.Equal(t, "Hello", final.Threads[0].Assistant.Content)
	assert.False(t, final.Threads[0].Pending)
	assert.False(t, final.Streaming)
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.NoError(t, c.Err())
	assert.Equal(t, 1, store.created)
}

func TestClient_SecondSendReusesSession(t *testing.T) {
	payload := `{"type":"token","content":"ok"}` + "\n"
	store := &fakeStore{
		load: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return serverSession(id, "q", "ok"), nil
		},
	}
	c := NewClient(ndjsonTransport(payload), store)

	require.NoError(t, c.Send(context.Background(), "first"))
	require.NoError(t, c.Send(context.Background(), "second"))

	assert.Equal(t, 1, store.created)
}

func TestClient_SessionCreationFailureLeavesNoPlaceholder(t *testing.T) {
	transport := &fakeTransport{
		open: func(context.Context, uuid.UUID, string) (io.ReadCloser, stream.Framing, error) {
			t.Fatal("stream must not be opened when session creation fails")
			return nil, 0, nil
		},
	}
	store := &fakeStore{
		create: func(context.Context, *uuid.UUID, string) (*domain.Session, error) {
			return nil, errors.New("db down")
		},
		load: func(context.Context, uuid.UUID) (*domain.Session, error) {
			return nil, errors.New("unreachable")
		},
	}
	c := NewClient(transport, store)

	err := c.Send(context.Background(), "hello")
	require.Error(t, err)

	assert.Empty(t, c.Session().Threads)
	assert.Equal(t, uuid.Nil, c.Session().ID)
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, 0, transport.openCalls())
}

func TestClient_TransportFailureKeepsPartialContent(t *testing.T) {
	boom := errors.New("connection reset")
	transport := &fakeTransport{
		open: func(ctx context.Context, _ uuid.UUID, _ string) (io.ReadCloser, stream.Framing, error) {
			body := newScriptedBody(ctx)
			body.lines <- `{"type":"token","content":"partial answ"}`
			go func() {
				// Simulate the connection dropping after the first chunk.
				time.Sleep(10 * time.Millisecond)
				body.lines <- "" // flushes the reader
				close(body.lines)
			}()
			return &failingBody{scriptedBody: body, err: boom}, stream.FramingNDJSON, nil
		},
	}
	store := &fakeStore{
		load: func(context.Context, uuid.UUID) (*domain.Session, error) {
			t.Fatal("reconcile must not run after a transport failure")
			return nil, nil
		},
	}
	c := NewClient(transport, store)

	err := c.Send(context.Background(), "q")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, boom)

	// The partial answer stays visible alongside the error.
	require.Len(t, c.Session().Threads, 1)
	assert.Equal(t, "partial answ", c.Session().Threads[0].Assistant.Content)
	assert.False(t, c.Session().Streaming)
	assert.Equal(t, PhaseIdle, c.Phase())
}

// failingBody returns err once the scripted lines run out, instead of EOF.
type failingBody struct {
	*scriptedBody
	err error
}

func (b *failingBody) Read(p []byte) (int, error) {
	n, err := b.scriptedBody.Read(p)
	if errors.Is(err, io.EOF) {
		return n, b.err
	}
	return n, err
}

func TestClient_UpstreamErrorStillReconciles(t *testing.T) {
	payload := `{"type":"token","content":"part"}` + "\n" +
		`{"type":"error","content":"model overloaded"}` + "\n"

	loaded := false
	store := &fakeStore{
		load: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			loaded = true
			return serverSession(id, "q", "part"), nil
		},
	}
	c := NewClient(ndjsonTransport(payload), store)

	err := c.Send(context.Background(), "q")

	var uerr *stream.UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "model overloaded", uerr.Error())
	assert.True(t, loaded, "error events end the answer, not the lifecycle")
	assert.False(t, c.Session().Threads[0].Pending)
}

func TestClient_ReconciliationFailureKeepsOptimisticState(t *testing.T) {
	payload := `{"type":"token","content":"streamed answer"}` + "\n"
	store := &fakeStore{
		load: func(context.Context, uuid.UUID) (*domain.Session, error) {
			return nil, errors.New("db timeout")
		},
	}
	c := NewClient(ndjsonTransport(payload), store)

	err := c.Send(context.Background(), "q")

	var rerr *ReconciliationError
	require.ErrorAs(t, err, &rerr)
	require.Len(t, c.Session().Threads, 1)
	assert.Equal(t, "streamed answer", c.Session().Threads[0].Assistant.Content)
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestClient_CancelIsNotAnError(t *testing.T) {
	started := make(chan *scriptedBody, 1)
	transport := &fakeTransport{
		open: func(ctx context.Context, _ uuid.UUID, _ string) (io.ReadCloser, stream.Framing, error) {
			body := newScriptedBody(ctx)
			started <- body
			return body, stream.FramingNDJSON, nil
		},
	}
	store := &fakeStore{
		load: func(context.Context, uuid.UUID) (*domain.Session, error) {
			t.Fatal("reconcile must not run after cancellation")
			return nil, nil
		},
	}

	snapshots := make(chan domain.Session, 256)
	c := NewClient(transport, store, WithObserver(func(s domain.Session) {
		snapshots <- s
	}))

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "q") }()

	body := <-started
	body.lines <- `{"type":"token","content":"half an ans"}`
	waitFor(t, snapshots, func(s domain.Session) bool {
		return len(s.Threads) == 1 && s.Threads[0].Assistant.Content == "half an ans"
	})

	c.Cancel()

	require.NoError(t, <-done)
	assert.NoError(t, c.Err(), "cancellation never populates the error slot")
	assert.Equal(t, "half an ans", c.Session().Threads[0].Assistant.Content)
	assert.False(t, c.Session().Streaming)
	assert.Equal(t, PhaseIdle, c.Phase())
}

// A second Send while the first is still streaming must cancel the first and
// keep every one of its remaining events out of the session.
func TestClient_SendSupersedesInFlightRequest(t *testing.T) {
	bodies := make(chan *scriptedBody, 2)
	transport := &fakeTransport{
		open: func(ctx context.Context, _ uuid.UUID, _ string) (io.ReadCloser, stream.Framing, error) {
			body := newScriptedBody(ctx)
			bodies <- body
			return body, stream.FramingNDJSON, nil
		},
	}
	store := &fakeStore{
		load: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			return serverSession(id, "question B", "answer B"), nil
		},
	}

	snapshots := make(chan domain.Session, 256)
	c := NewClient(transport, store, WithObserver(func(s domain.Session) {
		snapshots <- s
	}))

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Send(context.Background(), "question A") }()

	bodyA := <-bodies
	bodyA.lines <- `{"type":"token","content":"answer A in prog"}`
	waitFor(t, snapshots, func(s domain.Session) bool {
		return len(s.Threads) > 0 && s.LastThread().Assistant.Content == "answer A in prog"
	})

	secondDone := make(chan error, 1)
	go func() { secondDone <- c.Send(context.Background(), "question B") }()

	bodyB := <-bodies
	// A keeps producing after being superseded; none of it may land.
	bodyA.lines <- `{"type":"token","content":"answer A in progress and late"}`
	bodyA.lines <- `{"type":"sources","content":[{"title":"stale","url":"s"}]}`

	bodyB.lines <- `{"type":"token","content":"answer B"}`
	close(bodyB.lines)

	require.NoError(t, <-secondDone)
	require.NoError(t, <-firstDone, "a superseded request resolves silently")

	final := c.Session()
	require.Len(t, final.Threads, 1)
	assert.Equal(t, "question B", final.Threads[0].User.Content)
	assert.Equal(t, "answer B", final.Threads[0].Assistant.Content)
	for _, thread := range final.Threads {
		assert.NotContains(t, thread.Assistant.Content, "answer A")
		assert.Empty(t, thread.Sources)
	}
	assert.NoError(t, c.Err())
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestFirstTitle(t *testing.T) {
	assert.Equal(t, "short question", firstTitle("short question"))

	long := strings.Repeat("x", 48)
	assert.Equal(t, strings.Repeat("x", 30)+"...", firstTitle(long))
}

func TestClient_AdoptResumesExistingSession(t *testing.T) {
	existing := serverSession(uuid.New(), "earlier question", "earlier answer")

	payload := `{"type":"token","content":"later answer"}` + "\n"
	var openedSession uuid.UUID
	transport := &fakeTransport{
		open: func(_ context.Context, id uuid.UUID, _ string) (io.ReadCloser, stream.Framing, error) {
			openedSession = id
			return io.NopCloser(strings.NewReader(payload)), stream.FramingNDJSON, nil
		},
	}
	store := &fakeStore{
		load: func(_ context.Context, id uuid.UUID) (*domain.Session, error) {
			s := serverSession(id, "earlier question", "earlier answer")
			s.Threads = append(s.Threads, domain.Thread{
				ID:        uuid.New(),
				User:      domain.Message{Role: domain.RoleUser, Content: "later question"},
				Assistant: domain.Message{Role: domain.RoleAssistant, Content: "later answer"},
			})
			return s, nil
		},
	}

	c := NewClient(transport, store)
	c.Adopt(*existing)

	require.NoError(t, c.Send(context.Background(), "later question"))

	// No new session was created; the stream targeted the adopted one.
	assert.Equal(t, 0, store.created)
	assert.Equal(t, existing.ID, openedSession)
	require.Len(t, c.Session().Threads, 2)
}
