package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ellenlabs/ellen/internal/chat"
	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/localstore"
	"github.com/ellenlabs/ellen/internal/stream"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "ellen server base URL")
	apiKey := flag.String("api-key", "", "service API key (defaults to ELLEN_API_KEY)")
	sse := flag.Bool("sse", false, "use SSE framing instead of NDJSON")
	resume := flag.Bool("resume", false, "continue the most recent local session")
	dbPath := flag.String("db", defaultDBPath(), "local transcript database")
	flag.Parse()

	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	key := *apiKey
	if key == "" {
		key = os.Getenv("ELLEN_API_KEY")
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "no API key: pass -api-key or set ELLEN_API_KEY")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token, err := fetchToken(ctx, *server, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to authenticate: %v\n", err)
		os.Exit(1)
	}

	store, err := localstore.Open(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open transcript store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	framing := stream.FramingNDJSON
	if *sse {
		framing = stream.FramingSSE
	}
	transport := chat.NewHTTPTransport(*server,
		chat.WithToken(token),
		chat.WithFraming(framing),
	)

	renderer := &renderer{out: os.Stdout}
	client := chat.NewClient(transport, transport, chat.WithObserver(renderer.observe))

	if *resume {
		if err := resumeLastSession(ctx, client, transport, store); err != nil {
			fmt.Fprintf(os.Stderr, "could not resume: %v\n", err)
		}
	}

	fmt.Println("ellen chat — type a question, /history for recent exchanges, /quit to exit")
	repl(ctx, client, store, renderer)
}

func repl(ctx context.Context, client *chat.Client, store *localstore.Store, renderer *renderer) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return
		case "/history":
			printHistory(ctx, store)
			continue
		}

		renderer.reset()
		err := client.Send(ctx, line)
		fmt.Println()

		session := client.Session()
		if err != nil {
			if chat.Superseded(err) || ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		printExtras(session)

		if thread := session.LastThread(); thread != nil && thread.Assistant.Content != "" {
			saveErr := store.SaveExchange(ctx, localstore.Exchange{
				SessionID: session.ID,
				Title:     session.Title,
				Question:  line,
				Answer:    thread.Assistant.Content,
			})
			if saveErr != nil {
				log.Warn().Err(saveErr).Msg("failed to record exchange")
			}
		}
	}
}

// renderer prints streamed tokens as they arrive by diffing successive
// session snapshots.
type renderer struct {
	out     *os.File
	printed int
}

func (r *renderer) reset() {
	r.printed = 0
}

func (r *renderer) observe(s domain.Session) {
	thread := s.LastThread()
	if thread == nil {
		return
	}
	content := thread.Assistant.Content
	if len(content) > r.printed {
		fmt.Fprint(r.out, content[r.printed:])
		r.printed = len(content)
	}
}

func printExtras(session domain.Session) {
	thread := session.LastThread()
	if thread == nil {
		return
	}
	if len(thread.Sources) > 0 {
		fmt.Println("\nsources:")
		for i, s := range thread.Sources {
			fmt.Printf("  [%d] %s %s\n", i+1, s.Title, s.URL)
		}
	}
	if len(thread.Suggestions) > 0 {
		fmt.Println("\nfollow-ups:")
		for _, s := range thread.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
}

func printHistory(ctx context.Context, store *localstore.Store) {
	exchanges, err := store.Recent(ctx, 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load history: %v\n", err)
		return
	}
	if len(exchanges) == 0 {
		fmt.Println("no history yet")
		return
	}
	for i := len(exchanges) - 1; i >= 0; i-- {
		ex := exchanges[i]
		fmt.Printf("[%s] %s\n", ex.CreatedAt.Local().Format("Jan 02 15:04"), ex.Question)
	}
}

// resumeLastSession loads the newest locally recorded session into the client
// so the next Send continues the same conversation.
func resumeLastSession(ctx context.Context, client *chat.Client, transport *chat.HTTPTransport, store *localstore.Store) error {
	id, err := store.LastSession(ctx)
	if err != nil {
		return err
	}
	if id == uuid.Nil {
		return fmt.Errorf("no previous session recorded")
	}
	session, err := transport.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	client.Adopt(*session)
	fmt.Printf("resumed session %q (%d threads)\n", session.Title, len(session.Threads))
	return nil
}

type tokenRequest struct {
	APIKey   string `json:"api_key"`
	ClientID string `json:"client_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// fetchToken exchanges the service API key for an access token.
func fetchToken(ctx context.Context, server, apiKey string) (string, error) {
	payload, err := json.Marshal(tokenRequest{APIKey: apiKey, ClientID: "cli"})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(server, "/")+"/api/v1/auth/token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var envelope struct {
		Data tokenResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if envelope.Data.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return envelope.Data.AccessToken, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ellen-chat.db"
	}
	return home + "/.ellen-chat.db"
}
