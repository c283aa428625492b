// Package app holds the shared application state and every operation the
// HTTP API exposes: chat connection control, the chat to command pipeline,
// the playlist, the command table and the AI helpers.
//
// All state sits behind one RWMutex. Operations that need network I/O take the
// lock to read what they need, release it for the call, and take it again to
// write the result.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chatdeck/chat"
	"github.com/onnwee/chatdeck/command"
	"github.com/onnwee/chatdeck/completion"
	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/media"
	"github.com/onnwee/chatdeck/playlist"
	"github.com/onnwee/chatdeck/supervisor"
)

var (
	// ErrInvalidInput marks a request with missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotConfigured marks an operation whose subsystem has not been set up.
	ErrNotConfigured = errors.New("not configured")
)

const (
	DefaultChatBufferSize = 100
	DefaultDisplayLogSize = 500
	DefaultDedupWindow    = 3 * time.Second

	commandQueueSize = 32
	commandTimeout   = 20 * time.Second
	persistTimeout   = 5 * time.Second
)

// ChatSession is one platform connection. *chat.Session and
// *chat.TwitchSession implement it.
type ChatSession interface {
	Connect(ctx context.Context, channel string) error
	Disconnect()
	IsConnected() bool
}

// SessionFactory builds a fresh session reporting to sink.
type SessionFactory func(sink chat.Sink) ChatSession

// CompleterFactory builds a completion client for a provider and key.
type CompleterFactory func(kind completion.Kind, apiKey string) (completion.Completer, error)

// SnapshotStore persists the playlist. *playlist.PGStore implements it.
type SnapshotStore interface {
	Save(ctx context.Context, st playlist.State) error
	Load(ctx context.Context) (playlist.State, bool, error)
}

// PrefStore keeps small operator preferences across restarts. db.KV
// implements it.
type PrefStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

const prefAudience = "ai:target_audience"

// Options wires an App. NewSession and Resolver are required.
type Options struct {
	NewSession   SessionFactory
	Resolver     media.Resolver
	Sink         events.Sink
	Store        SnapshotStore
	Prefs        PrefStore
	NewCompleter CompleterFactory

	Commands     command.Config
	SaveCommands func(command.Config) error

	ChatBufferSize int
	DisplayLogSize int
	DedupWindow    time.Duration
}

// App is the shared application state.
type App struct {
	newSession   SessionFactory
	resolver     media.Resolver
	sink         events.Sink
	store        SnapshotStore
	prefs        PrefStore
	newCompleter CompleterFactory
	saveCommands func(command.Config) error

	persistMu sync.Mutex

	mu       sync.RWMutex
	state    supervisor.State
	session  ChatSession
	gen      uint64

	lastSessionErr error // transport failure that ended the last session

	playlist *playlist.Engine
	commands command.Config
	chatBuf  *ring[completion.ChatLine]
	display  *ring[chat.Event]
	dedup    *dedupWindow
	ai       *aiClient
	audience *completion.TargetAudience
	analysis *completion.ContextAnalysis

	queue  chan queuedCommand
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

type aiClient struct {
	kind      completion.Kind
	completer completion.Completer
}

// New builds the App and starts its command worker. Call Close to stop it.
func New(opts Options) *App {
	if opts.Sink == nil {
		opts.Sink = events.Discard{}
	}
	if opts.NewCompleter == nil {
		opts.NewCompleter = DefaultCompleter
	}
	if opts.Commands.Commands == nil {
		opts.Commands = command.DefaultConfig()
	}
	if opts.ChatBufferSize <= 0 {
		opts.ChatBufferSize = DefaultChatBufferSize
	}
	if opts.DisplayLogSize <= 0 {
		opts.DisplayLogSize = DefaultDisplayLogSize
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		newSession:   opts.NewSession,
		resolver:     opts.Resolver,
		sink:         opts.Sink,
		store:        opts.Store,
		prefs:        opts.Prefs,
		newCompleter: opts.NewCompleter,
		saveCommands: opts.SaveCommands,
		state:        supervisor.State{Status: supervisor.Disconnected},
		playlist:     playlist.New(),
		commands:     opts.Commands.Clone(),
		chatBuf:      newRing[completion.ChatLine](opts.ChatBufferSize),
		display:      newRing[chat.Event](opts.DisplayLogSize),
		dedup:        newDedupWindow(opts.DedupWindow),
		queue:        make(chan queuedCommand, commandQueueSize),
		cancel:       cancel,
		now:          time.Now,
	}
	a.wg.Add(1)
	go a.commandWorker(ctx)
	return a
}

// DefaultCompleter wraps the provider in a retrying, caching Gateway.
func DefaultCompleter(kind completion.Kind, apiKey string) (completion.Completer, error) {
	p, err := completion.NewProvider(kind, apiKey, completion.ProviderOptions{})
	if err != nil {
		return nil, err
	}
	return completion.NewGateway(p), nil
}

// Restore loads the persisted playlist and preferences, for whichever stores
// are configured.
func (a *App) Restore(ctx context.Context) error {
	if err := a.restoreAudience(ctx); err != nil {
		slog.Warn("target audience restore failed", slog.String("component", "app"), slog.Any("err", err))
	}
	if a.store == nil {
		return nil
	}
	st, found, err := a.store.Load(ctx)
	if err != nil || !found {
		return err
	}
	a.mu.Lock()
	a.playlist.Restore(st)
	n := a.playlist.Len()
	a.mu.Unlock()
	slog.Info("playlist restored", slog.String("component", "app"), slog.Int("items", n))
	return nil
}

func (a *App) restoreAudience(ctx context.Context) error {
	if a.prefs == nil {
		return nil
	}
	raw, found, err := a.prefs.Get(ctx, prefAudience)
	if err != nil || !found {
		return err
	}
	var t completion.TargetAudience
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return err
	}
	a.mu.Lock()
	a.audience = &t
	a.mu.Unlock()
	return nil
}

// Close stops the command worker and drops any live chat connection.
func (a *App) Close() {
	a.cancel()
	a.wg.Wait()

	a.mu.Lock()
	sess := a.session
	a.session = nil
	a.gen++
	a.state = supervisor.State{Status: supervisor.Disconnected}
	a.mu.Unlock()
	if sess != nil {
		sess.Disconnect()
	}
}
