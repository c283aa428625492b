package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/media"
	"github.com/onnwee/chatdeck/playlist"
	"github.com/onnwee/chatdeck/telemetry"
)

// PlaylistError is the payload of a playlist-error notification.
type PlaylistError struct {
	Message string `json:"message"`
	User    string `json:"user,omitempty"`
	Query   string `json:"query,omitempty"`
}

// errUnchanged tells mutate the operation was a no-op.
var errUnchanged = errors.New("unchanged")

// Playlist returns a snapshot of the queue.
func (a *App) Playlist() playlist.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.playlist.Snapshot()
}

// PlaylistAdd resolves query to a video and queues it for addedBy, honoring
// the per-contributor limit.
func (a *App) PlaylistAdd(ctx context.Context, query, addedBy string) (playlist.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return playlist.Item{}, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if a.resolver == nil {
		return playlist.Item{}, fmt.Errorf("%w: no media resolver", ErrNotConfigured)
	}

	desc, err := a.resolver.Resolve(ctx, query)
	if err != nil {
		a.publishPlaylistError(PlaylistError{Message: "could not find a video for the request", User: addedBy, Query: query})
		return playlist.Item{}, fmt.Errorf("resolve %q: %w", query, err)
	}

	item := playlist.NewItem(desc.ID, desc.Title, desc.Channel, desc.Duration, desc.Thumbnail, desc.URL, addedBy)
	err = a.mutate(func(e *playlist.Engine) error {
		limit, _ := a.commands.Limit()
		return e.Add(item, limit)
	})
	if err != nil {
		if errors.Is(err, playlist.ErrLimitReached) {
			a.publishPlaylistError(PlaylistError{Message: "playlist limit reached", User: addedBy, Query: query})
		}
		return playlist.Item{}, err
	}
	a.sink.Publish(events.TopicPlaylistItemAdded, item)
	slog.Info("playlist item added",
		slog.String("component", "app"),
		slog.String("video_id", item.MediaID),
		slog.String("title", item.Title),
		slog.String("user", addedBy))
	return item, nil
}

// PlaylistRemove removes the item at index.
func (a *App) PlaylistRemove(index int) (playlist.Item, error) {
	var removed playlist.Item
	err := a.mutate(func(e *playlist.Engine) error {
		it, ok := e.Remove(index)
		if !ok {
			return playlist.ErrIndexOutOfBounds
		}
		removed = it
		return nil
	})
	return removed, err
}

// PlaylistMove relocates the item at from to to.
func (a *App) PlaylistMove(from, to int) error {
	return a.mutate(func(e *playlist.Engine) error {
		if from == to && from >= 0 && from < e.Len() {
			return errUnchanged
		}
		return e.Move(from, to)
	})
}

// PlaylistNext advances the cursor. ok is false at the end of the queue with
// autoplay off, or on an empty queue.
func (a *App) PlaylistNext() (item playlist.Item, ok bool) {
	_ = a.mutate(func(e *playlist.Engine) error {
		item, ok = e.Next()
		if !ok {
			return errUnchanged
		}
		return nil
	})
	return item, ok
}

// PlaylistPrevious steps the cursor back.
func (a *App) PlaylistPrevious() (item playlist.Item, ok bool) {
	_ = a.mutate(func(e *playlist.Engine) error {
		item, ok = e.Previous()
		if !ok {
			return errUnchanged
		}
		return nil
	})
	return item, ok
}

// PlaylistPlayAt moves the cursor to index and starts playback.
func (a *App) PlaylistPlayAt(index int) (playlist.Item, error) {
	var item playlist.Item
	err := a.mutate(func(e *playlist.Engine) error {
		var err error
		item, err = e.PlayAt(index)
		return err
	})
	return item, err
}

// PlaylistPause stops playback.
func (a *App) PlaylistPause() {
	_ = a.mutate(func(e *playlist.Engine) error {
		e.SetPlaying(false)
		return nil
	})
}

// PlaylistResume starts playback. It does nothing on an empty queue.
func (a *App) PlaylistResume() {
	_ = a.mutate(func(e *playlist.Engine) error {
		if e.Len() == 0 {
			return errUnchanged
		}
		e.SetPlaying(true)
		return nil
	})
}

// PlaylistClear empties the queue.
func (a *App) PlaylistClear() {
	_ = a.mutate(func(e *playlist.Engine) error {
		e.Clear()
		return nil
	})
}

// PlaylistSetAutoplay sets whether navigation wraps around.
func (a *App) PlaylistSetAutoplay(enabled bool) {
	_ = a.mutate(func(e *playlist.Engine) error {
		e.SetAutoplay(enabled)
		return nil
	})
}

// ResolveMedia resolves query without touching the playlist.
func (a *App) ResolveMedia(ctx context.Context, query string) (media.Descriptor, error) {
	if strings.TrimSpace(query) == "" {
		return media.Descriptor{}, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if a.resolver == nil {
		return media.Descriptor{}, fmt.Errorf("%w: no media resolver", ErrNotConfigured)
	}
	return a.resolver.Resolve(ctx, query)
}

// mutate runs fn under the write lock. On success it publishes the new state
// and persists it; index errors are returned to the caller and reported as a
// playlist-error notification.
func (a *App) mutate(fn func(e *playlist.Engine) error) error {
	a.mu.Lock()
	err := fn(a.playlist)
	st := a.playlist.Snapshot()
	a.mu.Unlock()

	switch {
	case errors.Is(err, errUnchanged):
		return nil
	case errors.Is(err, playlist.ErrIndexOutOfBounds):
		a.publishPlaylistError(PlaylistError{Message: err.Error()})
		return err
	case err != nil:
		return err
	}
	telemetry.SetPlaylistLength(len(st.Items))
	a.sink.Publish(events.TopicPlaylistStateUpdated, st)
	a.persist()
	return nil
}

func (a *App) publishPlaylistError(pe PlaylistError) {
	a.sink.Publish(events.TopicPlaylistError, pe)
}

// persist saves the latest snapshot. Saves are serialized and each reads the
// state at save time, so the store never moves backwards.
func (a *App) persist() {
	if a.store == nil {
		return
	}
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	a.mu.RLock()
	st := a.playlist.Snapshot()
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.store.Save(ctx, st); err != nil {
		slog.Warn("playlist snapshot save failed", slog.String("component", "app"), slog.Any("err", err))
	}
}
