// Package playlist implements the shared song queue driven by chat commands.
//
// An Engine is a plain value with no locking of its own; the owner (the app
// state) serializes access. The cursor is absent exactly when the queue is
// empty and otherwise always indexes a live item.
package playlist

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLimitReached is returned by Add when the contributor already has
	// limit items queued.
	ErrLimitReached = errors.New("playlist: contributor limit reached")
	// ErrIndexOutOfBounds is returned by Move and PlayAt for invalid indices.
	ErrIndexOutOfBounds = errors.New("playlist: index out of bounds")
)

// Item is one queued song. Items are never mutated after creation.
type Item struct {
	ID        string    `json:"id"`
	MediaID   string    `json:"video_id"`
	Title     string    `json:"title"`
	Channel   string    `json:"channel"`
	Duration  string    `json:"duration,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	URL       string    `json:"url"`
	AddedBy   string    `json:"added_by"`
	AddedAt   time.Time `json:"added_at"`
}

// NewItem stamps a fresh id and creation time onto the given fields.
func NewItem(mediaID, title, channel, duration, thumbnail, url, addedBy string) Item {
	return Item{
		ID:        uuid.NewString(),
		MediaID:   mediaID,
		Title:     title,
		Channel:   channel,
		Duration:  duration,
		Thumbnail: thumbnail,
		URL:       url,
		AddedBy:   addedBy,
		AddedAt:   time.Now().UTC(),
	}
}

// State is a copy of the engine suitable for serialization.
type State struct {
	Items        []Item `json:"items"`
	CurrentIndex *int   `json:"current_index"`
	IsPlaying    bool   `json:"is_playing"`
	Autoplay     bool   `json:"autoplay"`
}

// Engine holds the queue, cursor and playback flags.
type Engine struct {
	items    []Item
	cursor   int // -1 when absent
	playing  bool
	autoplay bool
}

// New returns an empty engine with autoplay on.
func New() *Engine {
	return &Engine{cursor: -1, autoplay: true}
}

// Add appends item. When limit > 0 and the contributor already has limit or
// more items queued, the queue is left untouched and ErrLimitReached returned.
func (e *Engine) Add(item Item, limit int) error {
	if limit > 0 && e.countBy(item.AddedBy) >= limit {
		return ErrLimitReached
	}
	e.items = append(e.items, item)
	if e.cursor < 0 && len(e.items) == 1 {
		e.cursor = 0
	}
	return nil
}

func (e *Engine) countBy(user string) int {
	n := 0
	for _, it := range e.items {
		if it.AddedBy == user {
			n++
		}
	}
	return n
}

// Remove deletes the item at index and repairs the cursor. Out of range
// indices are ignored and report false.
func (e *Engine) Remove(index int) (Item, bool) {
	if index < 0 || index >= len(e.items) {
		return Item{}, false
	}
	removed := e.items[index]
	e.items = append(e.items[:index], e.items[index+1:]...)

	switch {
	case e.cursor < 0:
	case index < e.cursor:
		e.cursor--
	case index == e.cursor:
		if len(e.items) == 0 {
			e.cursor = -1
			e.playing = false
		} else if e.cursor >= len(e.items) {
			e.cursor = len(e.items) - 1
		}
	}
	return removed, true
}

// Move relocates the item at from to position to. The cursor follows the
// item it pointed at.
func (e *Engine) Move(from, to int) error {
	n := len(e.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrIndexOutOfBounds
	}
	if from == to {
		return nil
	}
	item := e.items[from]
	e.items = append(e.items[:from], e.items[from+1:]...)
	e.items = append(e.items[:to], append([]Item{item}, e.items[to:]...)...)

	if e.cursor >= 0 {
		switch {
		case e.cursor == from:
			e.cursor = to
		case from < e.cursor && to >= e.cursor:
			e.cursor--
		case from > e.cursor && to <= e.cursor:
			e.cursor++
		}
	}
	return nil
}

// Next advances the cursor, wrapping to the start when autoplay is on.
func (e *Engine) Next() (Item, bool) {
	if len(e.items) == 0 {
		return Item{}, false
	}
	switch {
	case e.cursor < 0:
		e.cursor = 0
	case e.cursor+1 < len(e.items):
		e.cursor++
	case e.autoplay:
		e.cursor = 0
	default:
		return Item{}, false
	}
	return e.items[e.cursor], true
}

// Previous steps the cursor back, wrapping to the end when autoplay is on.
// Without a cursor it does nothing.
func (e *Engine) Previous() (Item, bool) {
	if len(e.items) == 0 || e.cursor < 0 {
		return Item{}, false
	}
	switch {
	case e.cursor > 0:
		e.cursor--
	case e.autoplay:
		e.cursor = len(e.items) - 1
	default:
		return Item{}, false
	}
	return e.items[e.cursor], true
}

// PlayAt moves the cursor to index and starts playback.
func (e *Engine) PlayAt(index int) (Item, error) {
	if index < 0 || index >= len(e.items) {
		return Item{}, ErrIndexOutOfBounds
	}
	e.cursor = index
	e.playing = true
	return e.items[index], nil
}

// Current returns the item under the cursor.
func (e *Engine) Current() (Item, bool) {
	if e.cursor < 0 {
		return Item{}, false
	}
	return e.items[e.cursor], true
}

// Cursor returns the cursor position and whether one is set.
func (e *Engine) Cursor() (int, bool) { return e.cursor, e.cursor >= 0 }

// Len returns the queue length.
func (e *Engine) Len() int { return len(e.items) }

// Clear empties the queue and stops playback.
func (e *Engine) Clear() {
	e.items = nil
	e.cursor = -1
	e.playing = false
}

// SetAutoplay only flips the flag.
func (e *Engine) SetAutoplay(enabled bool) { e.autoplay = enabled }

// SetPlaying sets the playing flag. It is ignored on an empty queue.
func (e *Engine) SetPlaying(playing bool) {
	if playing && len(e.items) == 0 {
		return
	}
	e.playing = playing
}

// Snapshot copies the engine into a State.
func (e *Engine) Snapshot() State {
	st := State{
		Items:     append([]Item{}, e.items...),
		IsPlaying: e.playing,
		Autoplay:  e.autoplay,
	}
	if e.cursor >= 0 {
		c := e.cursor
		st.CurrentIndex = &c
	}
	return st
}

// Restore replaces the engine contents with st, repairing a cursor that no
// longer fits the item list.
func (e *Engine) Restore(st State) {
	e.items = append([]Item(nil), st.Items...)
	e.autoplay = st.Autoplay
	e.playing = st.IsPlaying
	e.cursor = -1
	if len(e.items) == 0 {
		e.playing = false
		return
	}
	e.cursor = 0
	if st.CurrentIndex != nil && *st.CurrentIndex >= 0 && *st.CurrentIndex < len(e.items) {
		e.cursor = *st.CurrentIndex
	}
}
