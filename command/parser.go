package command

import (
	"slices"
	"sort"
	"strings"
	"unicode"
)

// Kind identifies a parsed command.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlaylistAdd
	KindSkip
	KindPrevious
	KindPause
	KindPlay
	KindClear
)

func (k Kind) String() string {
	switch k {
	case KindPlaylistAdd:
		return "playlist_add"
	case KindSkip:
		return "skip"
	case KindPrevious:
		return "previous"
	case KindPause:
		return "pause"
	case KindPlay:
		return "play"
	case KindClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Command is the result of parsing one chat message. Query is set for
// KindPlaylistAdd; Name holds the typed command name for KindUnknown.
type Command struct {
	Kind  Kind   `json:"kind"`
	Query string `json:"query,omitempty"`
	Name  string `json:"name,omitempty"`
}

// IsCommand reports whether text starts with the configured prefix.
func IsCommand(cfg Config, text string) bool {
	return strings.HasPrefix(text, prefixOf(cfg))
}

// Parse maps chat text to a Command. ok is false for plain chat and for a
// playlist request that carries no query.
func Parse(cfg Config, text string) (cmd Command, ok bool) {
	prefix := prefixOf(cfg)
	if !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}
	rest := strings.TrimSpace(text[len(prefix):])
	name, arg := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, arg = rest[:i], strings.TrimSpace(rest[i:])
	}
	name = strings.ToLower(name)

	def, found := lookup(cfg, name)
	if !found {
		return Command{Kind: KindUnknown, Name: name}, true
	}
	switch strings.ToLower(def.Name) {
	case NamePlaylist:
		if arg == "" {
			return Command{}, false
		}
		return Command{Kind: KindPlaylistAdd, Query: arg}, true
	case NamePlay:
		if arg != "" {
			return Command{Kind: KindPlaylistAdd, Query: arg}, true
		}
		return Command{Kind: KindPlay}, true
	case NameSkip:
		return Command{Kind: KindSkip}, true
	case NamePrevious:
		return Command{Kind: KindPrevious}, true
	case NamePause:
		return Command{Kind: KindPause}, true
	case NameClear:
		return Command{Kind: KindClear}, true
	default:
		return Command{Kind: KindUnknown, Name: name}, true
	}
}

// lookup walks enabled definitions in key order so overlapping aliases
// resolve the same way on every call.
func lookup(cfg Config, name string) (Definition, bool) {
	if name == "" {
		return Definition{}, false
	}
	keys := make([]string, 0, len(cfg.Commands))
	for k := range cfg.Commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		def := cfg.Commands[k]
		if !def.Enabled {
			continue
		}
		if strings.EqualFold(def.Name, name) {
			return def, true
		}
		if slices.ContainsFunc(def.Aliases, func(a string) bool { return strings.EqualFold(a, name) }) {
			return def, true
		}
	}
	return Definition{}, false
}

func prefixOf(cfg Config) string {
	if cfg.Prefix == "" {
		return DefaultPrefix
	}
	return cfg.Prefix
}
