// Package command turns chat text into playlist and playback commands.
//
// A Config carries the command prefix, the command table (canonical name plus
// aliases per command) and the per-contributor playlist limit. Parse is pure:
// it reads the Config and never mutates it, so callers can swap the Config
// under their own lock while parsing continues elsewhere.
package command

// Canonical command names recognized by Parse. Definitions under any other
// name still parse, but as Unknown.
const (
	NamePlaylist = "playlist"
	NameSkip     = "skip"
	NamePrevious = "previous"
	NamePause    = "pause"
	NamePlay     = "play"
	NameClear    = "clear"
)

// DefaultPrefix is used when a Config leaves Prefix empty.
const DefaultPrefix = "!"

// Definition describes one command and the names viewers can use for it.
type Definition struct {
	Name        string   `json:"name" toml:"name" yaml:"name"`
	Aliases     []string `json:"aliases" toml:"aliases" yaml:"aliases"`
	Description string   `json:"description" toml:"description" yaml:"description"`
	Enabled     bool     `json:"enabled" toml:"enabled" yaml:"enabled"`
}

// Limits bounds playlist contributions. A UserLimit of 0 means unlimited.
type Limits struct {
	UserLimit int `json:"user_limit" toml:"user_limit" yaml:"user_limit"`
}

// Config is the command table used by Parse.
type Config struct {
	Prefix         string                `json:"prefix" toml:"prefix" yaml:"prefix"`
	Commands       map[string]Definition `json:"commands" toml:"commands" yaml:"commands"`
	PlaylistLimits Limits                `json:"playlist_limits" toml:"playlist_limits" yaml:"playlist_limits"`
}

// DefaultConfig returns the stock command table.
func DefaultConfig() Config {
	return Config{
		Prefix: DefaultPrefix,
		Commands: map[string]Definition{
			NamePlaylist: {Name: NamePlaylist, Aliases: []string{"sr", "신청곡"}, Description: "Add a song to the playlist", Enabled: true},
			NameSkip:     {Name: NameSkip, Aliases: []string{"next", "다음"}, Description: "Skip to the next song", Enabled: true},
			NamePrevious: {Name: NamePrevious, Aliases: []string{"prev", "이전"}, Description: "Go to the previous song", Enabled: true},
			NamePause:    {Name: NamePause, Aliases: []string{"정지"}, Description: "Pause the current song", Enabled: true},
			NamePlay:     DefaultPlayDefinition(),
			NameClear:    {Name: NameClear, Aliases: []string{"clearplaylist", "초기화"}, Description: "Clear the playlist", Enabled: true},
		},
	}
}

// DefaultPlayDefinition is the resume command. Config migration adds it to
// tables written before it existed.
func DefaultPlayDefinition() Definition {
	return Definition{Name: NamePlay, Aliases: []string{"resume", "재생"}, Description: "Resume playback, or add a song when followed by a query", Enabled: true}
}

// Limit returns the per-contributor limit and whether one is set.
func (c Config) Limit() (int, bool) {
	if c.PlaylistLimits.UserLimit <= 0 {
		return 0, false
	}
	return c.PlaylistLimits.UserLimit, true
}

// Clone returns a deep copy so a caller can hand the Config out without
// sharing the command map.
func (c Config) Clone() Config {
	out := c
	out.Commands = make(map[string]Definition, len(c.Commands))
	for k, d := range c.Commands {
		d.Aliases = append([]string(nil), d.Aliases...)
		out.Commands[k] = d
	}
	return out
}
