package command

import "testing"

func TestParse_AliasesMatchCanonicalName(t *testing.T) {
	cfg := DefaultConfig()
	for _, prefix := range []string{"!", "?", "@@"} {
		cfg.Prefix = prefix
		for name, def := range cfg.Commands {
			want, wantOK := Parse(cfg, prefix+name+" x")
			for _, alias := range def.Aliases {
				got, ok := Parse(cfg, prefix+alias+" x")
				if ok != wantOK || got.Kind != want.Kind {
					t.Errorf("prefix %q alias %q = (%v, %v), canonical %q = (%v, %v)", prefix, alias, got.Kind, ok, name, want.Kind, wantOK)
				}
			}
		}
	}
}

func TestParse(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		text   string
		want   Command
		wantOK bool
	}{
		{"plain chat", "not a command", Command{}, false},
		{"prefix not at start", " !skip", Command{}, false},
		{"playlist with query", "!playlist https://youtube.com/watch?v=xyz", Command{Kind: KindPlaylistAdd, Query: "https://youtube.com/watch?v=xyz"}, true},
		{"korean alias", "!신청곡 아이유 밤편지", Command{Kind: KindPlaylistAdd, Query: "아이유 밤편지"}, true},
		{"query is trimmed", "!sr    lofi beats  ", Command{Kind: KindPlaylistAdd, Query: "lofi beats"}, true},
		{"playlist without query", "!sr", Command{}, false},
		{"playlist with blank query", "!sr   ", Command{}, false},
		{"case folded name", "!SKIP", Command{Kind: KindSkip}, true},
		{"tab separates args", "!sr\tsong", Command{Kind: KindPlaylistAdd, Query: "song"}, true},
		{"previous alias", "!prev", Command{Kind: KindPrevious}, true},
		{"pause", "!정지", Command{Kind: KindPause}, true},
		{"clear alias", "!clearplaylist", Command{Kind: KindClear}, true},
		{"bare play resumes", "!play", Command{Kind: KindPlay}, true},
		{"play with query adds", "!play some song", Command{Kind: KindPlaylistAdd, Query: "some song"}, true},
		{"unknown name", "!dance now", Command{Kind: KindUnknown, Name: "dance"}, true},
		{"bare prefix", "!", Command{Kind: KindUnknown, Name: ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(cfg, tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParse_DisabledCommandIsUnknown(t *testing.T) {
	cfg := DefaultConfig().Clone()
	def := cfg.Commands[NameSkip]
	def.Enabled = false
	cfg.Commands[NameSkip] = def

	got, ok := Parse(cfg, "!next")
	if !ok || got.Kind != KindUnknown || got.Name != "next" {
		t.Fatalf("Parse(!next) = (%+v, %v), want Unknown{next}", got, ok)
	}
}

func TestParse_CustomDefinitionIsUnknown(t *testing.T) {
	cfg := DefaultConfig().Clone()
	cfg.Commands["hello"] = Definition{Name: "hello", Aliases: []string{"hi"}, Enabled: true}

	got, ok := Parse(cfg, "!hi there")
	if !ok || got.Kind != KindUnknown || got.Name != "hi" {
		t.Fatalf("Parse(!hi there) = (%+v, %v), want Unknown{hi}", got, ok)
	}
}

func TestIsCommand(t *testing.T) {
	cfg := Config{Prefix: "~"}
	if !IsCommand(cfg, "~anything") {
		t.Error("expected prefixed text to be a command")
	}
	if IsCommand(cfg, "!skip") {
		t.Error("expected other prefix to be plain chat")
	}
	if !IsCommand(Config{}, "!skip") {
		t.Error("empty prefix should fall back to the default")
	}
}

func TestConfigLimit(t *testing.T) {
	if _, ok := DefaultConfig().Limit(); ok {
		t.Error("default config should be unlimited")
	}
	cfg := Config{PlaylistLimits: Limits{UserLimit: 2}}
	if n, ok := cfg.Limit(); !ok || n != 2 {
		t.Errorf("Limit() = (%d, %v), want (2, true)", n, ok)
	}
}

func TestClone_DoesNotShareAliases(t *testing.T) {
	orig := DefaultConfig()
	cp := orig.Clone()
	def := cp.Commands[NameSkip]
	def.Aliases[0] = "changed"
	if orig.Commands[NameSkip].Aliases[0] == "changed" {
		t.Fatal("Clone shares alias slices with the original")
	}
}
