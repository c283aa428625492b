package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/chatdeck/command"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Platform != PlatformChzzk {
		t.Errorf("Platform = %q, want chzzk", cfg.Platform)
	}
	if cfg.HeartbeatInterval != 20*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.ChatBufferSize != 100 || cfg.DisplayLogSize != 500 || cfg.DedupWindow != 3*time.Second {
		t.Errorf("buffers = %d/%d/%v", cfg.ChatBufferSize, cfg.DisplayLogSize, cfg.DedupWindow)
	}
	if !cfg.OTLPInsecure || cfg.TraceSampleRatio != 1 {
		t.Errorf("tracing = insecure %v, ratio %v", cfg.OTLPInsecure, cfg.TraceSampleRatio)
	}
	if filepath.Base(cfg.CommandConfigPath) != "commands.toml" {
		t.Errorf("CommandConfigPath = %q", cfg.CommandConfigPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_PLATFORM", " Twitch ")
	t.Setenv("CHAT_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("COMMAND_CONFIG_PATH", "/tmp/x.yaml")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Platform != PlatformTwitch || cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CommandConfigPath != "/tmp/x.yaml" {
		t.Errorf("CommandConfigPath = %q", cfg.CommandConfigPath)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CHAT_CLOSE_GRACE", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	base := Config{Platform: PlatformChzzk, HeartbeatInterval: time.Second, ChatBufferSize: 1, DisplayLogSize: 1}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"chzzk", func(*Config) {}, false},
		{"twitch anonymous", func(c *Config) { c.Platform = PlatformTwitch }, false},
		{"twitch full", func(c *Config) {
			c.Platform = PlatformTwitch
			c.TwitchBotUsername, c.TwitchOAuthToken = "bot", "tok"
		}, false},
		{"twitch missing token", func(c *Config) {
			c.Platform = PlatformTwitch
			c.TwitchBotUsername = "bot"
		}, true},
		{"unknown platform", func(c *Config) { c.Platform = "youtube" }, true},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMigrateLegacyCommandFile(t *testing.T) {
	legacy := []byte(`
prefix = "!"

[commands.playlist]
name = "playlist"
aliases = ["sr"]
description = "Add a song"
enabled = true
`)
	cf, migrated, err := DecodeCommandFile(legacy, FormatTOML)
	if err != nil {
		t.Fatalf("DecodeCommandFile: %v", err)
	}
	if !migrated {
		t.Error("legacy file not reported as migrated")
	}
	if cf.SchemaVersion != CommandSchemaVersion {
		t.Errorf("SchemaVersion = %d", cf.SchemaVersion)
	}
	if _, ok := cf.Commands[command.NamePlay]; !ok {
		t.Error("play command not added")
	}
	if _, ok := cf.Limit(); ok {
		t.Error("migrated limit should be unlimited")
	}
	if d := cf.Commands[command.NamePlaylist]; len(d.Aliases) != 1 || d.Aliases[0] != "sr" || !d.Enabled {
		t.Errorf("playlist definition = %+v", d)
	}
}

func TestMigrateCurrentIsNoop(t *testing.T) {
	data, err := EncodeCommandFile(command.DefaultConfig(), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	cf, migrated, err := DecodeCommandFile(data, FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if migrated {
		t.Error("current file reported as migrated")
	}
	if len(cf.Commands) != len(command.DefaultConfig().Commands) {
		t.Errorf("commands = %d", len(cf.Commands))
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	_, _, err := MigrateCommandFile(map[string]any{"schema_version": int64(CommandSchemaVersion + 1)})
	if !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("err = %v, want ErrUnsupportedSchema", err)
	}
}

func TestLoadCommandFileCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "commands.toml")
	cfg, err := LoadCommandFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prefix != command.DefaultPrefix {
		t.Errorf("Prefix = %q", cfg.Prefix)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	again, err := LoadCommandFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Commands) != len(cfg.Commands) {
		t.Errorf("round trip lost commands: %d vs %d", len(again.Commands), len(cfg.Commands))
	}
}

func TestLoadCommandFileRewritesLegacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	legacy := "prefix: \"?\"\ncommands:\n  skip:\n    name: skip\n    aliases: [next]\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadCommandFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prefix != "?" {
		t.Errorf("Prefix = %q", cfg.Prefix)
	}
	data, _ := os.ReadFile(path)
	cf, migrated, err := DecodeCommandFile(data, FormatYAML)
	if err != nil || migrated || cf.SchemaVersion != CommandSchemaVersion {
		t.Errorf("rewritten file: migrated=%v version=%d err=%v", migrated, cf.SchemaVersion, err)
	}
}

func TestWatchCommandFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.toml")
	if err := SaveCommandFile(path, command.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan command.Config, 4)
	if err := WatchCommandFile(ctx, path, func(c command.Config) { got <- c }); err != nil {
		t.Fatal(err)
	}

	next := command.DefaultConfig()
	next.Prefix = "#"
	if err := SaveCommandFile(path, next); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-got:
		if c.Prefix != "#" {
			t.Errorf("reloaded prefix = %q", c.Prefix)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestFormatFor(t *testing.T) {
	if FormatFor("a/b.YML") != FormatYAML || FormatFor("c.yaml") != FormatYAML {
		t.Error("yaml extensions not recognized")
	}
	if FormatFor("c.toml") != FormatTOML || FormatFor("noext") != FormatTOML {
		t.Error("toml default not applied")
	}
}
