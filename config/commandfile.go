package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/onnwee/chatdeck/command"
)

// CommandSchemaVersion is the command file layout written by this build.
const CommandSchemaVersion = 2

// ErrUnsupportedSchema is returned for a command file newer than this build.
var ErrUnsupportedSchema = errors.New("unsupported command file schema version")

// CommandFile is the on-disk command table.
type CommandFile struct {
	SchemaVersion  int `json:"schema_version" toml:"schema_version" yaml:"schema_version"`
	command.Config `yaml:",inline"`
}

// Format is a command file encoding.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatFor picks the encoding from the file extension; anything other than
// .yaml or .yml is TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// DefaultCommandConfigPath returns $XDG_CONFIG_HOME/chatdeck/commands.toml,
// falling back to ~/.config.
func DefaultCommandConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "chatdeck", "commands.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chatdeck", "commands.toml"), nil
}

// MigrateCommandFile upgrades a decoded command file to the current schema.
//
// Version 0 (no schema_version) is the legacy layout: it may lack
// playlist_limits and the play command. Migration adds an explicit unlimited
// playlist_limits table and the default play definition, and stamps the
// current version. migrated reports whether anything changed.
func MigrateCommandFile(raw map[string]any) (cf CommandFile, migrated bool, err error) {
	version, err := schemaVersion(raw["schema_version"])
	if err != nil {
		return cf, false, err
	}
	if version > CommandSchemaVersion {
		return cf, false, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedSchema, version, CommandSchemaVersion)
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return cf, false, fmt.Errorf("re-encode command file: %w", err)
	}
	if err := json.Unmarshal(b, &cf); err != nil {
		return cf, false, fmt.Errorf("decode command file: %w", err)
	}
	if cf.Commands == nil {
		cf.Config = command.DefaultConfig()
		migrated = true
	}
	if cf.Prefix == "" {
		cf.Prefix = command.DefaultPrefix
		migrated = true
	}

	if version < CommandSchemaVersion {
		if _, ok := raw["playlist_limits"]; !ok {
			cf.PlaylistLimits = command.Limits{UserLimit: 0}
		}
		if _, ok := cf.Commands[command.NamePlay]; !ok {
			cf.Commands[command.NamePlay] = command.DefaultPlayDefinition()
		}
		migrated = true
	}
	cf.SchemaVersion = CommandSchemaVersion
	return cf, migrated, nil
}

func schemaVersion(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("schema_version: unexpected type %T", v)
	}
}

// DecodeCommandFile migrates and decodes data.
func DecodeCommandFile(data []byte, f Format) (CommandFile, bool, error) {
	raw := map[string]any{}
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		err = toml.Unmarshal(data, &raw)
	}
	if err != nil {
		return CommandFile{}, false, fmt.Errorf("parse command file: %w", err)
	}
	return MigrateCommandFile(raw)
}

// EncodeCommandFile renders cfg at the current schema version.
func EncodeCommandFile(cfg command.Config, f Format) ([]byte, error) {
	cf := CommandFile{SchemaVersion: CommandSchemaVersion, Config: cfg}
	if f == FormatYAML {
		return yaml.Marshal(cf)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadCommandFile reads the command table at path. A missing file is created
// with the defaults; a legacy file is migrated and rewritten.
func LoadCommandFile(path string) (command.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := command.DefaultConfig()
		if err := SaveCommandFile(path, cfg); err != nil {
			return cfg, err
		}
		slog.Info("wrote default command config", slog.String("path", path))
		return cfg, nil
	}
	if err != nil {
		return command.Config{}, err
	}

	cf, migrated, err := DecodeCommandFile(data, FormatFor(path))
	if err != nil {
		return command.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if migrated {
		if err := SaveCommandFile(path, cf.Config); err != nil {
			return cf.Config, fmt.Errorf("rewrite migrated command file: %w", err)
		}
		slog.Info("migrated command config", slog.String("path", path), slog.Int("schema_version", CommandSchemaVersion))
	}
	return cf.Config, nil
}

// SaveCommandFile writes cfg to path atomically.
func SaveCommandFile(path string, cfg command.Config) error {
	data, err := EncodeCommandFile(cfg, FormatFor(path))
	if err != nil {
		return fmt.Errorf("encode command file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".commands-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

const reloadDebounce = 200 * time.Millisecond

// WatchCommandFile calls onChange with the new table whenever the file at path
// is rewritten with valid content, until ctx is done. Invalid rewrites are
// logged and ignored.
func WatchCommandFile(ctx context.Context, path string, onChange func(command.Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// watch the directory: editors and SaveCommandFile replace the file
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer w.Close()
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				data, err := os.ReadFile(path)
				if err != nil {
					slog.Warn("command config reload failed", slog.String("path", path), slog.Any("err", err))
					continue
				}
				cf, _, err := DecodeCommandFile(data, FormatFor(path))
				if err != nil {
					slog.Warn("command config reload rejected", slog.String("path", path), slog.Any("err", err))
					continue
				}
				slog.Info("command config reloaded", slog.String("path", path))
				onChange(cf.Config)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("command config watcher error", slog.Any("err", err))
			}
		}
	}()
	return nil
}
