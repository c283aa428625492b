// Command chatdeck is the livestream chat companion service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres for playlist persistence and runs migrations.
//   - Loads the chat command table and watches it for edits.
//   - Wires chat sessions (Chzzk or Twitch), the media resolver, the playlist and
//     the AI helper behind one shared state, fanning notifications out to SSE
//     clients and, when configured, an MQTT broker.
//   - Exposes the HTTP API with /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onnwee/chatdeck/app"
	"github.com/onnwee/chatdeck/chat"
	"github.com/onnwee/chatdeck/chzzk"
	"github.com/onnwee/chatdeck/command"
	"github.com/onnwee/chatdeck/completion"
	"github.com/onnwee/chatdeck/config"
	"github.com/onnwee/chatdeck/db"
	"github.com/onnwee/chatdeck/events"
	"github.com/onnwee/chatdeck/media"
	"github.com/onnwee/chatdeck/playlist"
	"github.com/onnwee/chatdeck/server"
	"github.com/onnwee/chatdeck/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:           "chatdeck",
		Short:         "Livestream chat companion: chat commands, song requests and AI chat summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfg *config.Config
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		setupLogger(cfg.LogLevel, cfg.LogFormat)
		return nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and chat pipeline (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	root.RunE = serve.RunE

	root.AddCommand(serve, migrateCmd(&cfg), commandsCmd(&cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("chatdeck exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

// setupLogger configures the default slog logger. Defaults: level=info, format=text.
func setupLogger(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", slog.String("level", lvl.String()))
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    "chatdeck",
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		SampleRatio:    cfg.TraceSampleRatio,
		Platform:       cfg.Platform,
		Environment:    cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer shutdownTracing()

	// Optional Postgres: playlist persistence and readiness.
	var database *sql.DB
	var store app.SnapshotStore
	var prefs app.PrefStore
	if cfg.DBDsn != "" {
		database, err = openDB(cfg.DBDsn)
		if err != nil {
			return err
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		store = &playlist.PGStore{DB: database}
		prefs = db.KV{DB: database}
	} else {
		slog.Info("DB_DSN not set, playlist is kept in memory only")
	}

	resolver, err := media.New(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		return fmt.Errorf("media resolver: %w", err)
	}

	// Notifications: SSE hub, plus MQTT when a broker is configured.
	hub := events.NewHub()
	var sink events.Sink = hub
	if cfg.MQTTBroker != "" {
		mq, err := events.NewMQTTSink(events.MQTTOptions{
			BrokerURL: cfg.MQTTBroker,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			TopicBase: cfg.MQTTTopicBase,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer mq.Close()
		sink = events.Multi{hub, mq}
		slog.Info("mqtt notifications enabled", slog.String("broker", cfg.MQTTBroker), slog.String("topic_base", cfg.MQTTTopicBase))
	}

	commands, err := config.LoadCommandFile(cfg.CommandConfigPath)
	if err != nil {
		return fmt.Errorf("command config: %w", err)
	}

	a := app.New(app.Options{
		NewSession: sessionFactory(cfg),
		Resolver:   resolver,
		Sink:       sink,
		Store:      store,
		Prefs:      prefs,
		NewCompleter: func(kind completion.Kind, apiKey string) (completion.Completer, error) {
			p, err := completion.NewProvider(kind, apiKey, completion.ProviderOptions{Model: cfg.AIModel})
			if err != nil {
				return nil, err
			}
			return completion.NewGateway(p), nil
		},
		Commands: commands,
		SaveCommands: func(c command.Config) error {
			return config.SaveCommandFile(cfg.CommandConfigPath, c)
		},
		ChatBufferSize: cfg.ChatBufferSize,
		DisplayLogSize: cfg.DisplayLogSize,
		DedupWindow:    cfg.DedupWindow,
	})
	defer a.Close()

	if err := a.Restore(ctx); err != nil {
		slog.Warn("playlist restore failed", slog.Any("err", err))
	}
	if cfg.AIProvider != "" && cfg.AIAPIKey != "" {
		if err := a.ConfigureAI(cfg.AIProvider, cfg.AIAPIKey); err != nil {
			slog.Warn("AI provider from environment rejected", slog.String("provider", cfg.AIProvider), slog.Any("err", err))
		}
	}
	if err := config.WatchCommandFile(ctx, cfg.CommandConfigPath, a.ReloadCommandConfig); err != nil {
		slog.Warn("command config watch disabled", slog.String("path", cfg.CommandConfigPath), slog.Any("err", err))
	}

	slog.Info("chatdeck starting",
		slog.String("platform", cfg.Platform),
		slog.String("addr", cfg.HTTPAddr),
		slog.String("command_config", cfg.CommandConfigPath),
		slog.Bool("database", database != nil))

	handler := server.NewMux(ctx, server.Deps{App: a, Hub: hub, DB: database, Config: cfg})
	if err := server.Start(ctx, cfg.HTTPAddr, handler); err != nil {
		return err
	}
	slog.Info("shutting down")
	return nil
}

func openDB(dsn string) (*sql.DB, error) {
	database, err := db.Connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Setup(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// sessionFactory picks the chat platform.
func sessionFactory(cfg *config.Config) app.SessionFactory {
	if cfg.Platform == config.PlatformTwitch {
		return func(sink chat.Sink) app.ChatSession {
			return chat.NewTwitchSession(chat.TwitchConfig{
				Username:   cfg.TwitchBotUsername,
				OAuthToken: cfg.TwitchOAuthToken,
				Address:    cfg.TwitchIRCAddress,
				CloseGrace: cfg.CloseGrace,
			}, sink)
		}
	}
	client := &chzzk.Client{APIBase: cfg.ChzzkAPIBase, CommAPIBase: cfg.ChzzkCommAPIBase}
	return func(sink chat.Sink) app.ChatSession {
		return chat.NewSession(chat.Config{
			Resolver:          client,
			ServerURLTemplate: cfg.ChatServerTemplate,
			HeartbeatInterval: cfg.HeartbeatInterval,
			CloseGrace:        cfg.CloseGrace,
		}, sink)
	}
}

func migrateCmd(cfg **config.Config) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, revert) the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if c.DBDsn == "" {
				return fmt.Errorf("DB_DSN is required")
			}
			database, err := db.Connect(c.DBDsn)
			if err != nil {
				return err
			}
			defer database.Close()
			if down {
				return db.MigrateDown(database)
			}
			if err := db.RunMigrations(database); err != nil {
				return err
			}
			v, dirty, err := db.GetMigrationVersion(database)
			if err != nil {
				return err
			}
			slog.Info("migrations applied", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert all migrations")
	return cmd
}

func commandsCmd(cfg **config.Config) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Inspect or upgrade the chat command file",
	}
	cmd.PersistentFlags().StringVar(&path, "file", "", "command file (default COMMAND_CONFIG_PATH)")
	resolve := func() string {
		if path != "" {
			return path
		}
		return (*cfg).CommandConfigPath
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the command file to the current schema, writing defaults if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := resolve()
			if _, err := config.LoadCommandFile(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", p, config.CommandSchemaVersion)
			return nil
		},
	}, &cobra.Command{
		Use:   "show",
		Short: "Print the effective command table",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := resolve()
			c, err := config.LoadCommandFile(p)
			if err != nil {
				return err
			}
			out, err := config.EncodeCommandFile(c, config.FormatFor(p))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
