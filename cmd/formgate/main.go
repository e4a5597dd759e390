package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mkravets/formgate/core/config"
	"github.com/mkravets/formgate/core/database"
	"github.com/mkravets/formgate/core/logger"
	tg "github.com/mkravets/formgate/core/telegram"
	tgsender "github.com/mkravets/formgate/core/telegram/sender"
	"github.com/mkravets/formgate/internal/app"
	"github.com/mkravets/formgate/internal/form"
	"github.com/mkravets/formgate/internal/moderation"
	"github.com/mkravets/formgate/internal/session"
	"github.com/mkravets/formgate/internal/settings"
	"log/slog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "formgate:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Shutdown()

	catalog, err := form.LoadCatalog(cfg.Forms.Path, form.CatalogOptions{Lax: cfg.Debug()})
	if err != nil {
		return fmt.Errorf("load forms: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settingsStore, postStore, err := buildStores(cfg)
	if err != nil {
		return err
	}

	sessions, err := buildSessions(ctx, cfg)
	if err != nil {
		return err
	}

	sets := settings.New(ctx, settingsStore, settings.Defaults{
		Admins:       cfg.Telegram.BootstrapAdmins,
		MinApproval:  cfg.Moderation.MinApproval,
		MinRejection: cfg.Moderation.MinRejection,
	})

	notifier := app.NewNotifier()
	posts := moderation.NewService(postStore, notifier, sets)

	a := app.New(app.Options{
		Config:   cfg,
		Catalog:  catalog,
		Sessions: sessions,
		Settings: sets,
		Posts:    posts,
		Notifier: notifier,
	})

	reg := tg.NewRegistry()
	routes := a.Register(reg)

	return tg.RunTelegram(ctx, tg.RunOptions{
		Config:   cfg,
		Registry: reg,
		Routes:   routes,
		DispatcherOptions: tgsender.Options{
			QueueSize:  256,
			Workers:    4,
			MaxRetries: 3,
		},
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.BindBot(rt.Bot)
			logger.L.Info("bot started",
				slog.String("event", "startup"),
				slog.Int("count", len(catalog.All())),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			logger.L.Info("bot stopped",
				slog.String("event", "shutdown"),
			)
			return nil
		},
	})
}

// buildStores constructs the durable settings and post stores for the
// configured storage driver.
func buildStores(cfg *config.Config) (settings.Store, moderation.Store, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		dbCfg, err := database.LoadFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("database config: %w", err)
		}
		if err := database.RunMigrations(dbCfg); err != nil {
			return nil, nil, err
		}
		db, err := database.Connect(dbCfg)
		if err != nil {
			return nil, nil, err
		}
		return settings.NewPGStore(db), moderation.NewPGStore(db), nil
	default:
		settingsStore, err := settings.NewJSONStore(filepath.Join(cfg.Storage.Dir, cfg.Storage.SettingsFile))
		if err != nil {
			return nil, nil, err
		}
		postStore, err := moderation.NewJSONStore(filepath.Join(cfg.Storage.Dir, cfg.Storage.PostsFile))
		if err != nil {
			return nil, nil, err
		}
		return settingsStore, postStore, nil
	}
}

// buildSessions constructs the session backend.
func buildSessions(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.Session.Driver != config.SessionRedis {
		return session.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Session.Redis.Addr,
		Password: cfg.Session.Redis.Password,
		DB:       cfg.Session.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.L.Info("redis connected",
		slog.String("event", "redis.connect"),
		slog.String("addr", cfg.Session.Redis.Addr),
	)
	return session.NewRedisStore(client), nil
}
