package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/whiteroom-io/whiteroom/pkg/auth"
	"github.com/whiteroom-io/whiteroom/pkg/config"
	"github.com/whiteroom-io/whiteroom/pkg/room"
	"github.com/whiteroom-io/whiteroom/pkg/server"
	"github.com/whiteroom-io/whiteroom/pkg/store"
	"github.com/whiteroom-io/whiteroom/pkg/stream"
)

func newServeCommand() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the whiteroom server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			setupLogging(cfg.LogLevel)
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func buildStore(cfg *config.Config) (store.SnapshotStore, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		dsn, err := store.SQLiteDSNForFile(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(dsn)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		return store.NewRedisStore(client, "")
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, err := buildStore(cfg)
	if err != nil {
		return errors.Wrap(err, "build snapshot store")
	}
	defer func() { _ = snapshots.Close() }()

	bus := stream.NewBus(log.Logger)
	defer func() { _ = bus.Close() }()

	mgr, err := room.NewManager(ctx, snapshots, room.ManagerOptions{
		Room: room.Options{
			CommitIdle:      cfg.CommitIdle(),
			CommitMax:       cfg.CommitMax(),
			CacheSize:       cfg.Room.CommandCacheSize,
			HistoryMax:      cfg.Room.HistoryMax,
			CreationCeiling: cfg.Room.CreationCeiling,
		},
		EvictIdle:     cfg.EvictIdle(),
		EvictInterval: cfg.EvictInterval(),
		SinkFor:       bus.SinkFor,
		OnCreated: func(r *room.Room) {
			if err := bus.StartForwarder(ctx, r); err != nil {
				log.Warn().Err(err).Str("room_id", r.ID).Msg("could not start event forwarder")
			}
		},
	})
	if err != nil {
		return errors.Wrap(err, "build room manager")
	}
	mgr.StartEvictionLoop(ctx)

	var verifier auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
		verifier = v
		log.Info().Msg("jwt verification enabled")
	} else {
		log.Warn().Msg("no jwt secret configured, running without authentication")
	}

	srv := server.NewServer(mgr, verifier, log.Logger)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.Store.Backend).Msg("whiteroom listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		// flush every pending snapshot before the store closes
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("room manager shutdown")
		}
		return nil
	})
	return eg.Wait()
}
