package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enaribe/startup-ludo/engine/agent"
	"github.com/enaribe/startup-ludo/service/internal/auth"
	"github.com/enaribe/startup-ludo/service/internal/cache"
	"github.com/enaribe/startup-ludo/service/internal/config"
	"github.com/enaribe/startup-ludo/service/internal/content"
	"github.com/enaribe/startup-ludo/service/internal/database"
	"github.com/enaribe/startup-ludo/service/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	if err := cfg.ConfigureLogger(); err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("relay stopped")
	}
	logrus.Info("relay stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	actions := initActionLog(ctx, cfg)
	defer cache.CloseRedis()

	store, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.CloseDB()

	catalog, err := content.LoadFile(cfg.ContentFile)
	if err != nil {
		return err
	}
	logrus.WithField("editions", catalog.Editions()).Info("content loaded")

	authn, err := auth.New(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		return err
	}

	hub := transport.NewHub(actions, store, catalog, authn, transport.Settings{
		Edition:             cfg.ContentEdition,
		Policy:              agent.ParsePolicy(cfg.ComputerPolicy),
		ComputerDelayMin:    cfg.ComputerDelayMin,
		ComputerDelayMax:    cfg.ComputerDelayMax,
		ReconnectGrace:      cfg.ReconnectGrace,
		TurnTimeout:         cfg.TurnTimeout,
		ForfeitOnDisconnect: cfg.ForfeitOnDisconnect,
	}, logrus.StandardLogger())
	defer hub.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           transport.NewServer(hub, authn, logrus.StandardLogger()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("addr", cfg.Addr).Info("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// initActionLog uses redis when configured and falls back to memory.
func initActionLog(ctx context.Context, cfg config.Config) cache.ActionLog {
	if cfg.RedisAddr == "" {
		logrus.Info("REDIS_ADDR not set, keeping the action log in memory")
		return cache.NewMemoryLog()
	}
	if err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		logrus.WithError(err).Warn("redis unavailable, keeping the action log in memory")
		return cache.NewMemoryLog()
	}
	return cache.NewRedisLog(cache.Rdb, cfg.LogTTL)
}

// initStore connects postgres when configured. Without it sessions are not
// persisted and cannot be recovered after a restart.
func initStore(ctx context.Context, cfg config.Config) (transport.SessionStore, error) {
	if cfg.DatabaseURL == "" {
		logrus.Info("DATABASE_URL not set, results are not stored")
		return nil, nil
	}
	if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, database.DB); err != nil {
		return nil, err
	}
	return database.NewStore(database.DB), nil
}
