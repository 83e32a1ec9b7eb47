// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/pikit/internal/accounts"
	"github.com/jason-s-yu/pikit/internal/auth"
	"github.com/jason-s-yu/pikit/internal/cache"
	"github.com/jason-s-yu/pikit/internal/config"
	"github.com/jason-s-yu/pikit/internal/database"
	"github.com/jason-s-yu/pikit/internal/detector"
	"github.com/jason-s-yu/pikit/internal/handlers"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/quests"
	"github.com/jason-s-yu/pikit/internal/rewards"
	"github.com/jason-s-yu/pikit/internal/storage"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Dev() {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	store := database.New(pool)

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var photos hunt.PhotoArchive
	if sc, ok := cfg.Storage(); ok {
		archive, err := storage.NewPhotoArchive(ctx, sc)
		if err != nil {
			return err
		}
		photos = archive
	} else {
		logger.Warn("S3_BUCKET not set; evidence photos will not be archived")
	}

	ttl, err := auth.ParseTTL(cfg.TokenExpireTime)
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(ttl)
	if err != nil {
		return err
	}
	hasher := auth.NewHasher()

	pools := hunt.ChainPools{
		cache.NewPoolCache(rdb, store, cfg.PoolCacheTTL, logger),
		hunt.DefaultPools(),
	}
	svc := hunt.NewService(hunt.Deps{
		Store:     store,
		Pools:     pools,
		Detector:  detector.NewClient(cfg.Detector()),
		Passwords: hasher,
		Events:    cache.NewEventQueue(rdb, cfg.EventQueueName),
		Photos:    photos,
		Logger:    logger,
	}, cfg.Hunt())

	calc := rewards.NewCalculator(store.Rewards(), cfg.Rewards(), logger, nil)
	questSvc := quests.NewService(store, pools, calc, cfg.Quests(), logger, nil)

	sched, err := quests.StartScheduler(ctx, questSvc, svc.Starts, cfg.SweepInterval, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.WithError(err).Warn("scheduler shutdown failed")
		}
	}()

	api := &handlers.Server{
		Hunt:          svc,
		Rewards:       calc,
		Quests:        questSvc,
		Accounts:      accounts.NewService(store, hasher, issuer, logger),
		Logger:        logger,
		SecureCookies: !cfg.Dev(),
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	if cfg.Dev() {
		// bind to localhost outside production
		addr = fmt.Sprintf("localhost:%d", cfg.Port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
