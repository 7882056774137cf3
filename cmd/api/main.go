package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"notion-content-sync/internal/api"
	"notion-content-sync/internal/config"
	"notion-content-sync/internal/logging"
	"notion-content-sync/internal/media"
	"notion-content-sync/internal/notion"
	"notion-content-sync/internal/ratelimit"
	"notion-content-sync/internal/schema"
	"notion-content-sync/internal/store"
	"notion-content-sync/internal/sync"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg, "api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	client := notion.NewHTTPClient(notion.HTTPClientOptions{
		BaseURL:       cfg.NotionBaseURL,
		Token:         cfg.NotionToken,
		IndicatorProp: cfg.NotionIndicatorProp,
		Timeout:       cfg.NotionTimeout,
		Logger:        log,
	})

	var mirror sync.AssetMirror
	if cfg.MediaEnabled {
		m, err := media.New(ctx, media.Options{
			S3Bucket:        cfg.MediaS3Bucket,
			S3Region:        cfg.MediaS3Region,
			S3Endpoint:      cfg.MediaS3Endpoint,
			S3PathStyle:     cfg.MediaS3PathStyle,
			OutputDir:       cfg.MediaOutputDir,
			DownloadTimeout: cfg.MediaDownloadTimeout,
			MaxBytes:        cfg.MediaMaxBytes,
			ThumbWidth:      cfg.MediaThumbWidth,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("init media mirror")
		}
		mirror = m
	}

	svc := sync.NewService(st, st, st, client, schema.PostDescriptor(), log, sync.Options{
		PublishedOption: cfg.PublishedOption,
		Mirror:          mirror,
	})

	server := api.New(cfg, svc, st, st, client, limiter, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Info().Str("port", cfg.HTTPPort).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
