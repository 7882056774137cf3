package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"notion-content-sync/internal/config"
	"notion-content-sync/internal/logging"
	"notion-content-sync/internal/media"
	"notion-content-sync/internal/notion"
	"notion-content-sync/internal/schema"
	"notion-content-sync/internal/store"
	"notion-content-sync/internal/sync"
	"notion-content-sync/internal/telemetry"
	"notion-content-sync/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg, "worker")

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

	lockID := os.Getenv("WORKER_ID")
	if lockID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			lockID = hostname
		} else {
			lockID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	runner := worker.NewRunner(svc, st, log, worker.RunnerOptions{
		LockID:       lockID,
		PollInterval: cfg.WorkerPollInterval,
		LockTTL:      cfg.LockTTL,
		Counter:      st,
	})
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("worker stopped")
	}
}
