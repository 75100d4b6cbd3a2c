package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"wedsite/internal/config"
	"wedsite/internal/database"
	"wedsite/internal/metrics"
	"wedsite/internal/pagecache"
	"wedsite/internal/render"
	"wedsite/internal/storage"
	"wedsite/internal/tasks"
	"wedsite/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database, logger)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	themes, err := render.NewThemeStyles(cfg.Theme.Dir)
	if err != nil {
		log.Fatalf("load themes: %v", err)
	}

	opts := []worker.PublishOption{
		worker.WithPageCache(pagecache.New(redisClient, cfg.API.PageCacheTTL, logger)),
	}
	if cfg.Worker.Thumbnails {
		opts = append(opts, worker.WithScreenshotter(&worker.BrowserScreenshotter{
			Logger:  logger,
			Timeout: cfg.Worker.BrowserTimeout,
			Width:   cfg.Worker.ThumbnailWidth,
			Height:  cfg.Worker.ThumbnailHeight,
		}))
	}
	publishHandler := worker.NewPublishTaskHandler(db, storageClient, redisClient, themes, logger, opts...)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeSitePublish, publishHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Bool("thumbnails", cfg.Worker.Thumbnails),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
