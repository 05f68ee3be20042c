// main.go - Queue worker that runs analyses submitted with async=true.

package main

import (
	"context"
	"time"

	"github.com/bosocmputer/swing_ocr/configs"
	"github.com/bosocmputer/swing_ocr/internal/bootstrap"
	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/queue"
)

func main() {
	configs.LoadConfig()
	common.ConfigureLogger(configs.LOG_LEVEL, configs.LOG_FORMAT)
	log := common.Logger()

	if configs.REDIS_URL == "" {
		log.Fatal("REDIS_URL is required for the worker")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	app, err := bootstrap.Build(startCtx)
	cancelStart()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.Close(ctx); err != nil {
			log.Errorf("Failed to release clients: %v", err)
		}
	}()

	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		RedisURL:    configs.REDIS_URL,
		QueueName:   configs.QUEUE_NAME,
		Concurrency: configs.WORKER_CONCURRENCY,
		Analyzer:    app.Service,
	})
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}

	// Run blocks until SIGINT/SIGTERM and shuts the server down itself.
	if err := consumer.Run(); err != nil {
		log.Errorf("Worker stopped: %v", err)
	}
	log.Info("Worker exited")
}
