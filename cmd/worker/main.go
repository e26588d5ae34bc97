package main

import (
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/historyhub/internal/config"
	"github.com/nikhilbhutani/historyhub/internal/queue"
	"github.com/nikhilbhutani/historyhub/internal/queue/workers"
	"github.com/nikhilbhutani/historyhub/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sink := webhook.NewSink(cfg.Webhook.URLs, cfg.Webhook.Secret)
	if sink.Empty() {
		slog.Warn("WEBHOOK_URLS is empty, history events will be acknowledged without delivery")
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Fan-out re-enqueues one delivery task per webhook URL.
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.QueueDefault: 1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	fanout := workers.NewFanoutWorker(client, sink.URLs(), logger)
	delivery := workers.NewDeliveryWorker(sink, logger)
	registry.Register(queue.TypeHistoryEvent, asynq.HandlerFunc(fanout.ProcessTask))
	registry.Register(queue.TypeWebhookDelivery, asynq.HandlerFunc(delivery.ProcessTask))

	slog.Info("starting worker", "concurrency", 10, "tasks", registry.Types(), "webhooks", len(cfg.Webhook.URLs))
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		client.Close()
		os.Exit(1)
	}
}
