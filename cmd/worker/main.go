package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cds-backend/cmd"
	"cds-backend/internal/callback"
	"cds-backend/internal/core"
	"cds-backend/internal/database"
	"cds-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`

	// Queues this worker consumes. Each deployment runs workers pinned to a
	// subset of the family queues so heavy models are only loaded where used.
	QueueNames string `env:"QUEUE_NAMES" envDefault:"imaging_queue,genomic_queue,multimodal_queue"`

	ModelRegistryPath string `env:"MODEL_REGISTRY" envDefault:""`
	LocalModelDir     string `env:"LOCAL_MODEL_DIR" envDefault:"/app/models"`
	ModelBucket       string `env:"MODEL_BUCKET_NAME" envDefault:"models"`

	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	LocalStoreDir     string `env:"LOCAL_STORE_DIR" envDefault:"/app/store"`

	CallbackInternalBaseURL string        `env:"CALLBACK_INTERNAL_BASE_URL" envDefault:""`
	CallbackTimeout         time.Duration `env:"CALLBACK_TIMEOUT" envDefault:"10s"`

	// Worker exits after this many tasks so the supervisor restarts it with a
	// fresh process. 0 disables rotation.
	MaxTasks int `env:"WORKER_MAX_TASKS" envDefault:"0"`

	ResultRetention time.Duration `env:"RESULT_RETENTION" envDefault:"1h"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	queues := cmd.SplitQueueNames(cfg.QueueNames)
	if len(queues) == 0 {
		log.Fatalf("no queues configured for worker")
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	registry, err := core.LoadRegistry(cfg.ModelRegistryPath)
	if err != nil {
		log.Fatalf("Failed to load model registry: %v", err)
	}

	store, err := cmd.CreateObjectStore(cfg.S3EndpointURL, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretAccessKey, cfg.LocalStoreDir)
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	dispatcher, err := callback.NewDispatcher(cfg.CallbackInternalBaseURL, cfg.CallbackTimeout)
	if err != nil {
		log.Fatalf("Failed to create callback dispatcher: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL, queues)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	models := core.NewModelCache(registry, store, cfg.ModelBucket, cfg.LocalModelDir)

	processor := core.NewTaskProcessor(db, reciever, models, dispatcher, cfg.MaxTasks)

	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	go processor.RunJanitor(janitorCtx, cfg.JanitorInterval, cfg.ResultRetention)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutdown signal received, stopping worker...")
		processor.Stop()
	}()

	log.Printf("Worker started, consuming queues %v. Press Ctrl+C to exit.", queues)

	processor.Start()

	cancelJanitor()
	processor.Stop()

	log.Println("Worker process stopped.")
}
