package queue

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"gexpipe/config"
	"gexpipe/logger"
)

type AsynqQueue struct {
	client *asynq.Client
	server *asynq.Server
	config *config.AsynqConfig
	mux    *asynq.ServeMux
}

// InitAsynqQueue initializes the Asynq client and server
func InitAsynqQueue(cfg *config.AsynqConfig) *AsynqQueue {
	log := logger.GetLogger()

	redisOpt := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	if err := client.Ping(); err != nil {
		log.Error("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	queues := make(map[string]int, len(cfg.Queues))
	for name, q := range cfg.Queues {
		if q.Enabled {
			queues[name] = q.Priority
		}
	}
	if len(queues) == 0 {
		queues = map[string]int{QueueIngest: 6, QueueSummary: 3}
	}

	concurrency := cfg.Concurrency
	if concurrency == 0 {
		concurrency = 10
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:    concurrency,
			Queues:         queues,
			StrictPriority: true,
			RetryDelayFunc: defaultRetryFunc,
		},
	)

	log.Info("Successfully connected to Asynq", map[string]interface{}{
		"host":        cfg.Host,
		"port":        cfg.Port,
		"concurrency": concurrency,
		"queues":      queues,
	})

	return &AsynqQueue{
		client: client,
		server: server,
		config: cfg,
		mux:    asynq.NewServeMux(),
	}
}

func defaultRetryFunc(n int, err error, task *asynq.Task) time.Duration {
	return time.Duration(n) * time.Second * 5
}

func (a *AsynqQueue) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.server != nil {
		a.server.Stop()
	}
}

func (a *AsynqQueue) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	_, err := a.client.EnqueueContext(ctx, task, opts...)
	return err
}

func (a *AsynqQueue) HandleFunc(taskType string, handler func(context.Context, *asynq.Task) error) {
	a.mux.HandleFunc(taskType, handler)
}

func (a *AsynqQueue) Start() error {
	return a.server.Run(a.mux)
}
