package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/terrafusion/import-service/shared/rabbitmq"
)

// jobMessage is the wire format on the import queue.
type jobMessage struct {
	JobID string `json:"job_id"`
}

// delivery pairs a parsed job id with its AMQP delivery tag so the worker
// loop can ack or nack after processing.
type delivery struct {
	jobID       string
	deliveryTag uint64
}

// Dispatcher publishes newly created jobs onto the import queue.
type Dispatcher struct {
	rabbitClient *rabbitmq.Client
	logger       *slog.Logger
}

func NewDispatcher(rabbitClient *rabbitmq.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{rabbitClient: rabbitClient, logger: logger}
}

// Dispatch enqueues a job for processing.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}
	if err := d.rabbitClient.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to dispatch job %s: %w", jobID, err)
	}
	d.logger.Debug("Job dispatched to import queue",
		slog.String("job_id", jobID),
	)
	return nil
}

// WorkerConfig holds import worker configuration.
type WorkerConfig struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Runner        *Runner
	Concurrency   int
	PrefetchCount int
	WorkerID      string
}

// Worker consumes job messages and runs the import pipeline on a pool of
// goroutines.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	runner        *Runner
	concurrency   int
	prefetchCount int
	workerID      string
	jobsChan      chan delivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

func NewWorker(cfg *WorkerConfig) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "import-worker-" + uuid.New().String()[:8]
	}
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		runner:        cfg.Runner,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		workerID:      workerID,
		jobsChan:      make(chan delivery, concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start sets up the consumer, spawns the worker pool, and blocks dispatching
// deliveries until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.dispatchLoop(ctx, deliveries)
	return nil
}

// Stop drains the worker pool. In-flight jobs run to their next cancellation
// checkpoint via the context passed to Start.
func (w *Worker) Stop() {
	w.logger.Info("Stopping import worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Import worker stopped")
}

func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// Prefetch caps unacked deliveries per consumer so one slow import
	// does not starve other consumers of the queue.
	if err := channel.Qos(w.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Import queue consumer started",
		slog.String("worker_id", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning import worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// dispatchLoop parses incoming deliveries and feeds the worker pool.
func (w *Worker) dispatchLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg jobMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				w.logger.Error("Failed to parse job message",
					slog.Any("error", err),
					slog.String("body", string(d.Body)),
				)
				w.nack(d.DeliveryTag, false)
				continue
			}
			if _, err := uuid.Parse(msg.JobID); err != nil {
				w.logger.Error("Job message carries malformed job_id",
					slog.String("job_id", msg.JobID),
					slog.Any("error", err),
				)
				w.nack(d.DeliveryTag, false)
				continue
			}

			select {
			case w.jobsChan <- delivery{jobID: msg.JobID, deliveryTag: d.DeliveryTag}:
			case <-ctx.Done():
				// Requeue so another consumer can pick it up.
				w.nack(d.DeliveryTag, true)
				return
			}
		}
	}
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case d, ok := <-w.jobsChan:
			if !ok {
				return
			}

			w.logger.Info("Worker picked up import job",
				slog.String("worker_name", workerName),
				slog.String("job_id", d.jobID),
			)

			err := w.runner.Run(ctx, d.jobID)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("job_id", d.jobID),
				)
				continue
			}

			if err != nil {
				w.logger.Error("Import job processing failed",
					slog.String("worker_name", workerName),
					slog.String("job_id", d.jobID),
					slog.Any("error", err),
				)
				// Never requeue: the job registry is process-local, so a job
				// unknown or already terminal here is unknown everywhere.
				if nackErr := channel.Nack(d.deliveryTag, false, false); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("job_id", d.jobID),
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			if ackErr := channel.Ack(d.deliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("job_id", d.jobID),
					slog.Any("error", ackErr),
				)
			}
		}
	}
}

func (w *Worker) nack(tag uint64, requeue bool) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return
	}
	if err := channel.Nack(tag, false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", tag),
			slog.Any("error", err),
		)
	}
}
