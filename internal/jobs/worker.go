package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/support-integrations/pkg/logging"
)

const (
	defaultWorkerCount      = 2
	defaultReceiveWait      = 10
	defaultReceiveBatchSize = 5
	maxWaitSeconds          = 20
	maxReceiveBatchSize     = 10
	deleteTimeoutSeconds    = 5
)

type handler interface {
	HandleBody(ctx context.Context, body string) (Outcome, error)
}

// Worker consumes integration jobs from the queue and hands them to the
// dispatcher.
type Worker struct {
	queue   Queue
	handler handler
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker panics when queue or dispatcher is nil.
func NewWorker(queue Queue, dispatcher *Dispatcher, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("jobs: queue cannot be nil")
	}
	if dispatcher == nil {
		panic("jobs: dispatcher cannot be nil")
	}
	return newWorker(queue, dispatcher, logger, opts...)
}

func newWorker(queue Queue, h handler, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		queue:   queue,
		handler: h,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the consumer goroutines. They stop when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("integration worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("integration worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive integration jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	if _, err := w.handler.HandleBody(ctx, msg.Body); err != nil {
		w.logger.Error("integration job left for redelivery", "error", err, "msg_id", msg.ID)
		return
	}
	w.deleteMessage(context.WithoutCancel(ctx), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete integration job", "error", err)
	}
}
