package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hybridmail/internal/config"
	"hybridmail/internal/queue"
)

// consumerGroup is the single Redis Streams consumer group every worker
// process in a deployment joins; XREADGROUP load-balances pending messages
// across however many processes are running under this group name.
const consumerGroup = "hybridmail-workers"

// Worker owns the queue consumer goroutine and its graceful shutdown.
type Worker struct {
	deps     *Dependencies
	consumer *queue.Consumer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log zerolog.Logger
}

// NewWorker builds a Worker and its Dependencies from cfg. The returned
// cleanup func releases every opened dependency; call it after Stop
// returns, or immediately on a non-nil error.
func NewWorker(cfg *config.Config, log zerolog.Logger) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg, log)
	if err != nil {
		return nil, func() {}, err
	}

	consumer := queue.NewConsumer(deps.Redis, queue.ConsumerConfig{
		Group:        consumerGroup,
		Name:         cfg.WorkerID,
		Handler:      deps.Router,
		Logger:       log.With().Str("component", "queue").Logger(),
		BatchSize:    cfg.ConsumerBatchSize,
		BlockFor:     time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		PendingCheck: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		PendingIdle:  time.Duration(cfg.ConsumerPendingIdleSec) * time.Second,
		MaxRetries:   cfg.ConsumerMaxRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		deps:     deps,
		consumer: consumer,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
	return w, cleanup, nil
}

// Deps exposes the wired dependencies, for a caller (e.g. an HTTP search
// surface) that needs Search, Queue, or HealthCheck alongside the consumer.
func (w *Worker) Deps() *Dependencies { return w.deps }

// Start runs the consumer loop until Stop cancels the worker's context or
// the consumer returns on its own. It blocks until the consumer returns.
func (w *Worker) Start() error {
	w.wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer w.wg.Done()
		errCh <- w.consumer.Run(w.ctx)
	}()

	select {
	case <-w.ctx.Done():
		w.wg.Wait()
		return nil
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("bootstrap: consumer exited: %w", err)
		}
		return nil
	}
}

// Stop cancels the worker's context and waits for the consumer goroutine
// to return, up to timeout.
func (w *Worker) Stop(timeout time.Duration) {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		w.log.Warn().Dur("timeout", timeout).Msg("worker shutdown timed out waiting for consumer")
	}
}
