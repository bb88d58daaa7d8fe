package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cgdops/rtaingest/internal/queue"
)

const (
	receiveBatchSize   = 10
	receiveWaitSeconds = 20
	receiveBackoff     = 5 * time.Second
)

// Run polls the process queue until ctx is cancelled, fanning received
// messages across cfg.NumWorkers handlers. Handler errors are unclassified
// failures: the message stays on the queue and the error is kept for the
// final report.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("worker started",
		slog.Int("workers", o.cfg.NumWorkers),
		slog.String("queue", o.cfg.QueueProcessURL))

	sem := make(chan struct{}, o.cfg.NumWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var handlerErrs []error

	for ctx.Err() == nil {
		msgs, err := o.queue.Receive(ctx, o.cfg.QueueProcessURL, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			o.log.Error("receive failed, backing off", slog.Any("error", err))
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(m queue.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := o.HandleMessage(ctx, m); err != nil {
					o.log.Error("message left for redelivery", slog.Any("error", err))
					mu.Lock()
					handlerErrs = append(handlerErrs, err)
					mu.Unlock()
				}
			}(msg)
		}
	}

	wg.Wait()
	o.log.Info("worker stopped", slog.Int("handler_errors", len(handlerErrs)))
	return errors.Join(handlerErrs...)
}

// ProcessOne runs a single raw envelope, as read from a file or stdin. There
// is no receipt handle, so terminal paths fall back to receive-then-delete
// when draining the source queue.
func (o *Orchestrator) ProcessOne(ctx context.Context, body []byte) error {
	return o.HandleMessage(ctx, queue.Message{Body: string(body)})
}
