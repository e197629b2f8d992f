package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/blogger/internal/broker"
	"example.com/blogger/internal/logger"
	"example.com/blogger/internal/metrics"
	"example.com/blogger/internal/store"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// Worker consumes blog events from Kafka and keeps the per-owner post
// counters up to date.
type Worker struct {
	store        store.StatsStore
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(st store.StatsStore, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        st,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan kafka.Message, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			for enqueued := false; !enqueued; {
				select {
				case jobs <- msg:
					enqueued = true
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
				}
			}
		}
	}
}

// processLoop drains the job queue until it is closed. Messages already
// queued are still applied after cancellation.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan kafka.Message) {
	for msg := range jobs {
		if err := w.Handle(context.WithoutCancel(ctx), msg); err != nil {
			logg.Error("worker", "Failed to process event", err)
		}
	}
}

// Handle applies one event. Unknown event types are skipped.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	ev, err := appkafka.DecodeEvent(msg)
	if err != nil {
		metrics.EventsProcessed.WithLabelValues("unknown", "invalid").Inc()
		return fmt.Errorf("decode event: %w", err)
	}

	switch ev.Type {
	case appkafka.PostCreated:
		if ev.UserID == "" {
			metrics.EventsProcessed.WithLabelValues(string(ev.Type), "invalid").Inc()
			return errors.New("post_created event without owner")
		}
		if err := w.store.IncrementPostCount(ctx, ev.UserID, 1); err != nil {
			metrics.EventsProcessed.WithLabelValues(string(ev.Type), "error").Inc()
			return fmt.Errorf("increment post count: %w", err)
		}
		logg.Debug("worker", "Counted post for user_id="+ev.UserID)
	case appkafka.UserRegistered:
		logg.Info("worker", "New account user_id="+ev.UserID)
	default:
		metrics.EventsProcessed.WithLabelValues(string(ev.Type), "skipped").Inc()
		return nil
	}

	metrics.EventsProcessed.WithLabelValues(string(ev.Type), "ok").Inc()
	return nil
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}
	return nil
}
