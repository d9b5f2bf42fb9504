package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/connection"
)

// ConnectionTester runs a diagnostic connection test
type ConnectionTester interface {
	TestStoreConnection(ctx context.Context, storeID string) connection.TestResult
}

// VerificationWorker tests newly configured store databases in the background
type VerificationWorker struct {
	tester  ConnectionTester
	queue   chan string
	timeout time.Duration

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewVerificationWorker creates the worker and starts its goroutine
func NewVerificationWorker(tester ConnectionTester, queueSize int, timeout time.Duration) *VerificationWorker {
	if queueSize <= 0 {
		queueSize = 1
	}
	w := &VerificationWorker{
		tester:  tester,
		queue:   make(chan string, queueSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *VerificationWorker) run() {
	defer close(w.done)
	for storeID := range w.queue {
		log.Info().Str("store_id", storeID).Msg("Starting connectivity verification")
		w.verify(storeID)
	}
}

func (w *VerificationWorker) verify(storeID string) {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	result := w.tester.TestStoreConnection(ctx, storeID)
	if !result.Success {
		log.Error().Str("store_id", storeID).Str("reason", result.Message).Msg("Connectivity verification failed")
		return
	}
	log.Info().Str("store_id", storeID).Dur("latency", result.Latency).Msg("Connectivity verified")
}

// QueueForVerification adds a store to the queue. It returns false when the
// queue is full or the worker has stopped.
func (w *VerificationWorker) QueueForVerification(storeID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- storeID:
		return true
	default:
		return false
	}
}

// Stop drains the queue and waits for the worker to exit
func (w *VerificationWorker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}
