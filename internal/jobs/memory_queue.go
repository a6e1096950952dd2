package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Send after Close.
var ErrQueueClosed = errors.New("jobs: memory queue closed")

// MemoryQueue is a Queue backed by an in-memory buffered channel.
type MemoryQueue struct {
	ch   chan queueMessage
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	timers  map[*time.Timer]struct{}
	delayed sync.WaitGroup
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch:     make(chan queueMessage, buffer),
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Send enqueues a payload or blocks until ctx is done. A positive delay hands
// the message to a timer and returns immediately; a delayed message still
// waiting for buffer space when the queue is closed is dropped.
func (q *MemoryQueue) Send(ctx context.Context, body string, delay time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := queueMessage{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}

	if delay > 0 {
		return q.sendLater(msg, delay)
	}

	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) sendLater(msg queueMessage, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.delayed.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer q.delayed.Done()
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		select {
		case q.ch <- msg:
		case <-q.done:
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Close stops pending delayed sends and waits for any that are blocked on a
// full buffer to give up. Buffered messages stay receivable.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	for timer := range q.timers {
		if timer.Stop() {
			q.delayed.Done()
		}
	}
	q.timers = nil
	q.mu.Unlock()

	q.delayed.Wait()
	return nil
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	if waitSeconds <= 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-q.ch:
			return q.collect(msg, maxMessages), nil
		}
	}

	timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

// Len reports how many messages are buffered.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) collect(first queueMessage, max int) []queueMessage {
	messages := make([]queueMessage, 0, max)
	messages = append(messages, first)

	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}
