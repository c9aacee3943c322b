package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one message body. A returned error asks for a retry.
type Handler func(ctx context.Context, body []byte) error

// Queue is a topic based job transport. Payloads travel as JSON.
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

const (
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
)

// InMemoryQueue delivers jobs to in-process subscribers with retry and
// linear backoff.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
	log      *zap.Logger

	MaxRetries int
	Backoff    time.Duration
}

func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		log:        log,
		MaxRetries: defaultMaxRetries,
		Backoff:    defaultBackoff,
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish hands the payload to every subscriber of the topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job{topic: topic, body: body})
	}
	return nil
}

func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()
	log := q.log.With(zap.String("topic", j.topic))

	for {
		err := handler(context.Background(), j.body)
		if err == nil {
			log.Debug("job processed", zap.Int("attempt", j.retryCount+1))
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			log.Error("job permanently failed", zap.Int("attempts", j.retryCount), zap.Error(err))
			return
		}
		log.Warn("job failed, retrying", zap.Int("attempt", j.retryCount), zap.Int("max_retries", q.MaxRetries), zap.Error(err))
		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished, retries included.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

func (q *InMemoryQueue) Close() error {
	q.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
