// Package queue provides an in-process, topic-addressed message queue.
//
// Every handler registered on a topic receives every message published after it
// subscribed. Messages of one topic are delivered one at a time in publish order;
// separate topics progress independently. Nothing survives a process restart.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when publishing to or subscribing on a closed queue
var ErrClosed = errors.New("queue closed")

// Message is one published item
type Message struct {
	ID          string
	Topic       string
	Payload     any
	PublishedAt time.Time
}

// Handler processes one message. Returned errors are logged and do not stop delivery.
type Handler func(ctx context.Context, msg Message) error

// Queue routes messages to topic subscribers
type Queue struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
	nextID uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

type topic struct {
	name    string
	pending []delivery
	subs    map[uint64]Handler
	order   []uint64
	wake    chan struct{}
}

type delivery struct {
	msg  Message
	subs []uint64
}

// Subscription is a detachable handler registration
type Subscription struct {
	q     *Queue
	topic string
	id    uint64
	once  sync.Once
}

// New creates a queue whose dispatchers run until Close
func New(logger zerolog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		topics: make(map[string]*topic),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("module", "queue").Logger(),
	}
}

// topicLocked returns the named topic, starting its dispatcher on first use
func (q *Queue) topicLocked(name string) *topic {
	t, ok := q.topics[name]
	if ok {
		return t
	}
	t = &topic{
		name: name,
		subs: make(map[uint64]Handler),
		wake: make(chan struct{}, 1),
	}
	q.topics[name] = t
	q.wg.Add(1)
	go q.dispatch(t)
	return t
}

// Publish appends a message to the topic and wakes its dispatcher
func (q *Queue) Publish(topicName string, payload any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrClosed
	}

	t := q.topicLocked(topicName)
	msg := Message{
		ID:          uuid.NewString(),
		Topic:       topicName,
		Payload:     payload,
		PublishedAt: time.Now(),
	}

	subs := make([]uint64, len(t.order))
	copy(subs, t.order)
	t.pending = append(t.pending, delivery{msg: msg, subs: subs})

	select {
	case t.wake <- struct{}{}:
	default:
	}

	return msg.ID, nil
}

// Subscribe registers a handler for messages published from now on
func (q *Queue) Subscribe(topicName string, h Handler) (*Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	t := q.topicLocked(topicName)
	q.nextID++
	id := q.nextID
	t.subs[id] = h
	t.order = append(t.order, id)

	q.logger.Debug().Str("topic", topicName).Uint64("subscription", id).Msg("Handler subscribed")

	return &Subscription{q: q, topic: topicName, id: id}, nil
}

// Unsubscribe detaches the handler; messages already queued for it are skipped
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.q.mu.Lock()
		defer s.q.mu.Unlock()

		t, ok := s.q.topics[s.topic]
		if !ok {
			return
		}
		delete(t.subs, s.id)
		for i, id := range t.order {
			if id == s.id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	})
}

// Depth returns the number of undelivered messages per topic
func (q *Queue) Depth() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := make(map[string]int, len(q.topics))
	for name, t := range q.topics {
		depth[name] = len(t.pending)
	}
	return depth
}

// Close stops all dispatchers, clears subscriptions and drops undelivered messages
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := 0
	for _, t := range q.topics {
		dropped += len(t.pending)
		t.pending = nil
		t.subs = make(map[uint64]Handler)
		t.order = nil
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	q.logger.Info().Int("dropped", dropped).Msg("Queue closed")
}

func (q *Queue) dispatch(t *topic) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-t.wake:
		}

		for {
			d, ok := q.next(t)
			if !ok {
				break
			}
			for _, id := range d.subs {
				h := q.handler(t, id)
				if h == nil {
					continue
				}
				q.deliver(t.name, id, h, d.msg)
			}
		}
	}
}

func (q *Queue) next(t *topic) (delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(t.pending) == 0 {
		return delivery{}, false
	}
	d := t.pending[0]
	t.pending[0] = delivery{}
	t.pending = t.pending[1:]
	return d, true
}

func (q *Queue) handler(t *topic, id uint64) Handler {
	q.mu.Lock()
	defer q.mu.Unlock()
	return t.subs[id]
}

func (q *Queue) deliver(topicName string, id uint64, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str("topic", topicName).
				Str("messageId", msg.ID).
				Uint64("subscription", id).
				Str("panic", fmt.Sprint(r)).
				Msg("Handler panicked")
		}
	}()

	if err := h(q.ctx, msg); err != nil {
		q.logger.Warn().
			Err(err).
			Str("topic", topicName).
			Str("messageId", msg.ID).
			Uint64("subscription", id).
			Msg("Handler failed")
	}
}
