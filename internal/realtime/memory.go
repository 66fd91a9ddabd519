package realtime

import (
	"context"
	"sync"

	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/metrics"
)

const defaultQueueSize = 64

// MemoryBroker is an in-process Broker for single-instance deployments and
// tests. Each subscription owns a buffered queue drained by one goroutine.
type MemoryBroker struct {
	log       logger.Logger
	queueSize int

	mu     sync.RWMutex
	subs   map[string]*memorySub
	closed bool
}

type memorySub struct {
	tag     string
	filter  Filter
	handler Handler
	queue   chan Event
	quit    chan struct{}
}

// NewMemoryBroker returns an empty broker. A nil log discards output.
func NewMemoryBroker(log logger.Logger) *MemoryBroker {
	if log == nil {
		log = logger.Nop()
	}
	return &MemoryBroker{
		log:       log,
		queueSize: defaultQueueSize,
		subs:      make(map[string]*memorySub),
	}
}

func (b *MemoryBroker) Subscribe(_ context.Context, tag string, filter Filter, h Handler) (*Subscription, error) {
	if filter.UserID == "" {
		return nil, ErrFilterRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.subs[tag]; ok {
		return nil, ErrTagInUse
	}

	ms := &memorySub{
		tag:     tag,
		filter:  filter,
		handler: h,
		queue:   make(chan Event, b.queueSize),
		quit:    make(chan struct{}),
	}
	b.subs[tag] = ms
	go ms.run()

	metrics.RealtimeSubscriptions.Inc()
	b.log.Debug("realtime: subscribed", logger.String("tag", tag), logger.String("user_id", filter.UserID))

	return newSubscription(tag, filter, func() error {
		b.remove(tag, ms)
		return nil
	}), nil
}

func (b *MemoryBroker) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.close()
}

func (b *MemoryBroker) remove(tag string, ms *memorySub) {
	b.mu.Lock()
	if cur, ok := b.subs[tag]; ok && cur == ms {
		delete(b.subs, tag)
		close(ms.quit)
		metrics.RealtimeSubscriptions.Dec()
	}
	b.mu.Unlock()
	b.log.Debug("realtime: unsubscribed", logger.String("tag", tag))
}

// Publish queues e for every matching subscription without waiting. A
// subscriber whose queue is full misses the event.
func (b *MemoryBroker) Publish(ctx context.Context, e Event) error {
	if e.UserID == "" {
		return ErrFilterRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*memorySub, 0, len(b.subs))
	for _, ms := range b.subs {
		if ms.filter.Match(e) {
			targets = append(targets, ms)
		}
	}
	b.mu.RUnlock()

	for _, ms := range targets {
		select {
		case ms.queue <- e:
		case <-ms.quit:
		default:
			metrics.RealtimeEventsDroppedTotal.Inc()
			b.log.Warn("realtime: subscriber queue full, event dropped",
				logger.String("tag", ms.tag), logger.String("kind", string(e.Kind)), logger.String("id", e.ID))
		}
	}
	metrics.RealtimeEventsPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
	return nil
}

// Close detaches every subscription. Subsequent calls fail with ErrClosed.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for tag, ms := range b.subs {
		close(ms.quit)
		delete(b.subs, tag)
		metrics.RealtimeSubscriptions.Dec()
	}
	return nil
}

func (ms *memorySub) run() {
	for {
		select {
		case <-ms.quit:
			return
		case e := <-ms.queue:
			select {
			case <-ms.quit:
				return
			default:
			}
			ms.handler.HandleEvent(e)
		}
	}
}
