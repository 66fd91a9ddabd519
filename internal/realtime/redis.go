package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/metrics"
)

const channelPrefix = "smartmark:bookmarks:"

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis opens a client and pings it, retrying until ctx is done.
func ConnectRedis(ctx context.Context, cfg RedisConfig, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		err := client.Ping(ctx).Err()
		if err == nil {
			log.Info("connected to redis", logger.String("addr", cfg.Addr))
			return client, nil
		}
		log.Warn("redis ping failed", logger.String("addr", cfg.Addr), logger.Error(err))

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
		case <-ticker.C:
		}
	}
}

// RedisBroker fans events out over Redis pub/sub so that every instance of
// the service sees changes made through any other. Events for one user travel
// on that user's channel only.
type RedisBroker struct {
	client *redis.Client
	log    logger.Logger
}

// NewRedisBroker wraps an already connected client.
func NewRedisBroker(client *redis.Client, log logger.Logger) *RedisBroker {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisBroker{client: client, log: log}
}

func channelFor(userID string) string { return channelPrefix + userID }

func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	if e.UserID == "" {
		return ErrFilterRequired
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(e.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	metrics.RealtimeEventsPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
	return nil
}

// Subscribe returns once Redis has acknowledged the subscription. If the
// connection later fails the handler is told via HandleStatus(false) and
// the subscription stops delivering.
func (b *RedisBroker) Subscribe(ctx context.Context, tag string, filter Filter, h Handler) (*Subscription, error) {
	if filter.UserID == "" {
		return nil, ErrFilterRequired
	}

	ps := b.client.Subscribe(ctx, channelFor(filter.UserID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", tag, err)
	}

	metrics.RealtimeSubscriptions.Inc()
	b.log.Debug("realtime: subscribed", logger.String("tag", tag), logger.String("user_id", filter.UserID))

	stopped := make(chan struct{})
	sub := newSubscription(tag, filter, func() error {
		close(stopped)
		metrics.RealtimeSubscriptions.Dec()
		b.log.Debug("realtime: unsubscribed", logger.String("tag", tag))
		return ps.Close()
	})

	go b.receive(ps, sub, h, stopped)
	return sub, nil
}

func (b *RedisBroker) receive(ps *redis.PubSub, sub *Subscription, h Handler, stopped <-chan struct{}) {
	ctx := context.Background()
	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			select {
			case <-stopped:
				return
			default:
			}
			b.log.Warn("realtime: channel error",
				logger.String("tag", sub.Tag), logger.Error(err))
			if sh, ok := h.(StatusHandler); ok {
				sh.HandleStatus(false)
			}
			return
		}

		switch m := msg.(type) {
		case *redis.Message:
			var e Event
			if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
				b.log.Warn("realtime: dropping malformed event",
					logger.String("tag", sub.Tag), logger.Error(err))
				continue
			}
			if sub.Filter.Match(e) {
				h.HandleEvent(e)
			}
		case *redis.Subscription:
			if sh, ok := h.(StatusHandler); ok {
				sh.HandleStatus(m.Count > 0)
			}
		}
	}
}

func (b *RedisBroker) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	err := sub.close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
