// Package redis publishes gate events and trade signals to Redis:
// XADD to a capped stream for history plus PUBLISH for live dashboards.
// Writes are fire-and-forget; a circuit breaker buffers events locally
// while Redis is unreachable and replays them once it recovers.
package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
)

const (
	streamMaxLen  = 10000
	writeTimeout  = 2 * time.Second
	maxBufferSize = 10000
)

// SinkConfig configures the Redis sink.
type SinkConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // key prefix, default "mss"
}

// Sink implements gatebus.Sink over a Redis client.
type Sink struct {
	client *goredis.Client
	cb     *CircuitBreaker
	prefix string

	mu     sync.Mutex
	buffer []gatebus.Event
}

var _ gatebus.Sink = (*Sink)(nil)

// NewSink connects to Redis and pings it once.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "mss"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Printf("[redis] connected to %s", cfg.Addr)

	s := &Sink{
		client: client,
		cb:     NewCircuitBreaker(5, 10*time.Second),
		prefix: cfg.Prefix,
	}
	s.cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit %s -> %s", from, to)
		if to == StateClosed {
			go s.flush()
		}
	}
	return s, nil
}

// Client returns the underlying client for health checks.
func (s *Sink) Client() *goredis.Client { return s.client }

// Append publishes one bus event. Never returns an error to the caller;
// failures trip the breaker and the event is buffered.
func (s *Sink) Append(ev gatebus.Event) {
	err := s.cb.Execute(func() error {
		return s.write(ev)
	})
	if err == ErrCircuitOpen {
		s.bufferEvent(ev)
	}
}

// PublishSignal publishes an admitted trade signal on its own channel and
// stream, outside the bus event flow.
func (s *Sink) PublishSignal(sig *model.TradeSignal) {
	data := sig.JSON()
	_ = s.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		pipe := s.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: s.prefix + ":signals",
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, s.prefix+":pub:signals", data)
		_, err := pipe.Exec(ctx)
		if err != nil {
			log.Printf("[redis] publish signal failed: %v", err)
		}
		return err
	})
}

func (s *Sink) write(ev gatebus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[redis] marshal event: %v", err)
		return nil // unrecoverable, don't trip the breaker
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.prefix + ":events",
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Publish(ctx, s.prefix+":pub:events:"+ev.Type, data)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] write event failed: %v", err)
		return err
	}
	return nil
}

func (s *Sink) bufferEvent(ev gatebus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) >= maxBufferSize {
		s.buffer = s.buffer[1:]
	}
	s.buffer = append(s.buffer, ev)
}

// flush replays locally buffered events after the circuit closes.
func (s *Sink) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	toFlush := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	for _, ev := range toFlush {
		if err := s.write(ev); err != nil {
			s.bufferEvent(ev)
		}
	}
	log.Printf("[redis] flushed %d buffered events", len(toFlush))
}

// Close releases the client.
func (s *Sink) Close() error { return s.client.Close() }
