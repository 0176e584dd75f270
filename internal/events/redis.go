package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Pranay-ai/match-relay/internal/config"
)

// Connect parses cfg.URL, opens a client and verifies it with PING.
//
// Precondition: cfg.URL must be non-empty.
// Postcondition: Returns a live client or a non-nil error.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opt.Addr, err)
	}
	return rdb, nil
}

// RedisPublisher publishes events on "<prefix><match_id>" channels and
// counts them per type in a hash. Events are queued by Publish and written by
// the worker running in Start.
type RedisPublisher struct {
	rdb    *redis.Client
	cfg    config.RedisConfig
	logger *zap.Logger

	queue    chan Event
	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewRedisPublisher creates a publisher over rdb.
//
// Precondition: rdb and logger must be non-nil; cfg.QueueSize must be >= 1.
func NewRedisPublisher(rdb *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Publish queues ev. When the queue is full the event is dropped.
func (p *RedisPublisher) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("event queue full, dropping event",
			zap.String("type", ev.Type),
			zap.String("match_id", ev.MatchID),
		)
	}
}

// Start writes queued events until Stop is called, then flushes what is
// left in the queue.
func (p *RedisPublisher) Start() error {
	p.started.Store(true)
	defer close(p.done)
	for {
		select {
		case ev := <-p.queue:
			p.write(ev)
		case <-p.stop:
			for {
				select {
				case ev := <-p.queue:
					p.write(ev)
				default:
					return nil
				}
			}
		}
	}
}

// Stop ends the worker and waits for the flush to finish.
func (p *RedisPublisher) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started.Load() {
		<-p.done
	}
}

func (p *RedisPublisher) write(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("error marshalling event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()

	pipe := p.rdb.TxPipeline()
	pipe.Publish(ctx, p.cfg.ChannelPrefix+ev.MatchID, payload)
	pipe.HIncrBy(ctx, p.cfg.StatsKey, ev.Type, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn("error publishing event",
			zap.String("type", ev.Type),
			zap.String("match_id", ev.MatchID),
			zap.Error(err),
		)
	}
}

// Counts reads the per-type counters.
func (p *RedisPublisher) Counts(ctx context.Context) (map[string]int64, error) {
	raw, err := p.rdb.HGetAll(ctx, p.cfg.StatsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading event counters: %w", err)
	}
	counts := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing counter %q: %w", k, err)
		}
		counts[k] = n
	}
	return counts, nil
}
