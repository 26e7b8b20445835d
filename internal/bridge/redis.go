package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-livechat/internal/config"
	"github.com/npezzotti/go-livechat/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	publishBufferSize = 256
	publishTimeout    = 5 * time.Second
)

var (
	ErrNotStarted        = errors.New("redis bridge not started")
	ErrPublishBufferFull = errors.New("redis bridge publish buffer full")
)

// RelayTarget receives relays published by other instances.
type RelayTarget interface {
	DeliverRelay(r server.Relay)
}

// envelope tags a relay with the publishing instance so a node can skip
// its own messages.
type envelope struct {
	InstanceId string       `json:"instanceId"`
	Relay      server.Relay `json:"relay"`
}

// RedisBridge relays chat broadcasts between instances over Redis pub/sub.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceId string
	target     RelayTarget
	log        zerolog.Logger

	// outbox decouples the chat event loop from Redis round trips.
	outbox    chan []byte
	flushed   chan struct{}
	publishFn func(ctx context.Context, data []byte) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

func NewRedisBridge(cfg config.RedisConfig, target RelayTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	b := &RedisBridge{
		client:     client,
		channel:    cfg.Prefix + "relay",
		instanceId: uuid.NewString(),
		target:     target,
		log:        logger.With().Str("component", "redis-bridge").Logger(),
		outbox:     make(chan []byte, publishBufferSize),
		flushed:    make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	b.publishFn = func(ctx context.Context, data []byte) error {
		return b.client.Publish(ctx, b.channel, data).Err()
	}

	return b
}

// Start subscribes to the relay channel and forwards remote relays to the
// target.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	sub := b.client.Subscribe(b.ctx, b.channel)
	if _, err := sub.Receive(b.ctx); err != nil {
		sub.Close()
		return err
	}

	b.startPublisher()

	b.wg.Add(1)
	go b.listen(sub)

	b.log.Info().
		Str("instance_id", b.instanceId).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

func (b *RedisBridge) startPublisher() {
	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	go b.publishLoop()
}

// Publish queues r for delivery to the other instances without waiting on
// Redis. It fails with ErrPublishBufferFull instead of blocking the caller.
func (b *RedisBridge) Publish(r server.Relay) error {
	data, err := b.encode(r)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.active {
		return ErrNotStarted
	}

	select {
	case b.outbox <- data:
		return nil
	default:
		return ErrPublishBufferFull
	}
}

// Stop flushes queued relays, waiting at most publishTimeout, then closes
// the subscription and the client.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	wasActive := b.active
	b.active = false
	b.mu.Unlock()

	if wasActive {
		close(b.outbox)
		select {
		case <-b.flushed:
		case <-time.After(publishTimeout):
			b.log.Warn().Int("pending", len(b.outbox)).Msg("relay flush timed out")
		}
	}

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisBridge) encode(r server.Relay) ([]byte, error) {
	return json.Marshal(envelope{InstanceId: b.instanceId, Relay: r})
}

func (b *RedisBridge) publishLoop() {
	defer close(b.flushed)

	for data := range b.outbox {
		ctx, cancel := context.WithTimeout(b.ctx, publishTimeout)
		if err := b.publishFn(ctx, data); err != nil {
			b.log.Error().Err(err).Msg("failed to publish relay")
		}
		cancel()
	}
}

func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(msg.Payload)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *RedisBridge) handleMessage(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Error().Err(err).Msg("failed to decode relay")
		return
	}

	if env.InstanceId == b.instanceId {
		return
	}

	b.log.Debug().
		Str("from_instance", env.InstanceId).
		Str("kind", env.Relay.Kind).
		Int("session_id", env.Relay.SessionId).
		Msg("relaying remote broadcast")

	b.target.DeliverRelay(env.Relay)
}
