// Package cache provides the key/value store and pub/sub used for battle
// state snapshots, player battle locks, the pending capture queue and event
// fan-out. Redis is used when configured; otherwise everything stays
// in-process.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/monsterbattle/cache/local"
	cacheredis "github.com/kasuganosora/monsterbattle/cache/redis"
	"github.com/kasuganosora/monsterbattle/config"
)

// Store defines the KV / Hash / List operations.
type Store interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Hash
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// List
	RPush(ctx context.Context, key string, values ...string) error
	LPop(ctx context.Context, key string) (string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	Close() error
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations. Subscriptions end
// when the returned cancel func is called or ctx is done.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// IsNotFound reports whether err means a missing key, field or element.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// Open returns a Store and PubSub backed by Redis if RedisAddr is set,
// otherwise by in-process implementations. Both share one connection.
func Open(cfg config.CacheConfig) (Store, PubSub, error) {
	if cfg.RedisAddr != "" {
		client, err := cacheredis.Dial(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		ps := cacheredis.NewPubSub(client)
		return cacheredis.NewCache(client), pubsubFunc(func(ctx context.Context, chs ...string) (<-chan *Message, func(), error) {
			in, cancel, err := ps.Subscribe(ctx, chs...)
			if err != nil {
				return nil, nil, err
			}
			return bridge(in, func(m *cacheredis.RedisMessage) *Message {
				return &Message{Channel: m.Channel, Payload: m.Payload}
			}), cancel, nil
		}, ps.Publish), nil
	}

	store, err := local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
	if err != nil {
		return nil, nil, err
	}
	ps := local.NewPubSub(cfg.LocalPubSubBuf)
	return store, pubsubFunc(func(ctx context.Context, chs ...string) (<-chan *Message, func(), error) {
		in, cancel, err := ps.Subscribe(ctx, chs...)
		if err != nil {
			return nil, nil, err
		}
		return bridge(in, func(m *local.LocalMessage) *Message {
			return &Message{Channel: m.Channel, Payload: m.Payload}
		}), cancel, nil
	}, ps.Publish), nil
}

type subscribeFn func(ctx context.Context, channels ...string) (<-chan *Message, func(), error)

type publishFn func(ctx context.Context, channel, message string) error

type funcPubSub struct {
	sub subscribeFn
	pub publishFn
}

func pubsubFunc(sub subscribeFn, pub publishFn) PubSub { return funcPubSub{sub: sub, pub: pub} }

func (p funcPubSub) Publish(ctx context.Context, channel, message string) error {
	return p.pub(ctx, channel, message)
}

func (p funcPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	return p.sub(ctx, channels...)
}

// bridge converts a backend message channel; the output closes with the input.
func bridge[T any](in <-chan T, conv func(T) *Message) <-chan *Message {
	out := make(chan *Message, cap(in))
	go func() {
		defer close(out)
		for m := range in {
			out <- conv(m)
		}
	}()
	return out
}
