package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL bounds a lease held by a keeper that crashed mid-run. Live holders
// renew it every TTL/3 until release.
const DefaultTTL = time.Minute

const keyPrefix = "wormhole-keeper:lock:"

// Deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Extends the key only while it still holds our token.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// redisCmdable is the part of *redis.Client the locker needs.
type redisCmdable interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Config configures the Redis locker.
type Config struct {
	URL      string        `mapstructure:"redis_url" yaml:"redis_url"`
	Password string        `mapstructure:"password"  yaml:"-"`
	TTL      time.Duration `mapstructure:"ttl"       yaml:"ttl"`
}

// Redis is a SET NX PX lock with token-checked release.
type Redis struct {
	rdb   redisCmdable
	close func() error
	ttl   time.Duration
	renew time.Duration
	log   zerolog.Logger
}

// NewRedis parses cfg.URL, connects and pings.
func NewRedis(ctx context.Context, cfg Config, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	l := newRedis(rdb, cfg.TTL, log)
	l.close = rdb.Close
	l.log.Info().Str("addr", opts.Addr).Dur("ttl", l.ttl).Msg("Redis domain lock enabled")
	return l, nil
}

func newRedis(rdb redisCmdable, ttl time.Duration, log zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		rdb:   rdb,
		ttl:   ttl,
		renew: ttl / 3,
		log:   log.With().Str("component", "redis-lock").Logger(),
	}
}

// Acquire takes key for the configured TTL or fails with ErrNotAcquired. The lease
// is renewed in the background until the returned Release runs.
func (l *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	fullKey := keyPrefix + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
	l.log.Debug().Str("key", fullKey).Msg("Lock acquired")

	renewCtx, stopRenew := context.WithCancel(context.Background())
	renewDone := make(chan struct{})
	go l.keepAlive(renewCtx, fullKey, token, renewDone)

	var once sync.Once
	var releaseErr error
	return func(ctx context.Context) error {
		once.Do(func() {
			stopRenew()
			<-renewDone

			n, err := l.rdb.Eval(ctx, releaseScript, []string{fullKey}, token).Int64()
			if err != nil {
				releaseErr = fmt.Errorf("release %s: %w", key, err)
				return
			}
			if n == 0 {
				l.log.Warn().Str("key", fullKey).Msg("Lock expired before release")
			}
		})
		return releaseErr
	}, nil
}

// keepAlive extends the lease every renew interval until ctx is cancelled or the
// key no longer carries token. Failed renewals are retried on the next tick.
func (l *Redis) keepAlive(ctx context.Context, key, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := l.rdb.Eval(ctx, renewScript, []string{key}, token, l.ttl.Milliseconds()).Int64()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			l.log.Warn().Err(err).Str("key", key).Msg("Lock renewal failed")
		case n == 0:
			l.log.Error().Str("key", key).Msg("Lock lost before release")
			return
		}
	}
}

// Close closes the Redis connection.
func (l *Redis) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}
