package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeRedis emulates SET NX PX with real expiry and the token-checked scripts.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	expiry  map[string]time.Time
	setErr  error
	evals   int
	renewed int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: map[string]string{},
		ttls:   map[string]time.Duration{},
		expiry: map[string]time.Time{},
	}
}

// live drops key once its expiry has passed. Callers hold f.mu.
func (f *fakeRedis) live(key string) (string, bool) {
	if exp, ok := f.expiry[key]; ok && !time.Now().Before(exp) {
		delete(f.values, key)
		delete(f.expiry, key)
	}
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, held := f.live(key); held {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	f.expiry[key] = time.Now().Add(ttl)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, held := f.live(keys[0])
	owned := held && current == args[0].(string)

	switch script {
	case releaseScript:
		f.evals++
		if !owned {
			return redis.NewCmdResult(int64(0), nil)
		}
		delete(f.values, keys[0])
		delete(f.expiry, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	case renewScript:
		if !owned {
			return redis.NewCmdResult(int64(0), nil)
		}
		f.renewed++
		f.expiry[keys[0]] = time.Now().Add(time.Duration(args[1].(int64)) * time.Millisecond)
		return redis.NewCmdResult(int64(1), nil)
	default:
		return redis.NewCmdResult(nil, errors.New("unexpected script"))
	}
}

func (f *fakeRedis) renewals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewed
}

func TestNoop(t *testing.T) {
	release, err := NewNoop().Acquire(context.Background(), "d")
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestRedis_AcquireRelease(t *testing.T) {
	rdb := newFakeRedis()
	l := newRedis(rdb, time.Minute, zerolog.Nop())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "GOERLI-SLAVE-STARKNET-1")
	require.NoError(t, err)
	require.Equal(t, time.Minute, rdb.ttls[keyPrefix+"GOERLI-SLAVE-STARKNET-1"])

	_, err = l.Acquire(ctx, "GOERLI-SLAVE-STARKNET-1")
	require.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Acquire(ctx, "OTHER")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	require.Equal(t, 2, rdb.evals)

	again, err := l.Acquire(ctx, "GOERLI-SLAVE-STARKNET-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedis_ReleaseDoesNotStealForeignLock(t *testing.T) {
	rdb := newFakeRedis()
	l := newRedis(rdb, 0, zerolog.Nop())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "d")
	require.NoError(t, err)

	// Lease expired and someone else took the key.
	rdb.mu.Lock()
	rdb.values[keyPrefix+"d"] = "someone-else"
	rdb.mu.Unlock()

	require.NoError(t, release(ctx))
	require.Equal(t, "someone-else", rdb.values[keyPrefix+"d"])
}

func TestRedis_DefaultTTLAndErrors(t *testing.T) {
	rdb := newFakeRedis()
	l := newRedis(rdb, 0, zerolog.Nop())
	require.Equal(t, DefaultTTL, l.ttl)

	rdb.setErr = errors.New("READONLY")
	_, err := l.Acquire(context.Background(), "d")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, l.Close())
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), Config{URL: "://nope"}, zerolog.Nop())
	require.Error(t, err)
}

func TestRedis_LeaseOutlivesTTLWhileHeld(t *testing.T) {
	rdb := newFakeRedis()
	l := newRedis(rdb, 60*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "d")
	require.NoError(t, err)

	// Hold well past the TTL, as a long finality wait does.
	time.Sleep(200 * time.Millisecond)

	_, err = l.Acquire(ctx, "d")
	require.ErrorIs(t, err, ErrNotAcquired)
	require.Positive(t, rdb.renewals())

	require.NoError(t, release(ctx))
	after := rdb.renewals()

	again, err := l.Acquire(ctx, "d")
	require.NoError(t, err)
	require.NoError(t, again(ctx))

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, after, rdb.renewals())
}

func TestRedis_StopsRenewingLostLease(t *testing.T) {
	rdb := newFakeRedis()
	l := newRedis(rdb, 60*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "d")
	require.NoError(t, err)

	rdb.mu.Lock()
	rdb.values[keyPrefix+"d"] = "someone-else"
	rdb.expiry[keyPrefix+"d"] = time.Now().Add(time.Hour)
	rdb.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, rdb.renewals())

	require.NoError(t, release(ctx))
	rdb.mu.Lock()
	require.Equal(t, "someone-else", rdb.values[keyPrefix+"d"])
	rdb.mu.Unlock()
}
