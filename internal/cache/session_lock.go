package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("session lock wait timed out")

// SessionLocker serializes history rewrites of one session. Lock blocks until
// the lock is held, wait elapses or ctx ends, and returns the release func.
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (func(), error)
}

var unlockScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisSessionLocker holds a SET NX PX lock per session so that every server
// instance observes the same owner. The holder refreshes the TTL every third
// of it until release, so the TTL only bounds how long a crashed holder can
// block the session.
type RedisSessionLocker struct {
	client *redisv9.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisSessionLocker(client *redisv9.Client, ttl, wait time.Duration) *RedisSessionLocker {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &RedisSessionLocker{client: client, ttl: ttl, wait: wait, retry: 50 * time.Millisecond}
}

func (l *RedisSessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := "chat:lock:" + sessionID
	token := uuid.NewString()
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis acquire session lock failed: %w", err)
		}
		if ok {
			return l.hold(context.WithoutCancel(ctx), key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrLockTimeout
		case <-time.After(l.retry):
		}
	}
}

// hold keeps the lock alive in the background and returns its release func.
func (l *RedisSessionLocker) hold(ctx context.Context, key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				held, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
				if err != nil || held == 0 {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = unlockScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}
}

// LocalSessionLocker is the single-process fallback used when Redis is off.
// Entries live only while someone holds or waits for them.
type LocalSessionLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalSessionLocker(wait time.Duration) *LocalSessionLocker {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &LocalSessionLocker{locks: make(map[string]*localLock), wait: wait}
}

func (l *LocalSessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[sessionID]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.ch
				l.unref(sessionID, lk)
			})
		}, nil
	case <-ctx.Done():
		l.unref(sessionID, lk)
		return nil, ctx.Err()
	case <-deadline.C:
		l.unref(sessionID, lk)
		return nil, ErrLockTimeout
	}
}

func (l *LocalSessionLocker) unref(sessionID string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, sessionID)
	}
}
