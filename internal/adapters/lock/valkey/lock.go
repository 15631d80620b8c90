package valkey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"discord-interactions-server/internal/core/ports"

	"github.com/valkey-io/valkey-go"
)

const (
	DefaultTTL = 30 * time.Second
	keyPrefix  = "lock:"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

type Locker struct {
	client valkey.Client
	ttl    time.Duration
}

var _ ports.Locker = (*Locker)(nil)

func NewClient(addr string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey at %s: %w", addr, err)
	}
	return client, nil
}

func NewLocker(client valkey.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: client, ttl: ttl}
}

// Lock acquires key with SET NX PX. The returned func releases it if the token still matches,
// so a lock that expired and was taken over is left alone.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	k := lockKey(key)
	cmd := l.client.B().Set().Key(k).Value(token).Nx().PxMilliseconds(l.ttl.Milliseconds()).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrLocked)
		}
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	slog.Debug("Acquired lock", "key", k, "ttl", l.ttl)

	unlock := func(ctx context.Context) error {
		release := l.client.B().Eval().Script(releaseScript).Numkeys(1).Key(k).Arg(token).Build()
		released, err := l.client.Do(ctx, release).AsInt64()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if released == 0 {
			slog.Warn("Lock expired before release", "key", k)
		}
		return nil
	}

	return unlock, nil
}

func (l *Locker) Close() {
	l.client.Close()
}

func lockKey(key string) string {
	return keyPrefix + key
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
