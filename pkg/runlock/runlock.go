// Package runlock keeps two migration runs from writing to the same tenant
// at once. The lock is a Redis key with a TTL, owned by a random token.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
)

const keyPrefix = "petmig:lock:"

// ErrNotHeld is returned when releasing or refreshing a lock that expired or
// was taken over.
var ErrNotHeld = errors.New("lock no longer held")

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Locker hands out tenant locks.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	owner  string
}

// NewLocker creates a locker. owner identifies this process in the lock value
// so a blocked operator can see who holds it; empty uses host and pid.
func NewLocker(client redis.UniversalClient, ttl time.Duration, owner string) *Locker {
	if owner == "" {
		host, _ := os.Hostname()
		owner = fmt.Sprintf("%s/%d", host, os.Getpid())
	}
	return &Locker{client: client, ttl: ttl, owner: owner}
}

// Lock is a held tenant lock.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// Key returns the Redis key for tenantID.
func Key(tenantID string) string {
	return keyPrefix + tenantID
}

// Acquire takes the tenant lock for stage. If another run holds it the error
// wraps migerrors.ErrLocked and names the holder.
func (l *Locker) Acquire(ctx context.Context, tenantID, stage string) (*Lock, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required to lock", migerrors.ErrValidation)
	}
	if l.ttl <= 0 {
		return nil, fmt.Errorf("%w: lock ttl must be positive", migerrors.ErrValidation)
	}

	key := Key(tenantID)
	token := fmt.Sprintf("%s/%s/%s", l.owner, stage, uuid.NewString())

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		holder, _ := l.Holder(ctx, tenantID)
		return nil, fmt.Errorf("tenant %s held by %q: %w", tenantID, holder, migerrors.ErrLocked)
	}

	return &Lock{client: l.client, key: key, token: token, ttl: l.ttl}, nil
}

// Holder returns the current lock value for tenantID, or "" if unlocked.
func (l *Locker) Holder(ctx context.Context, tenantID string) (string, error) {
	v, err := l.client.Get(ctx, Key(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// Token is the value stored under the lock key.
func (lk *Lock) Token() string {
	return lk.token
}

// Refresh extends the TTL while the lock is still ours.
func (lk *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, lk.client, []string{lk.key}, lk.token, lk.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refreshing lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release deletes the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Int()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
