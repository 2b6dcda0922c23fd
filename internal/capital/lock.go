package capital

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fencedLock is a single-owner `SET key token NX PX ttl` / compare-and-
// delete Lua unlock, the standard go-redis distributed-lock recipe. Spec
// §5 requires reconciliation and coin-cap enforcement to run under a
// fenced lock so two core instances never act on the same excess
// position concurrently.
type fencedLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

func newFencedLock(client *redis.Client, key string, ttl time.Duration) *fencedLock {
	return &fencedLock{client: client, key: key, ttl: ttl}
}

// acquire returns ErrLockNotAcquired if another holder already owns key.
// nil client degrades to always-acquired (single-instance / test mode).
func (l *fencedLock) acquire(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	l.token = uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// release only deletes the key if it still holds this acquisition's
// token, so a lock that expired and was re-acquired by another instance
// is never deleted out from under its new owner.
func (l *fencedLock) release(ctx context.Context) {
	if l.client == nil || l.token == "" {
		return
	}
	unlockScript.Run(ctx, l.client, []string{l.key}, l.token)
}
