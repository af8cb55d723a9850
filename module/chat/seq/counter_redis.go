package seq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxSeqDB resolves the durable high-water mark for a channel; used to seed
// or correct the Redis counter so a flushed cache never re-issues numbers.
type MaxSeqDB interface {
	QueryMaxSeq(ctx context.Context, channelID int64) (int64, error)
}

// RedisCounter backs CounterStore with a plain INCR per channel. The key is
// lazily initialized from the DB under a short lock so a cold start does not
// restart numbering at 1.
type RedisCounter struct {
	rdb        redis.UniversalClient
	db         MaxSeqDB
	seqPrefix  string
	lockPrefix string
	lockTTL    time.Duration
	spinWait   time.Duration
}

func NewRedisCounter(rdb redis.UniversalClient, db MaxSeqDB) *RedisCounter {
	return &RedisCounter{
		rdb:        rdb,
		db:         db,
		seqPrefix:  "im:chseq",
		lockPrefix: "im:chseq:init",
		lockTTL:    10 * time.Second,
		spinWait:   50 * time.Millisecond,
	}
}

func (c *RedisCounter) seqKey(channelID int64) string {
	return fmt.Sprintf("%s:%d", c.seqPrefix, channelID)
}
func (c *RedisCounter) lockKey(channelID int64) string {
	return fmt.Sprintf("%s:%d", c.lockPrefix, channelID)
}

// Next issues the next sequence, initializing the counter from the DB if the
// key is missing.
func (c *RedisCounter) Next(ctx context.Context, channelID int64) (int64, error) {
	key := c.seqKey(channelID)
	if v, err := c.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
		return c.rdb.Incr(ctx, key).Result()
	}
	if err := c.initIfNeeded(ctx, channelID); err != nil {
		return 0, err
	}
	return c.rdb.Incr(ctx, key).Result()
}

func (c *RedisCounter) initIfNeeded(ctx context.Context, channelID int64) error {
	key := c.seqKey(channelID)
	if v, err := c.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
		return nil
	}
	// Lock so a cold channel does not stampede the DB.
	lock := c.lockKey(channelID)
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := c.rdb.SetNX(ctx, lock, token, c.lockTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		timer := time.NewTimer(c.spinWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if v, err := c.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
			return nil
		}
		return errors.New("sequence init contention, retry")
	}
	defer func() { _ = c.rdb.Del(ctx, lock) }()

	// Double check under the lock.
	if v, err := c.rdb.Get(ctx, key).Int64(); err == nil && v > 0 {
		return nil
	}
	maxSeq, err := c.db.QueryMaxSeq(ctx, channelID)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, maxSeq, 0).Err()
}

// Only-raise correction: if the counter fell behind the durable store (cache
// flush), lift it to dbMax before issuing the next number.
var reconcileAndNextLua = redis.NewScript(`
local k = KEYS[1]
local dbMax = tonumber(ARGV[1])
local v = redis.call('GET', k)
if (not v) or (tonumber(v) < dbMax) then
  redis.call('SET', k, dbMax)
end
return redis.call('INCR', k)
`)

func (c *RedisCounter) ReconcileAndNext(ctx context.Context, channelID int64, dbMax int64) (int64, error) {
	return reconcileAndNextLua.Run(ctx, c.rdb, []string{c.seqKey(channelID)}, dbMax).Int64()
}
