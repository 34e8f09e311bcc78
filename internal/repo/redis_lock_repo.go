package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/cronlock/internal/domain"
	"github.com/shaiso/cronlock/internal/lock"
)

const (
	defaultRedisURL    = "redis://localhost:6379/0"
	defaultRedisPrefix = "cronlock"
)

// RedisLockRepo: реализация lock.Store поверх Redis.
//
// Запись блокировки хранится в hash "<prefix>:lock:<job>" (holder_id,
// acquired_at, expires_at в миллисекундах), индекс по времени истечения
// в sorted set "<prefix>:locks". Каждая операция выполняется одним
// Lua-скриптом, время берётся из TIME сервера Redis.
//
// Скрипт очистки обращается к ключам, не переданным в KEYS, поэтому
// хранилище рассчитано на одиночный Redis (не Cluster).
type RedisLockRepo struct {
	client redis.UniversalClient
	prefix string
}

var _ lock.Store = (*RedisLockRepo)(nil)

// NewRedisClient создаёт клиента по URL и проверяет соединение.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	client, err := OpenRedisClient(url)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: connect redis: %w", lock.ErrDatastoreUnavailable, err)
	}
	return client, nil
}

// OpenRedisClient создаёт клиента по URL без проверки соединения.
func OpenRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedisLockRepo создаёт RedisLockRepo. Пустой prefix заменяется на "cronlock".
func NewRedisLockRepo(client redis.UniversalClient, prefix string) *RedisLockRepo {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLockRepo{client: client, prefix: prefix}
}

func (r *RedisLockRepo) lockKey(jobName string) string {
	return r.prefix + ":lock:" + jobName
}

func (r *RedisLockRepo) indexKey() string {
	return r.prefix + ":locks"
}

// nowMillis: текущее время сервера в миллисекундах.
const nowMillis = `
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
`

// KEYS[1] hash блокировки, KEYS[2] индекс; ARGV: job, holder, ttl_ms.
// Проверка истечения и запись выполняются атомарно внутри скрипта.
var acquireScript = redis.NewScript(nowMillis + `
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
local reclaimed = 0
if expires then
	if expires > now then
		return false
	end
	reclaimed = 1
end
local exp = now + tonumber(ARGV[3])
redis.call('HSET', KEYS[1], 'holder_id', ARGV[2], 'acquired_at', tostring(now), 'expires_at', tostring(exp))
redis.call('ZADD', KEYS[2], exp, ARGV[1])
return {ARGV[2], tostring(now), tostring(exp), reclaimed}
`)

// KEYS[1] hash блокировки, KEYS[2] индекс; ARGV: job, holder.
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder_id') == ARGV[2] then
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// KEYS[1] индекс; ARGV[1] префикс ключей блокировок.
var cleanupScript = redis.NewScript(nowMillis + `
local names = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', tostring(now))
local deleted = 0
for _, name in ipairs(names) do
	local key = ARGV[1] .. name
	local exp = tonumber(redis.call('HGET', key, 'expires_at'))
	if exp == nil or exp <= now then
		if exp ~= nil then
			redis.call('DEL', key)
			deleted = deleted + 1
		end
		redis.call('ZREM', KEYS[1], name)
	end
end
return deleted
`)

// TryAcquire захватывает блокировку одним скриптом.
func (r *RedisLockRepo) TryAcquire(ctx context.Context, jobName, holderID string, ttl time.Duration) (*domain.LockRecord, bool, error) {
	if ttl < time.Millisecond {
		return nil, false, fmt.Errorf("%w: ttl %s below 1ms", lock.ErrInvalidArgument, ttl)
	}

	res, err := acquireScript.Run(ctx, r.client,
		[]string{r.lockKey(jobName), r.indexKey()},
		jobName, holderID, ttl.Milliseconds(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if len(res) != 4 {
		return nil, false, fmt.Errorf("acquire lock: unexpected reply %v", res)
	}

	acquiredAt, err := parseMillis(res[1])
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	expiresAt, err := parseMillis(res[2])
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	reclaimed, _ := res[3].(int64)

	return &domain.LockRecord{
		JobName:    jobName,
		HolderID:   holderID,
		AcquiredAt: acquiredAt,
		ExpiresAt:  expiresAt,
		Reclaimed:  reclaimed == 1,
	}, true, nil
}

// Release снимает блокировку, если её держит holderID.
func (r *RedisLockRepo) Release(ctx context.Context, jobName, holderID string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client,
		[]string{r.lockKey(jobName), r.indexKey()},
		jobName, holderID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock: %w", err)
	}
	return n == 1, nil
}

// DeleteExpired удаляет просроченные записи.
func (r *RedisLockRepo) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := cleanupScript.Run(ctx, r.client,
		[]string{r.indexKey()},
		r.prefix+":lock:",
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("delete expired locks: %w", err)
	}
	return n, nil
}

// Get возвращает запись блокировки.
func (r *RedisLockRepo) Get(ctx context.Context, jobName string) (*domain.LockRecord, error) {
	fields, err := r.client.HGetAll(ctx, r.lockKey(jobName)).Result()
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	if len(fields) == 0 {
		return nil, lock.ErrNotFound
	}
	return parseLockHash(jobName, fields)
}

// List возвращает все записи из индекса.
func (r *RedisLockRepo) List(ctx context.Context) ([]domain.LockRecord, error) {
	names, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}

	records := make([]domain.LockRecord, 0, len(names))
	for _, name := range names {
		rec, err := r.Get(ctx, name)
		if errors.Is(err, lock.ErrNotFound) {
			// Удалена между ZRANGE и HGETALL
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].JobName < records[j].JobName })
	return records, nil
}

// Now возвращает время сервера Redis.
func (r *RedisLockRepo) Now(ctx context.Context) (time.Time, error) {
	now, err := r.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("query redis time: %w", err)
	}
	return now.UTC(), nil
}

func parseLockHash(jobName string, fields map[string]string) (*domain.LockRecord, error) {
	acquiredAt, err := parseMillis(fields["acquired_at"])
	if err != nil {
		return nil, fmt.Errorf("parse lock %s: %w", jobName, err)
	}
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parse lock %s: %w", jobName, err)
	}
	return &domain.LockRecord{
		JobName:    jobName,
		HolderID:   fields["holder_id"],
		AcquiredAt: acquiredAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// parseMillis разбирает unix-время в миллисекундах (строка или число из ответа скрипта).
func parseMillis(v any) (time.Time, error) {
	var ms int64
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse millis %q: %w", x, err)
		}
		ms = n
	case int64:
		ms = x
	default:
		return time.Time{}, fmt.Errorf("unexpected millis type %T", v)
	}
	return time.UnixMilli(ms).UTC(), nil
}
