package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/metrics"
)

const backendRedis = "redis"

// NewRedisClient connects to one or more comma separated Redis URLs or
// host:port addresses and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (redis.UniversalClient, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL must be provided")
	}
	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no Redis addresses provided")
	}
	return opts, nil
}

// RedisRepository stores each conversation as a list of JSON encoded
// messages plus a metadata hash. A sorted set indexes ids by last update
// for IdleIDs.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ conversation.Repository = (*RedisRepository)(nil)

// NewRedisRepository stores keys under prefix. A positive ttl expires
// conversations that were not touched for that long.
func NewRedisRepository(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRepository {
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRepository) messagesKey(id string) string { return r.prefix + "conv:" + id + ":messages" }
func (r *RedisRepository) metaKey(id string) string     { return r.prefix + "conv:" + id + ":meta" }
func (r *RedisRepository) indexKey() string             { return r.prefix + "conversations" }

func (r *RedisRepository) GetOrCreate(ctx context.Context, id string, system conversation.Message) (*conversation.Conversation, error) {
	exists, err := r.client.Exists(ctx, r.messagesKey(id)).Result()
	if err != nil {
		metrics.RecordHistoryOperation(backendRedis, "get_or_create", err)
		return nil, fmt.Errorf("check conversation %s: %w", id, err)
	}
	if exists == 0 {
		if err := r.push(ctx, id, true, system); err != nil {
			metrics.RecordHistoryOperation(backendRedis, "get_or_create", err)
			return nil, err
		}
	}
	conv, err := r.Get(ctx, id)
	metrics.RecordHistoryOperation(backendRedis, "get_or_create", err)
	return conv, err
}

func (r *RedisRepository) Append(ctx context.Context, id string, messages ...conversation.Message) error {
	err := r.push(ctx, id, false, messages...)
	metrics.RecordHistoryOperation(backendRedis, "append", err)
	return err
}

// push writes messages, metadata and the index entry in one transaction.
// Appends use RPUSHX so a list that expired in the meantime is never
// recreated without its system message.
func (r *RedisRepository) push(ctx context.Context, id string, create bool, messages ...conversation.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, data)
	}

	now := time.Now().UTC()
	var pushed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if create {
			pushed = pipe.RPush(ctx, r.messagesKey(id), values...)
		} else {
			pushed = pipe.RPushX(ctx, r.messagesKey(id), values...)
		}
		meta := []any{"updated_at", now.UnixNano()}
		if create {
			meta = append(meta, "created_at", now.UnixNano())
		}
		pipe.HSet(ctx, r.metaKey(id), meta...)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(now.Unix()), Member: id})
		if r.ttl > 0 {
			pipe.Expire(ctx, r.messagesKey(id), r.ttl)
			pipe.Expire(ctx, r.metaKey(id), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to conversation %s: %w", id, err)
	}
	if pushed.Val() == 0 {
		// The list is gone. Drop the metadata the transaction just wrote.
		if err := r.Delete(ctx, id); err != nil {
			return err
		}
		return conversation.ErrNotFound
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	raw, err := r.client.LRange(ctx, r.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}
	if len(raw) == 0 {
		return nil, conversation.ErrNotFound
	}

	conv := &conversation.Conversation{ID: id, Messages: make([]conversation.Message, 0, len(raw))}
	for _, item := range raw {
		var m conversation.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode message of %s: %w", id, err)
		}
		conv.Messages = append(conv.Messages, m)
	}

	meta, err := r.client.HGetAll(ctx, r.metaKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read conversation meta %s: %w", id, err)
	}
	conv.CreatedAt = parseUnixNano(meta["created_at"])
	conv.UpdatedAt = parseUnixNano(meta["updated_at"])
	return conv, nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.messagesKey(id), r.metaKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	metrics.RecordHistoryOperation(backendRedis, "delete", err)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (r *RedisRepository) IdleIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list idle conversations: %w", err)
	}
	return ids, nil
}

func (r *RedisRepository) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func parseUnixNano(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// RedisLocker serializes turns across replicas with a redsync mutex per
// conversation id. A held lock is extended every ttl/3 so long turns keep it,
// and it expires after ttl if its holder dies.
type RedisLocker struct {
	rs         *redsync.Redsync
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	log        zerolog.Logger
}

var _ conversation.Locker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(client)),
		prefix:     prefix,
		ttl:        ttl,
		retryDelay: 250 * time.Millisecond,
		log:        log.With().Str("component", "redis-locker").Logger(),
	}
}

// Lock waits until id is free or ctx is done, like LocalLocker.
func (l *RedisLocker) Lock(ctx context.Context, id string) (conversation.Unlock, error) {
	mutex := l.rs.NewMutex(l.prefix+"lock:"+id,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(64),
		redsync.WithRetryDelay(l.retryDelay),
	)
	for {
		err := mutex.LockContext(ctx)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("lock conversation %s: %w", id, ctxErr)
		}
		var taken *redsync.ErrTaken
		if !errors.As(err, &taken) && !errors.Is(err, redsync.ErrFailed) {
			return nil, fmt.Errorf("lock conversation %s: %w", id, err)
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(mutex, id, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if _, err := mutex.Unlock(); err != nil {
				l.log.Error().Err(err).Str("conversation_id", id).Msg("Failed to unlock mutex")
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(mutex *redsync.Mutex, id string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			ok, err := mutex.ExtendContext(ctx)
			cancel()
			if !ok || err != nil {
				l.log.Warn().Err(err).Str("conversation_id", id).Msg("Failed to extend conversation lock")
			}
		}
	}
}
