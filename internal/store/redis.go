package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions tunes the redis-backed store.
type RedisOptions struct {
	KeyPrefix      string
	MaxTxRetries   int
	ResyncInterval time.Duration
}

// Redis is a Store backed by redis. Documents are JSON strings guarded by WATCH/MULTI, and every
// commit publishes the new document on a per-document channel.
type Redis struct {
	engine

	client  *redis.Client
	logger  zerolog.Logger
	prefix  string
	retries int
	resync  time.Duration
}

// NewRedis creates a redis-backed store.
func NewRedis(client *redis.Client, logger zerolog.Logger, opts RedisOptions) *Redis {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "rtdb"
	}
	retries := opts.MaxTxRetries
	if retries <= 0 {
		retries = 16
	}
	resync := opts.ResyncInterval
	if resync <= 0 {
		resync = 5 * time.Second
	}
	r := &Redis{
		client:  client,
		logger:  logger.With().Str("component", "room_store").Logger(),
		prefix:  prefix,
		retries: retries,
		resync:  resync,
	}
	r.engine = engine{b: r}
	return r
}

type changeEvent struct {
	Rev   int64           `json:"rev"`
	Value json.RawMessage `json:"value"`
}

func (r *Redis) docKey(p docPath) string {
	return fmt.Sprintf("%s:doc:%s:%s", r.prefix, p.collection, p.id)
}

func (r *Redis) revKey(p docPath) string {
	return fmt.Sprintf("%s:rev:%s:%s", r.prefix, p.collection, p.id)
}

func (r *Redis) channel(p docPath) string {
	return fmt.Sprintf("%s:chan:%s:%s", r.prefix, p.collection, p.id)
}

func (r *Redis) indexKey(collection string) string {
	return fmt.Sprintf("%s:idx:%s", r.prefix, collection)
}

func (r *Redis) read(ctx context.Context, p docPath) ([]byte, int64, error) {
	pipe := r.client.Pipeline()
	docCmd := pipe.Get(ctx, r.docKey(p))
	revCmd := pipe.Get(ctx, r.revKey(p))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}
	doc, err := bytesOrNil(docCmd)
	if err != nil {
		return nil, 0, err
	}
	rev, err := int64OrZero(revCmd)
	if err != nil {
		return nil, 0, err
	}
	return doc, rev, nil
}

func (r *Redis) commit(ctx context.Context, p docPath, fn func(cur []byte) ([]byte, error)) ([]byte, int64, error) {
	dk, rk := r.docKey(p), r.revKey(p)

	for attempt := 0; attempt < r.retries; attempt++ {
		var (
			out    []byte
			outRev int64
		)
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := bytesOrNil(tx.Get(ctx, dk))
			if err != nil {
				return err
			}
			rev, err := int64OrZero(tx.Get(ctx, rk))
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				out, outRev = cur, rev
				return err
			}
			newRev := rev + 1
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.Del(ctx, dk)
					pipe.SRem(ctx, r.indexKey(p.collection), p.id)
				} else {
					pipe.Set(ctx, dk, next, 0)
					pipe.SAdd(ctx, r.indexKey(p.collection), p.id)
				}
				pipe.Set(ctx, rk, newRev, 0)
				return nil
			})
			if err != nil {
				return err
			}
			out, outRev = next, newRev
			return nil
		}, dk, rk)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return out, outRev, err
		}
		r.publish(ctx, p, out, outRev)
		return out, outRev, nil
	}
	return nil, 0, fmt.Errorf("%w after %d attempts on %s", ErrConflict, r.retries, p.key())
}

func (r *Redis) publish(ctx context.Context, p docPath, doc []byte, rev int64) {
	payload, err := json.Marshal(changeEvent{Rev: rev, Value: doc})
	if err != nil {
		r.logger.Warn().Err(err).Str("doc", p.key()).Msg("failed to encode change event")
		return
	}
	if err := r.client.Publish(ctx, r.channel(p), payload).Err(); err != nil {
		// Subscribers pick the change up on their next resync.
		r.logger.Warn().Err(err).Str("doc", p.key()).Msg("failed to publish change event")
	}
}

func (r *Redis) watch(ctx context.Context, p docPath, fn func(doc []byte, rev int64)) (func(), error) {
	sub := r.client.Subscribe(ctx, r.channel(p))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.key(), err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer sub.Close()

		last := int64(-1)
		deliver := func(doc []byte, rev int64) {
			if rev <= last {
				return
			}
			last = rev
			fn(doc, rev)
		}
		resync := func() {
			doc, rev, err := r.read(wctx, p)
			if err != nil {
				if wctx.Err() == nil {
					r.logger.Warn().Err(err).Str("doc", p.key()).Msg("resync read failed")
				}
				return
			}
			deliver(doc, rev)
		}

		resync()
		ticker := time.NewTicker(r.resync)
		defer ticker.Stop()
		ch := sub.Channel()
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticker.C:
				resync()
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt changeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					r.logger.Warn().Err(err).Str("doc", p.key()).Msg("dropping malformed change event")
					continue
				}
				if string(evt.Value) == "null" {
					evt.Value = nil
				}
				deliver(evt.Value, evt.Rev)
			}
		}
	}()

	// Cancelling does not wait for an in-flight delivery, so it is safe to call from inside fn.
	return cancel, nil
}

func (r *Redis) list(ctx context.Context, collection string) ([]docRecord, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	docKeys := make([]string, len(ids))
	revKeys := make([]string, len(ids))
	for i, id := range ids {
		p := docPath{collection: collection, id: id}
		docKeys[i] = r.docKey(p)
		revKeys[i] = r.revKey(p)
	}
	docs, err := r.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, err
	}
	revs, err := r.client.MGet(ctx, revKeys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]docRecord, 0, len(ids))
	for i, id := range ids {
		s, ok := docs[i].(string)
		if !ok {
			continue
		}
		var rev int64
		if rs, ok := revs[i].(string); ok {
			rev, _ = strconv.ParseInt(rs, 10, 64)
		}
		out = append(out, docRecord{id: id, doc: []byte(s), rev: rev})
	}
	return out, nil
}

func bytesOrNil(cmd *redis.StringCmd) ([]byte, error) {
	b, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func int64OrZero(cmd *redis.StringCmd) (int64, error) {
	n, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
