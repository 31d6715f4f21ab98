package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key patterns for stored documents.
	keyDocPrefix   = "doc:"        // + <collection>:<id> -> Hash {data, version}
	keyIndexPrefix = "doc:index:"  // + <collection> -> Sorted set, score = version
	keyVersionSeq  = "doc:version" // monotonically increasing version counter
)

// Redis stores documents as hashes and keeps a per-collection sorted set of
// ids in insertion order. Queries scan the collection and filter in process;
// AtomicBatch runs under WATCH/MULTI so a concurrent consumer of the same
// document makes the batch fail with ErrConflict.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a Redis-backed document store.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func docKey(collection, id string) string {
	return keyDocPrefix + collection + ":" + id
}

func indexKey(collection string) string {
	return keyIndexPrefix + collection
}

// QueryByField implements Store.
func (r *Redis) QueryByField(ctx context.Context, collection, field string, op Operator, value any) ([]Document, error) {
	filter, err := newFieldFilter(field, op, value)
	if err != nil {
		return nil, err
	}

	ids, err := r.rdb.ZRange(ctx, indexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, unavailable("redis query index", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, docKey(collection, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("redis query fetch", err)
	}

	var docs []Document
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // consumed between index read and fetch
		}
		var version int64
		fmt.Sscanf(fields["version"], "%d", &version)

		data := json.RawMessage(fields["data"])
		ok, err := filter.match(data)
		if err != nil {
			return nil, fmt.Errorf("store: redis query %s/%s: %w", collection, ids[i], err)
		}
		if ok {
			docs = append(docs, Document{ID: ids[i], Version: version, Data: data})
		}
	}
	return docs, nil
}

// Insert implements Store.
func (r *Redis) Insert(ctx context.Context, collection string, data any) (string, error) {
	raw, err := encode(data)
	if err != nil {
		return "", err
	}

	version, err := r.rdb.Incr(ctx, keyVersionSeq).Result()
	if err != nil {
		return "", unavailable("redis insert version", err)
	}

	id := NewID()
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeDoc(ctx, pipe, collection, id, raw, version)
		return nil
	})
	if err != nil {
		return "", unavailable("redis insert", err)
	}
	return id, nil
}

// DeleteByID implements Store.
func (r *Redis) DeleteByID(ctx context.Context, collection, id string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, docKey(collection, id))
		pipe.ZRem(ctx, indexKey(collection), id)
		return nil
	})
	if err != nil {
		return unavailable("redis delete", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// AtomicBatch implements Store.
func (r *Redis) AtomicBatch(ctx context.Context, mutations []Mutation) error {
	mutations = append([]Mutation(nil), mutations...)
	encoded := make([]json.RawMessage, len(mutations))
	var watch []string
	for i, m := range mutations {
		switch m.Kind {
		case MutationInsert:
			raw, err := encode(m.Data)
			if err != nil {
				return err
			}
			encoded[i] = raw
			if m.ID == "" {
				mutations[i].ID = NewID()
			} else {
				watch = append(watch, docKey(m.Collection, m.ID))
			}
		case MutationDelete:
			if m.ExpectVersion != 0 {
				watch = append(watch, docKey(m.Collection, m.ID))
			}
		default:
			return fmt.Errorf("store: unknown mutation kind %d", m.Kind)
		}
	}

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		versions := make([]int64, len(mutations))
		for i, m := range mutations {
			key := docKey(m.Collection, m.ID)
			switch {
			case m.Kind == MutationDelete && m.ExpectVersion != 0:
				current, err := tx.HGet(ctx, key, "version").Int64()
				if errors.Is(err, redis.Nil) || (err == nil && current != m.ExpectVersion) {
					return fmt.Errorf("%w: %s/%s is not at version %d", ErrConflict, m.Collection, m.ID, m.ExpectVersion)
				}
				if err != nil {
					return unavailable("redis batch precondition", err)
				}
			case m.Kind == MutationInsert:
				n, err := tx.Exists(ctx, key).Result()
				if err != nil {
					return unavailable("redis batch exists", err)
				}
				if n > 0 {
					return fmt.Errorf("%w: %s/%s already exists", ErrConflict, m.Collection, m.ID)
				}
				if versions[i], err = tx.Incr(ctx, keyVersionSeq).Result(); err != nil {
					return unavailable("redis batch version", err)
				}
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, m := range mutations {
				switch m.Kind {
				case MutationInsert:
					writeDoc(ctx, pipe, m.Collection, m.ID, encoded[i], versions[i])
				case MutationDelete:
					pipe.Del(ctx, docKey(m.Collection, m.ID))
					pipe.ZRem(ctx, indexKey(m.Collection), m.ID)
				}
			}
			return nil
		})
		return err
	}, watch...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: watched document changed", ErrConflict)
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable):
		return err
	default:
		return unavailable("redis batch", err)
	}
}

func writeDoc(ctx context.Context, pipe redis.Pipeliner, collection, id string, raw json.RawMessage, version int64) {
	pipe.HSet(ctx, docKey(collection, id), map[string]interface{}{
		"data":    string(raw),
		"version": version,
	})
	pipe.ZAdd(ctx, indexKey(collection), redis.Z{Score: float64(version), Member: id})
}
