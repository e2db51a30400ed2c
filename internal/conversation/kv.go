package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bowerhall/docsage/internal/cache"
)

// KVStore keeps each session as one JSON blob under "session:<id>" in a
// cache backend, refreshing the TTL on every write.
type KVStore struct {
	backend cache.Backend
	ttl     time.Duration
}

func NewKVStore(backend cache.Backend, ttl time.Duration) *KVStore {
	return &KVStore{backend: backend, ttl: ttl}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (k *KVStore) Load(ctx context.Context, id string) ([]Turn, error) {
	raw, ok, err := k.backend.Get(ctx, sessionKey(id))
	if err != nil || !ok {
		return nil, err
	}

	var turns []Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

func (k *KVStore) Save(ctx context.Context, id string, turns []Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	return k.backend.SetEx(ctx, sessionKey(id), string(data), k.ttl)
}

// Delete overwrites the session with an empty list; the backend has no
// delete and the TTL reclaims the key.
func (k *KVStore) Delete(ctx context.Context, id string) error {
	return k.backend.SetEx(ctx, sessionKey(id), "[]", k.ttl)
}

// Sweep is a no-op: expiry is handled by the backend TTL.
func (k *KVStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
