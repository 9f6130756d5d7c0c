package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRemoteCache struct {
	values map[string][]byte
}

func (c *mapRemoteCache) SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *mapRemoteCache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	value, ok := c.values[key]
	if !ok {
		return nil, errors.New("redis: nil")
	}
	return value, nil
}

func TestLocalCache(t *testing.T) {
	cache, err := NewTieredCache(1, "", "")
	require.NoError(t, err)

	_, err = cache.GetRaw("missing")
	assert.ErrorIs(t, err, CacheMissError)

	require.NoError(t, cache.SetRaw("logs", json.RawMessage(`[{"a":1}]`), time.Minute))
	raw, err := cache.GetRaw("logs")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1}]`, string(raw))

	require.NoError(t, cache.Set("number", uint64(42), 0))
	var number uint64
	_, err = cache.Get("number", &number)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), number)
}

func TestRemoteTierRefillsLocal(t *testing.T) {
	remote := &mapRemoteCache{values: map[string][]byte{}}
	writer, err := NewTieredCache(1, "", "")
	require.NoError(t, err)
	writer.remoteCache = remote
	require.NoError(t, writer.SetRaw("receipt", json.RawMessage(`{"status":"0x1"}`), time.Minute))

	reader, err := NewTieredCache(1, "", "")
	require.NoError(t, err)
	reader.remoteCache = remote

	raw, err := reader.GetRaw("receipt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"0x1"}`, string(raw))

	reader.remoteCache = nil
	raw, err = reader.GetRaw("receipt")
	require.NoError(t, err, "served from the local tier")
	assert.JSONEq(t, `{"status":"0x1"}`, string(raw))
}
