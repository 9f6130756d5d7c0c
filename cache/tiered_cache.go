package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/coocood/freecache"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/utils"
)

// Tiered cache is a cache implementation combining a local & remote cache
type TieredCache struct {
	localGoCache *freecache.Cache
	remoteCache  RemoteCache
}

type cachedValue struct {
	Version uint64          `json:"i"`
	Timeout uint64          `json:"t"`
	Value   json.RawMessage `json:"v"`
}

var CacheMissError error = errors.New("cache miss")

type RemoteCache interface {
	SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
}

// NewTieredCache creates a local cache of cacheSize MB, backed by redis if an address is given.
func NewTieredCache(cacheSize int, redisAddress string, redisPrefix string) (*TieredCache, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	var remoteCache RemoteCache
	if redisAddress != "" {
		var err error
		remoteCache, err = InitRedisCache(ctx, redisAddress, redisPrefix)
		if err != nil {
			logrus.WithError(err).Errorf("error initializing remote redis cache. address: %v", redisAddress)
			return nil, err
		}
	}

	if cacheSize <= 0 {
		cacheSize = 32
	}
	return &TieredCache{
		remoteCache:  remoteCache,
		localGoCache: freecache.NewCache(cacheSize * 1024 * 1024),
	}, nil
}

// Close releases the redis connection, if any.
func (cache *TieredCache) Close() error {
	if closer, ok := cache.remoteCache.(*RedisCache); ok {
		return closer.Close()
	}
	return nil
}

// SetRaw stores an already encoded json value.
func (cache *TieredCache) SetRaw(key string, value json.RawMessage, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()
	cacheValue := cachedValue{
		Version: 1,
		Value:   value,
	}
	if expiration > 0 {
		cacheValue.Timeout = uint64(time.Now().Add(expiration).Unix())
	}

	valueMarshal, err := json.Marshal(cacheValue)
	if err != nil {
		return err
	}
	if err := cache.localGoCache.Set([]byte(key), valueMarshal, int(expiration.Seconds())); err != nil {
		return err
	}
	if cache.remoteCache != nil {
		return cache.remoteCache.SetBytes(ctx, key, valueMarshal, expiration)
	}
	return nil
}

func (cache *TieredCache) Set(key string, value interface{}, expiration time.Duration) error {
	valueMarshal, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return cache.SetRaw(key, valueMarshal, expiration)
}

// GetRaw returns the encoded json value of key, or CacheMissError.
func (cache *TieredCache) GetRaw(key string) (json.RawMessage, error) {
	cacheValue := &cachedValue{}

	// try to retrieve the key from the local cache
	wanted, err := cache.localGoCache.Get([]byte(key))
	if err == nil {
		err = json.Unmarshal(wanted, cacheValue)
		if err != nil {
			utils.LogError(err, "error unmarshalling data for key", 0, map[string]interface{}{"key": key})
			return nil, err
		}
		return cacheValue.Value, nil
	}

	if cache.remoteCache == nil {
		return nil, CacheMissError
	}

	// retrieve the key from the remote cache
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	remoteValue, err := cache.remoteCache.GetBytes(ctx, key)
	if err != nil {
		return nil, CacheMissError
	}
	if err := json.Unmarshal(remoteValue, cacheValue); err != nil {
		return nil, err
	}

	if cacheValue.Timeout == 0 || cacheValue.Timeout > uint64(time.Now().Add(2*time.Second).Unix()) {
		var timeout uint64
		if cacheValue.Timeout != 0 {
			timeout = cacheValue.Timeout - uint64(time.Now().Unix())
		}
		cache.localGoCache.Set([]byte(key), remoteValue, int(timeout))
	}
	return cacheValue.Value, nil
}

func (cache *TieredCache) Get(key string, returnValue interface{}) (interface{}, error) {
	raw, err := cache.GetRaw(key)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, returnValue); err != nil {
		return nil, err
	}
	return returnValue, nil
}
