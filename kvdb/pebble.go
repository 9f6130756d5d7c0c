// Package kvdb is the pebble key value store shared by the native reference host and the synthetic log index.
package kvdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/ethpandaops/pointerbridge/types"
)

const (
	KeyNamespaceNativeContract uint16 = 1
	KeyNamespaceNativeToken    uint16 = 2
	KeyNamespaceNativeOwner    uint16 = 3
	KeyNamespaceNativeOperator uint16 = 4
	KeyNamespaceSyntheticBlock uint16 = 5
	KeyNamespaceSyntheticTx    uint16 = 6
	KeyNamespaceSyntheticHead  uint16 = 7
)

// Value format: [version (8 bytes)] [timestamp (8 bytes)] [data]
const valueHeaderSize = 16

// keySeparator splits variable length key parts. Bech32 ids and decimal token ids never contain it.
const keySeparator = 0x00

type Engine struct {
	db     *pebble.DB
	config types.PebbleConfig
}

// NewEngine opens the store at config.Path, or an in-memory store when the path is empty.
func NewEngine(config types.PebbleConfig) (*Engine, error) {
	cacheSize := config.CacheSize
	if cacheSize <= 0 {
		cacheSize = 8
	}
	cache := pebble.NewCache(int64(cacheSize * 1024 * 1024))
	defer cache.Unref()

	options := &pebble.Options{
		Cache: cache,
	}
	path := config.Path
	if path == "" {
		options.FS = vfs.NewMem()
		path = "memory"
	}

	db, err := pebble.Open(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store %v: %w", path, err)
	}

	return &Engine{
		db:     db,
		config: config,
	}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// MakeKey builds a namespaced key. Parts are joined with a zero byte separator.
func MakeKey(namespace uint16, parts ...[]byte) []byte {
	size := 2
	for _, part := range parts {
		size += len(part) + 1
	}
	key := make([]byte, 2, size)
	binary.BigEndian.PutUint16(key[:2], namespace)
	for idx, part := range parts {
		if idx > 0 {
			key = append(key, keySeparator)
		}
		key = append(key, part...)
	}
	return key
}

// PrefixKey is MakeKey with a trailing separator, for iterating all keys below the given parts.
func PrefixKey(namespace uint16, parts ...[]byte) []byte {
	return append(MakeKey(namespace, parts...), keySeparator)
}

// Uint64Key encodes a number so that the lexical key order matches the numeric order.
func Uint64Key(value uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, value)
	return key
}

// Get returns the stored data and version. Returns nil data if not found.
func (e *Engine) Get(key []byte) ([]byte, uint64, error) {
	res, closer, err := e.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer closer.Close()

	if len(res) < valueHeaderSize {
		return nil, 0, nil
	}

	version := binary.BigEndian.Uint64(res[:8])
	data := make([]byte, len(res)-valueHeaderSize)
	copy(data, res[valueHeaderSize:])

	return data, version, nil
}

// Has reports whether a value exists for key.
func (e *Engine) Has(key []byte) bool {
	res, closer, err := e.db.Get(key)
	if err == nil {
		defer closer.Close()
		return len(res) >= valueHeaderSize
	}
	return false
}

// Iterate calls fn for every key starting with prefix and sorting after startAfter (if set), in key order.
// Returning false from fn stops the iteration.
func (e *Engine) Iterate(prefix []byte, startAfter []byte, fn func(key []byte, data []byte) bool) error {
	options := &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	}
	iter, err := e.db.NewIter(options)
	if err != nil {
		return err
	}
	defer iter.Close()

	valid := iter.First()
	if startAfter != nil {
		valid = iter.SeekGE(startAfter)
		if valid && bytes.Equal(iter.Key(), startAfter) {
			valid = iter.Next()
		}
	}
	for ; valid; valid = iter.Next() {
		value := iter.Value()
		if len(value) < valueHeaderSize {
			continue
		}
		if !fn(iter.Key(), value[valueHeaderSize:]) {
			break
		}
	}
	return iter.Error()
}

// Batch collects writes that are committed atomically.
type Batch struct {
	batch *pebble.Batch
}

func (e *Engine) NewBatch() *Batch {
	return &Batch{
		batch: e.db.NewBatch(),
	}
}

func (b *Batch) Set(key []byte, version uint64, data []byte) error {
	return b.batch.Set(key, encodeValue(version, data), nil)
}

func (b *Batch) Delete(key []byte) error {
	return b.batch.Delete(key, nil)
}

// Commit applies the batch durably and releases it.
func (b *Batch) Commit() error {
	defer b.batch.Close()
	return b.batch.Commit(pebble.Sync)
}

// Discard drops the batch without applying it.
func (b *Batch) Discard() {
	b.batch.Close()
}

// Set stores a single value.
func (e *Engine) Set(key []byte, version uint64, data []byte) error {
	return e.db.Set(key, encodeValue(version, data), pebble.Sync)
}

func encodeValue(version uint64, data []byte) []byte {
	value := make([]byte, valueHeaderSize+len(data))
	binary.BigEndian.PutUint64(value[:8], version)
	binary.BigEndian.PutUint64(value[8:16], uint64(time.Now().UnixNano()))
	copy(value[valueHeaderSize:], data)
	return value
}

func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}
