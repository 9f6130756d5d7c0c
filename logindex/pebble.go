package logindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethpandaops/pointerbridge/kvdb"
)

const pebbleBlockVersion = 1

type pebbleBlock struct {
	Hash common.Hash  `json:"hash"`
	Logs []*types.Log `json:"logs"`
}

// PebbleEngine stores finalized blocks in a kvdb store.
type PebbleEngine struct {
	kv *kvdb.Engine
}

func NewPebbleEngine(kv *kvdb.Engine) *PebbleEngine {
	return &PebbleEngine{
		kv: kv,
	}
}

func blockKey(number uint64) []byte {
	return kvdb.MakeKey(kvdb.KeyNamespaceSyntheticBlock, kvdb.Uint64Key(number))
}

func txKey(txHash common.Hash) []byte {
	return kvdb.MakeKey(kvdb.KeyNamespaceSyntheticTx, txHash.Bytes())
}

func headKey() []byte {
	return kvdb.MakeKey(kvdb.KeyNamespaceSyntheticHead)
}

func (e *PebbleEngine) StoreBlock(block *Block) error {
	data, err := json.Marshal(&pebbleBlock{Hash: block.Hash, Logs: block.Logs})
	if err != nil {
		return err
	}

	batch := e.kv.NewBatch()
	if err := batch.Set(blockKey(block.Number), pebbleBlockVersion, data); err != nil {
		batch.Discard()
		return err
	}
	seenTx := map[common.Hash]bool{}
	for _, log := range block.Logs {
		if seenTx[log.TxHash] {
			continue
		}
		seenTx[log.TxHash] = true
		if err := batch.Set(txKey(log.TxHash), pebbleBlockVersion, kvdb.Uint64Key(block.Number)); err != nil {
			batch.Discard()
			return err
		}
	}
	if err := batch.Set(headKey(), pebbleBlockVersion, kvdb.Uint64Key(block.Number)); err != nil {
		batch.Discard()
		return err
	}
	return batch.Commit()
}

func (e *PebbleEngine) LoadBlock(number uint64) (*Block, error) {
	data, _, err := e.kv.Get(blockKey(number))
	if err != nil || data == nil {
		return nil, err
	}
	return decodePebbleBlock(number, data)
}

func decodePebbleBlock(number uint64, data []byte) (*Block, error) {
	stored := &pebbleBlock{}
	if err := json.Unmarshal(data, stored); err != nil {
		return nil, fmt.Errorf("corrupt synthetic block %v: %w", number, err)
	}
	return &Block{
		Number: number,
		Hash:   stored.Hash,
		Logs:   stored.Logs,
	}, nil
}

func (e *PebbleEngine) LoadTxLogs(txHash common.Hash) ([]*types.Log, error) {
	data, _, err := e.kv.Get(txKey(txHash))
	if err != nil {
		return nil, err
	}
	if len(data) != 8 {
		return []*types.Log{}, nil
	}
	block, err := e.LoadBlock(binary.BigEndian.Uint64(data))
	if err != nil {
		return nil, err
	}
	logs := []*types.Log{}
	if block == nil {
		return logs, nil
	}
	for _, log := range block.Logs {
		if log.TxHash == txHash {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

func (e *PebbleEngine) FilterLogs(query *Query) ([]*types.Log, error) {
	prefix := kvdb.MakeKey(kvdb.KeyNamespaceSyntheticBlock)
	var startAfter []byte
	if query.FromBlock > 0 {
		startAfter = blockKey(query.FromBlock - 1)
	}

	logs := []*types.Log{}
	var decodeErr error
	err := e.kv.Iterate(prefix, startAfter, func(key []byte, data []byte) bool {
		number := binary.BigEndian.Uint64(key[len(prefix):])
		if number > query.ToBlock {
			return false
		}
		block, err := decodePebbleBlock(number, data)
		if err != nil {
			decodeErr = err
			return false
		}
		for _, log := range block.Logs {
			if query.Matches(log) {
				logs = append(logs, log)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return logs, nil
}

func (e *PebbleEngine) Head() (uint64, bool, error) {
	data, _, err := e.kv.Get(headKey())
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(data), true, nil
}
