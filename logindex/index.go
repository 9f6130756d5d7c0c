// Package logindex holds the synthetic logs of finalized blocks.
//
// Logs are appended to the single open block by the block producer and become
// visible to readers only when that block is finalized.
package logindex

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/metrics"
)

var ErrBlockNotFinalized = errors.New("block not finalized")

// Block is a finalized block's synthetic log set.
type Block struct {
	Number uint64
	Hash   common.Hash
	Logs   []*types.Log
}

// Engine persists finalized blocks. Blocks are written once and in ascending order.
type Engine interface {
	StoreBlock(block *Block) error
	LoadBlock(number uint64) (*Block, error)
	LoadTxLogs(txHash common.Hash) ([]*types.Log, error)
	FilterLogs(query *Query) ([]*types.Log, error)
	Head() (uint64, bool, error)
}

type openBlock struct {
	number uint64
	logs   []*types.Log
}

type Index struct {
	logger         logrus.FieldLogger
	engine         Engine
	inMemoryBlocks uint64

	writeMutex sync.Mutex
	open       *openBlock

	mutex     sync.RWMutex
	head      uint64
	hasHead   bool
	lowest    uint64
	finalized map[uint64]*Block
	txLogs    map[common.Hash][]*types.Log
}

// NewIndex creates an index. With a nil engine every block stays in memory.
// With an engine, finalized blocks are written through and only the newest inMemoryBlocks stay cached.
func NewIndex(logger logrus.FieldLogger, engine Engine, inMemoryBlocks uint64) (*Index, error) {
	index := &Index{
		logger:         logger,
		engine:         engine,
		inMemoryBlocks: inMemoryBlocks,
		finalized:      map[uint64]*Block{},
		txLogs:         map[common.Hash][]*types.Log{},
	}

	if engine != nil {
		head, ok, err := engine.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to load synthetic log head: %w", err)
		}
		if ok {
			index.head = head
			index.hasHead = true
			index.lowest = head + 1
			logger.Infof("resuming synthetic log index at block %v", head)
		}
	}

	return index, nil
}

// Append adds logs to the open block. The first Append for a block opens it.
// Block number and log index are assigned here; transaction fields must already be set.
func (idx *Index) Append(blockNumber uint64, logs []*types.Log) error {
	idx.writeMutex.Lock()
	defer idx.writeMutex.Unlock()

	if err := idx.openBlock(blockNumber); err != nil {
		return err
	}
	for _, log := range logs {
		log.BlockNumber = blockNumber
		log.Index = uint(len(idx.open.logs))
		idx.open.logs = append(idx.open.logs, log)
	}
	return nil
}

func (idx *Index) openBlock(blockNumber uint64) error {
	if idx.open != nil {
		if idx.open.number != blockNumber {
			return fmt.Errorf("block %v is open, cannot append to block %v", idx.open.number, blockNumber)
		}
		return nil
	}

	idx.mutex.RLock()
	head, hasHead := idx.head, idx.hasHead
	idx.mutex.RUnlock()
	if hasHead && blockNumber <= head {
		return fmt.Errorf("block %v is already finalized (head %v)", blockNumber, head)
	}

	idx.open = &openBlock{
		number: blockNumber,
		logs:   []*types.Log{},
	}
	return nil
}

// Finalize publishes the open block, or an empty block if nothing was appended.
func (idx *Index) Finalize(blockNumber uint64, blockHash common.Hash) error {
	idx.writeMutex.Lock()
	defer idx.writeMutex.Unlock()

	if err := idx.openBlock(blockNumber); err != nil {
		return err
	}

	block := &Block{
		Number: blockNumber,
		Hash:   blockHash,
		Logs:   idx.open.logs,
	}
	for _, log := range block.Logs {
		log.BlockHash = blockHash
	}

	if idx.engine != nil {
		if err := idx.engine.StoreBlock(block); err != nil {
			return fmt.Errorf("failed to store synthetic logs of block %v: %w", blockNumber, err)
		}
	}

	idx.mutex.Lock()
	if !idx.hasHead {
		idx.lowest = blockNumber
	}
	idx.finalized[blockNumber] = block
	for _, log := range block.Logs {
		idx.txLogs[log.TxHash] = append(idx.txLogs[log.TxHash], log)
	}
	idx.head = blockNumber
	idx.hasHead = true
	idx.evict()
	cachedBlocks := len(idx.finalized)
	idx.mutex.Unlock()

	idx.open = nil

	metrics.SyntheticLogsFinalized.Add(float64(len(block.Logs)))
	metrics.LogIndexHead.Set(float64(blockNumber))
	metrics.LogIndexCachedBlocks.Set(float64(cachedBlocks))

	if len(block.Logs) > 0 {
		idx.logger.WithFields(logrus.Fields{
			"block": blockNumber,
			"hash":  blockHash.Hex(),
			"logs":  len(block.Logs),
		}).Debugf("finalized synthetic logs")
	}
	return nil
}

// Discard drops the open block without publishing it.
func (idx *Index) Discard(blockNumber uint64) {
	idx.writeMutex.Lock()
	defer idx.writeMutex.Unlock()
	if idx.open != nil && idx.open.number == blockNumber {
		idx.open = nil
	}
}

// evict drops cached blocks that are older than the in-memory window. Caller holds mutex.
func (idx *Index) evict() {
	if idx.engine == nil || idx.inMemoryBlocks == 0 {
		return
	}
	for idx.lowest+idx.inMemoryBlocks <= idx.head {
		if block := idx.finalized[idx.lowest]; block != nil {
			for _, log := range block.Logs {
				delete(idx.txLogs, log.TxHash)
			}
			delete(idx.finalized, idx.lowest)
		}
		idx.lowest++
	}
}

// Head returns the highest finalized block.
func (idx *Index) Head() (uint64, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.head, idx.hasHead
}

func (idx *Index) checkFinalized(blockNumber uint64) error {
	if !idx.hasHead || blockNumber > idx.head {
		return fmt.Errorf("block %v: %w", blockNumber, ErrBlockNotFinalized)
	}
	return nil
}

// BlockLogs returns the synthetic logs of a finalized block.
func (idx *Index) BlockLogs(blockNumber uint64) ([]*types.Log, error) {
	idx.mutex.RLock()
	if err := idx.checkFinalized(blockNumber); err != nil {
		idx.mutex.RUnlock()
		return nil, err
	}
	if block := idx.finalized[blockNumber]; block != nil {
		logs := copyLogs(block.Logs)
		idx.mutex.RUnlock()
		return logs, nil
	}
	cached := blockNumber >= idx.lowest
	idx.mutex.RUnlock()

	if cached || idx.engine == nil {
		// finalized without ever being appended to, or skipped by the producer
		return []*types.Log{}, nil
	}
	block, err := idx.engine.LoadBlock(blockNumber)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return []*types.Log{}, nil
	}
	return block.Logs, nil
}

// TxLogs returns the synthetic logs a transaction produced.
func (idx *Index) TxLogs(txHash common.Hash) ([]*types.Log, error) {
	idx.mutex.RLock()
	logs, found := idx.txLogs[txHash]
	if found {
		logs = copyLogs(logs)
	}
	idx.mutex.RUnlock()

	if found || idx.engine == nil {
		if logs == nil {
			logs = []*types.Log{}
		}
		return logs, nil
	}
	return idx.engine.LoadTxLogs(txHash)
}

// FilterLogs returns the matching logs of a finalized block range in block and log order.
func (idx *Index) FilterLogs(query *Query) ([]*types.Log, error) {
	if query.FromBlock > query.ToBlock {
		return nil, fmt.Errorf("invalid block range %v > %v", query.FromBlock, query.ToBlock)
	}

	idx.mutex.RLock()
	if err := idx.checkFinalized(query.ToBlock); err != nil {
		idx.mutex.RUnlock()
		return nil, err
	}

	result := []*types.Log{}
	cachedFrom := query.FromBlock
	if cachedFrom < idx.lowest {
		cachedFrom = idx.lowest
	}
	cachedLogs := []*types.Log{}
	for number := cachedFrom; number <= query.ToBlock; number++ {
		block := idx.finalized[number]
		if block == nil {
			continue
		}
		for _, log := range block.Logs {
			if query.Matches(log) {
				cachedLogs = append(cachedLogs, log)
			}
		}
	}
	lowest := idx.lowest
	idx.mutex.RUnlock()

	if query.FromBlock < lowest && idx.engine != nil {
		storedQuery := *query
		storedQuery.ToBlock = lowest - 1
		storedLogs, err := idx.engine.FilterLogs(&storedQuery)
		if err != nil {
			return nil, err
		}
		result = append(result, storedLogs...)
	}
	return append(result, cachedLogs...), nil
}

func copyLogs(logs []*types.Log) []*types.Log {
	res := make([]*types.Log, len(logs))
	copy(res, logs)
	return res
}
