package gateway

import (
	"context"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/metrics"
	"github.com/ethpandaops/pointerbridge/rpctypes"
)

// syntheticLogs returns the synthetic logs of the finalized part of the query range.
func (g *Gateway) syntheticLogs(query *logindex.Query) ([]*types.Log, error) {
	head, ok := g.index.Head()
	if !ok {
		return []*types.Log{}, nil
	}
	clamped := *query
	if clamped.ToBlock > head {
		clamped.ToBlock = head
	}
	if clamped.FromBlock > clamped.ToBlock {
		return []*types.Log{}, nil
	}
	return g.index.FilterLogs(&clamped)
}

// includeSynthetic tells whether a result of the given kind carries synthetic logs.
func (g *Gateway) includeSynthetic(call *methodCall, receipts bool) bool {
	if call.extended {
		return true
	}
	switch g.config.SyntheticInStandard {
	case SyntheticAll:
		return true
	case SyntheticReceipts:
		return receipts
	}
	return false
}

func (g *Gateway) reportHidden(call *methodCall, logs []*types.Log) {
	if len(logs) == 0 {
		return
	}
	metrics.GatewayHiddenSyntheticLogs.WithLabelValues(call.method).Add(float64(len(logs)))
	g.logger.WithFields(map[string]interface{}{
		"method": call.request.Method,
		"hidden": len(logs),
		"policy": g.config.SyntheticInStandard,
	}).Debug("synthetic logs hidden from standard response")
}

type mergeEntry struct {
	log       *types.Log
	synthetic bool
}

func (e *mergeEntry) key() logKey {
	return logKey{txHash: e.log.TxHash, index: e.log.Index, synthetic: e.synthetic}
}

// logKey identifies a log by its position in its own source, native or synthetic.
type logKey struct {
	txHash    common.Hash
	index     uint
	synthetic bool
}

// mergeEntries orders native and synthetic logs by block, transaction and log position.
// Native logs of a transaction come before its synthetic logs.
func mergeEntries(native []*types.Log, synthetic []*types.Log) []mergeEntry {
	entries := make([]mergeEntry, 0, len(native)+len(synthetic))
	for _, log := range native {
		entries = append(entries, mergeEntry{log: log})
	}
	for _, log := range synthetic {
		entries = append(entries, mergeEntry{log: log, synthetic: true})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.log.BlockNumber != b.log.BlockNumber {
			return a.log.BlockNumber < b.log.BlockNumber
		}
		if a.log.TxIndex != b.log.TxIndex {
			return a.log.TxIndex < b.log.TxIndex
		}
		if a.synthetic != b.synthetic {
			return !a.synthetic
		}
		return a.log.Index < b.log.Index
	})
	return entries
}

// logSequencer merges logs and renumbers them by their position in the merged block,
// so logIndex stays unique within a block that carries native and synthetic logs.
type logSequencer struct {
	g         *Gateway
	ctx       context.Context
	positions map[uint64]map[logKey]uint
}

func (g *Gateway) newLogSequencer(ctx context.Context) *logSequencer {
	return &logSequencer{
		g:         g,
		ctx:       ctx,
		positions: map[uint64]map[logKey]uint{},
	}
}

func (s *logSequencer) merge(native []*types.Log, synthetic []*types.Log) ([]*types.Log, error) {
	entries := mergeEntries(native, synthetic)
	logs := make([]*types.Log, len(entries))
	for i, entry := range entries {
		logs[i] = entry.log

		positions, err := s.blockPositions(entry.log.BlockNumber)
		if err != nil {
			return nil, err
		}
		if position, ok := positions[entry.key()]; ok && position != entry.log.Index {
			// index logs are shared, renumber a copy
			logCopy := *entry.log
			logCopy.Index = position
			logs[i] = &logCopy
		}
	}
	return logs, nil
}

// blockPositions returns nil when the block has no native or no synthetic logs, positions are unchanged then.
func (s *logSequencer) blockPositions(number uint64) (map[logKey]uint, error) {
	if positions, ok := s.positions[number]; ok {
		return positions, nil
	}

	var positions map[logKey]uint
	synthetic, err := s.g.index.BlockLogs(number)
	if err != nil && !errors.Is(err, logindex.ErrBlockNotFinalized) {
		return nil, err
	}
	if len(synthetic) > 0 {
		receipts, err := s.g.backend.BlockReceipts(s.ctx, number)
		if err != nil {
			return nil, err
		}
		native := []*types.Log{}
		for _, receipt := range receipts {
			native = append(native, receipt.Logs...)
		}
		if len(native) > 0 {
			positions = map[logKey]uint{}
			for i, entry := range mergeEntries(native, synthetic) {
				positions[entry.key()] = uint(i)
			}
		}
	}

	s.positions[number] = positions
	return positions, nil
}

// attachSynthetic returns copies of the receipts carrying their transaction's synthetic logs.
func (s *logSequencer) attachSynthetic(receipts []*rpctypes.Receipt, synthetic []*types.Log) ([]*rpctypes.Receipt, error) {
	byTx := map[common.Hash][]*types.Log{}
	for _, log := range synthetic {
		byTx[log.TxHash] = append(byTx[log.TxHash], log)
	}

	result := make([]*rpctypes.Receipt, len(receipts))
	for i, receipt := range receipts {
		logs, err := s.merge(receipt.Logs, byTx[receipt.TransactionHash])
		if err != nil {
			return nil, err
		}
		result[i] = receipt.WithLogs(logs)
	}
	return result, nil
}
