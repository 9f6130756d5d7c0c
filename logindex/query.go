package logindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Query selects logs of an inclusive block range.
// Topics are positional; an empty slot matches anything, a filled slot matches any of its values.
type Query struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []common.Address
	Topics    [][]common.Hash
}

func (q *Query) Matches(log *types.Log) bool {
	if log.BlockNumber < q.FromBlock || log.BlockNumber > q.ToBlock {
		return false
	}
	if len(q.Addresses) > 0 && !containsAddress(q.Addresses, log.Address) {
		return false
	}
	if len(q.Topics) > len(log.Topics) {
		return false
	}
	for i, sub := range q.Topics {
		if len(sub) == 0 {
			continue
		}
		if !containsHash(sub, log.Topics[i]) {
			return false
		}
	}
	return true
}

func containsAddress(addresses []common.Address, address common.Address) bool {
	for _, candidate := range addresses {
		if candidate == address {
			return true
		}
	}
	return false
}

func containsHash(hashes []common.Hash, hash common.Hash) bool {
	for _, candidate := range hashes {
		if candidate == hash {
			return true
		}
	}
	return false
}
