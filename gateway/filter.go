package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ethpandaops/pointerbridge/logindex"
)

const maxTopicSlots = 4

// FilterArgs is the eth_getLogs filter object.
type FilterArgs struct {
	FromBlock *rpc.BlockNumber  `json:"fromBlock"`
	ToBlock   *rpc.BlockNumber  `json:"toBlock"`
	BlockHash *common.Hash      `json:"blockHash"`
	Address   json.RawMessage   `json:"address"`
	Topics    []json.RawMessage `json:"topics"`
}

// parseFilter decodes and validates a filter against the current head.
// Extended namespace filters may name accounts by native id.
func (g *Gateway) parseFilter(ctx context.Context, raw json.RawMessage, extended bool) (*logindex.Query, error) {
	args := &FilterArgs{}
	if err := json.Unmarshal(raw, args); err != nil {
		return nil, filterErrorf("%v", err)
	}

	query := &logindex.Query{}
	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	if args.BlockHash != nil {
		if args.FromBlock != nil || args.ToBlock != nil {
			return nil, filterErrorf("blockHash cannot be combined with fromBlock/toBlock")
		}
		number, ok, err := g.backend.BlockNumberByHash(ctx, *args.BlockHash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &RPCError{Code: ErrCodeServer, Message: "unknown block"}
		}
		query.FromBlock, query.ToBlock = number, number
	} else {
		if query.FromBlock, err = resolveBlock(args.FromBlock, head); err != nil {
			return nil, err
		}
		if query.ToBlock, err = resolveBlock(args.ToBlock, head); err != nil {
			return nil, err
		}
		if query.FromBlock > query.ToBlock {
			return nil, filterErrorf("fromBlock %v is above toBlock %v", query.FromBlock, query.ToBlock)
		}
		if g.config.MaxBlockRange > 0 && query.ToBlock-query.FromBlock >= g.config.MaxBlockRange {
			return nil, filterErrorf("block range too large (max %v blocks)", g.config.MaxBlockRange)
		}
		// blocks above the head have no logs yet; from > to yields an empty result
		if query.ToBlock > head {
			query.ToBlock = head
		}
	}

	if query.Addresses, err = g.parseAddresses(args.Address, extended); err != nil {
		return nil, err
	}
	if query.Topics, err = parseTopics(args.Topics); err != nil {
		return nil, err
	}
	return query, nil
}

// resolveBlock turns a block tag into a number. Missing tags mean latest.
func resolveBlock(number *rpc.BlockNumber, head uint64) (uint64, error) {
	if number == nil {
		return head, nil
	}
	switch *number {
	case rpc.PendingBlockNumber:
		return 0, filterErrorf("pending block is not supported")
	case rpc.LatestBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		return head, nil
	case rpc.EarliestBlockNumber:
		return 0, nil
	}
	if *number < 0 {
		return 0, filterErrorf("unsupported block tag %v", number.String())
	}
	return uint64(*number), nil
}

func (g *Gateway) parseAddresses(raw json.RawMessage, extended bool) ([]common.Address, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	inputs := []string{}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		if err := json.Unmarshal(raw, &inputs); err != nil {
			return nil, filterErrorf("malformed address list")
		}
	} else {
		input := ""
		if err := json.Unmarshal(raw, &input); err != nil {
			return nil, filterErrorf("malformed address")
		}
		inputs = append(inputs, input)
	}

	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		var address common.Address
		var err error
		if extended {
			address, err = g.translator.ParseAny(input)
		} else {
			address, err = parseHexAddress(input)
		}
		if err != nil {
			return nil, filterErrorf("malformed address %q", input)
		}
		addresses = append(addresses, address)
	}
	return addresses, nil
}

func parseHexAddress(input string) (common.Address, error) {
	bytes, err := hexutil.Decode(input)
	if err != nil || len(bytes) != common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid address")
	}
	return common.BytesToAddress(bytes), nil
}

func parseTopics(raw []json.RawMessage) ([][]common.Hash, error) {
	if len(raw) > maxTopicSlots {
		return nil, filterErrorf("too many topic slots (%v > %v)", len(raw), maxTopicSlots)
	}

	topics := make([][]common.Hash, len(raw))
	for i, slot := range raw {
		if len(slot) == 0 || string(slot) == "null" {
			continue
		}

		inputs := []*string{}
		if strings.HasPrefix(strings.TrimSpace(string(slot)), "[") {
			if err := json.Unmarshal(slot, &inputs); err != nil {
				return nil, filterErrorf("malformed topic slot %v", i)
			}
		} else {
			input := ""
			if err := json.Unmarshal(slot, &input); err != nil {
				return nil, filterErrorf("malformed topic slot %v", i)
			}
			inputs = append(inputs, &input)
		}

		for _, input := range inputs {
			if input == nil {
				// a null alternative matches anything
				topics[i] = nil
				break
			}
			bytes, err := hexutil.Decode(*input)
			if err != nil || len(bytes) != common.HashLength {
				return nil, filterErrorf("malformed topic %q", *input)
			}
			topics[i] = append(topics[i], common.BytesToHash(bytes))
		}
	}
	return topics, nil
}
