package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/registry"
	"github.com/ethpandaops/pointerbridge/rpctypes"
)

type pointerResult struct {
	Pointer common.Address `json:"pointer"`
	Version hexutil.Uint64 `json:"version"`
	Exists  bool           `json:"exists"`
}

type pointeeResult struct {
	Pointee string         `json:"pointee"`
	Version hexutil.Uint64 `json:"version"`
	Exists  bool           `json:"exists"`
}

func (g *Gateway) netVersion(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	return strconv.FormatUint(g.backend.ChainID(), 10), nil
}

func (g *Gateway) blockNumber(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return hexutil.Uint64(head), nil
}

func (g *Gateway) chainId(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	return hexutil.Uint64(g.backend.ChainID()), nil
}

func (g *Gateway) call(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	args, err := positionalParams(params, 1, 3)
	if err != nil {
		return nil, err
	}
	txArgs := &rpctypes.TransactionArgs{}
	if err := decodeParam(args[0], 0, txArgs); err != nil {
		return nil, err
	}
	if string(args[1]) != "null" {
		blockRef := rpc.BlockNumberOrHash{}
		if err := decodeParam(args[1], 1, &blockRef); err != nil {
			return nil, err
		}
		if number, ok := blockRef.Number(); ok && number == rpc.PendingBlockNumber {
			return nil, invalidParamsf("pending block is not supported")
		}
	}

	output, err := g.backend.Call(ctx, txArgs)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(output), nil
}

func (g *Gateway) sendTransaction(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	args, err := positionalParams(params, 1, 1)
	if err != nil {
		return nil, err
	}
	txArgs := &rpctypes.TransactionArgs{}
	if err := decodeParam(args[0], 0, txArgs); err != nil {
		return nil, err
	}
	return g.backend.SendTransaction(ctx, txArgs)
}

func (g *Gateway) getLogs(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	args, err := positionalParams(params, 1, 1)
	if err != nil {
		return nil, err
	}
	query, err := g.parseFilter(ctx, args[0], call.extended)
	if err != nil {
		return nil, err
	}

	native := []*types.Log{}
	if query.FromBlock <= query.ToBlock {
		if native, err = g.backend.NativeLogs(ctx, query); err != nil {
			return nil, err
		}
	}
	synthetic, err := g.syntheticLogs(query)
	if err != nil {
		return nil, err
	}

	if !g.includeSynthetic(call, false) {
		g.reportHidden(call, synthetic)
		return native, nil
	}
	return g.newLogSequencer(ctx).merge(native, synthetic)
}

func (g *Gateway) getSyntheticLogs(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	args, err := positionalParams(params, 1, 1)
	if err != nil {
		return nil, err
	}
	query, err := g.parseFilter(ctx, args[0], true)
	if err != nil {
		return nil, err
	}
	return g.syntheticLogs(query)
}

func (g *Gateway) getBlockReceipts(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	args, err := positionalParams(params, 1, 1)
	if err != nil {
		return nil, err
	}
	blockRef := rpc.BlockNumberOrHash{}
	if err := decodeParam(args[0], 0, &blockRef); err != nil {
		return nil, err
	}

	var number uint64
	cacheKey := ""
	if hash, ok := blockRef.Hash(); ok {
		cacheKey = call.request.Method + ":" + hash.Hex()
		if raw, ok := g.cache.get(cacheKey); ok {
			return raw, nil
		}
		var found bool
		if number, found, err = g.backend.BlockNumberByHash(ctx, hash); err != nil {
			return nil, err
		} else if !found {
			return nil, nil
		}
	} else if tag, ok := blockRef.Number(); ok {
		head, err := g.backend.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		if number, err = resolveBlock(&tag, head); err != nil {
			return nil, invalidParamsf("%v", err)
		}
	} else {
		return nil, invalidParamsf("invalid block reference")
	}

	receipts, err := g.backend.BlockReceipts(ctx, number)
	if err != nil || receipts == nil {
		return nil, err
	}

	synthetic, err := g.index.BlockLogs(number)
	if errors.Is(err, logindex.ErrBlockNotFinalized) {
		synthetic = []*types.Log{}
	} else if err != nil {
		return nil, err
	}
	if g.includeSynthetic(call, true) {
		if receipts, err = g.newLogSequencer(ctx).attachSynthetic(receipts, synthetic); err != nil {
			return nil, err
		}
	} else {
		g.reportHidden(call, synthetic)
	}

	if cacheKey != "" {
		g.cache.set(cacheKey, receipts)
	}
	return receipts, nil
}

func (g *Gateway) getTransactionReceipt(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	args, err := positionalParams(params, 1, 1)
	if err != nil {
		return nil, err
	}
	var hash common.Hash
	if err := decodeParam(args[0], 0, &hash); err != nil {
		return nil, err
	}

	cacheKey := call.request.Method + ":" + hash.Hex()
	if raw, ok := g.cache.get(cacheKey); ok {
		return raw, nil
	}

	receipt, err := g.backend.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil {
		return nil, err
	}
	synthetic, err := g.index.TxLogs(hash)
	if err != nil {
		return nil, err
	}
	if g.includeSynthetic(call, true) {
		receipts, err := g.newLogSequencer(ctx).attachSynthetic([]*rpctypes.Receipt{receipt}, synthetic)
		if err != nil {
			return nil, err
		}
		receipt = receipts[0]
	} else {
		g.reportHidden(call, synthetic)
	}

	g.cache.set(cacheKey, receipt)
	return receipt, nil
}

func (g *Gateway) getTransactionByHash(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	args, err := positionalParams(params, 1, 1)
	if err != nil {
		return nil, err
	}
	var hash common.Hash
	if err := decodeParam(args[0], 0, &hash); err != nil {
		return nil, err
	}
	tx, err := g.backend.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return nil, err
	}
	return tx, nil
}

func (g *Gateway) registerPointer(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	contract, err := g.stringParam(params)
	if err != nil {
		return nil, err
	}
	link, err := g.registry.RegisterLink(ctx, contract)
	if err != nil {
		return nil, err
	}
	return &pointerResult{
		Pointer: link.Pointer,
		Version: hexutil.Uint64(link.Version),
		Exists:  true,
	}, nil
}

func (g *Gateway) getPointer(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	contract, err := g.stringParam(params)
	if err != nil {
		return nil, err
	}
	link, err := g.registry.Lookup(ctx, contract)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return &pointerResult{}, nil
	}
	return &pointerResult{
		Pointer: link.Pointer,
		Version: hexutil.Uint64(link.Version),
		Exists:  true,
	}, nil
}

func (g *Gateway) getPointee(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	input, err := g.stringParam(params)
	if err != nil {
		return nil, err
	}
	address, err := parseHexAddress(input)
	if err != nil {
		return nil, invalidParamsf("invalid pointer address %q", input)
	}
	link, err := g.registry.LookupPointee(ctx, address)
	if err != nil {
		return nil, err
	}
	return pointeeFromLink(link), nil
}

func pointeeFromLink(link *registry.PointerLink) *pointeeResult {
	if link == nil {
		return &pointeeResult{}
	}
	return &pointeeResult{
		Pointee: link.Pointee,
		Version: hexutil.Uint64(link.Version),
		Exists:  true,
	}
}

func (g *Gateway) getEVMAddress(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	nativeId, err := g.stringParam(params)
	if err != nil {
		return nil, err
	}
	return g.translator.ToEVM(nativeId)
}

func (g *Gateway) getNativeAddress(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	input, err := g.stringParam(params)
	if err != nil {
		return nil, err
	}
	address, err := parseHexAddress(input)
	if err != nil {
		return nil, invalidParamsf("invalid address %q", input)
	}
	return g.translator.ToNative(address), nil
}

func (g *Gateway) executeNative(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error) {
	executor, ok := g.backend.(NativeExecutor)
	if !ok {
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: "native execution is not available on this backend"}
	}
	args, err := positionalParams(params, 3, 3)
	if err != nil {
		return nil, err
	}
	var sender, contract string
	if err := decodeParam(args[0], 0, &sender); err != nil {
		return nil, err
	}
	if err := decodeParam(args[1], 1, &contract); err != nil {
		return nil, err
	}
	if len(args[2]) == 0 || args[2][0] != '{' {
		return nil, invalidParamsf("invalid argument 2: execute message must be an object")
	}
	return executor.ExecuteNative(ctx, sender, contract, args[2])
}

func (g *Gateway) stringParam(params json.RawMessage) (string, error) {
	args, err := positionalParams(params, 1, 1)
	if err != nil {
		return "", err
	}
	value := ""
	if err := decodeParam(args[0], 0, &value); err != nil {
		return "", err
	}
	return value, nil
}
