package gateway

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/rpctypes"
)

// ChainBackend is the execution engine the gateway serves native chain data from.
// Unknown blocks, receipts and transactions are returned as nil without error.
type ChainBackend interface {
	ChainID() uint64
	BlockNumber(ctx context.Context) (uint64, error)
	BlockNumberByHash(ctx context.Context, hash common.Hash) (uint64, bool, error)
	NativeLogs(ctx context.Context, query *logindex.Query) ([]*types.Log, error)
	BlockReceipts(ctx context.Context, number uint64) ([]*rpctypes.Receipt, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*rpctypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*rpctypes.Transaction, error)
	Call(ctx context.Context, args *rpctypes.TransactionArgs) ([]byte, error)
	SendTransaction(ctx context.Context, args *rpctypes.TransactionArgs) (common.Hash, error)
}

// NativeExecutor is implemented by backends that accept native CW721 execute messages.
type NativeExecutor interface {
	ExecuteNative(ctx context.Context, sender string, contract string, msg []byte) (common.Hash, error)
}
