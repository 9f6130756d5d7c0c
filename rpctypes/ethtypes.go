package rpctypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction is the eth_getTransactionByHash result.
type Transaction struct {
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	From             common.Address  `json:"from"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Hash             common.Hash     `json:"hash"`
	Input            hexutil.Bytes   `json:"input"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	To               *common.Address `json:"to"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	Value            *hexutil.Big    `json:"value"`
	Type             hexutil.Uint64  `json:"type"`
	ChainID          *hexutil.Big    `json:"chainId,omitempty"`
	V                *hexutil.Big    `json:"v"`
	R                *hexutil.Big    `json:"r"`
	S                *hexutil.Big    `json:"s"`
}

// Receipt is the eth_getTransactionReceipt result.
type Receipt struct {
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	ContractAddress   *common.Address `json:"contractAddress"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	From              common.Address  `json:"from"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	Logs              []*types.Log    `json:"logs"`
	LogsBloom         types.Bloom     `json:"logsBloom"`
	Status            hexutil.Uint64  `json:"status"`
	To                *common.Address `json:"to"`
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	Type              hexutil.Uint64  `json:"type"`
}

// WithLogs returns a shallow copy of the receipt carrying logs. The bloom is recomputed.
func (r *Receipt) WithLogs(logs []*types.Log) *Receipt {
	receipt := *r
	receipt.Logs = logs
	receipt.LogsBloom = logsBloom(logs)
	return &receipt
}

func logsBloom(logs []*types.Log) types.Bloom {
	var bloom types.Bloom
	for _, log := range logs {
		bloom.Add(log.Address.Bytes())
		for _, topic := range log.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}

func (r *Receipt) Number() uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.ToInt().Uint64()
}

// NewReceipt converts a go-ethereum receipt.
func NewReceipt(receipt *types.Receipt, from common.Address, to *common.Address) *Receipt {
	res := &Receipt{
		BlockHash:         receipt.BlockHash,
		BlockNumber:       (*hexutil.Big)(receipt.BlockNumber),
		CumulativeGasUsed: hexutil.Uint64(receipt.CumulativeGasUsed),
		EffectiveGasPrice: (*hexutil.Big)(receipt.EffectiveGasPrice),
		From:              from,
		GasUsed:           hexutil.Uint64(receipt.GasUsed),
		Logs:              receipt.Logs,
		LogsBloom:         receipt.Bloom,
		Status:            hexutil.Uint64(receipt.Status),
		To:                to,
		TransactionHash:   receipt.TxHash,
		TransactionIndex:  hexutil.Uint64(receipt.TransactionIndex),
		Type:              hexutil.Uint64(receipt.Type),
	}
	if receipt.ContractAddress != (common.Address{}) {
		contract := receipt.ContractAddress
		res.ContractAddress = &contract
	}
	if res.Logs == nil {
		res.Logs = []*types.Log{}
	}
	return res
}

// TransactionArgs are the arguments of eth_call and eth_sendTransaction.
type TransactionArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Nonce *hexutil.Uint64 `json:"nonce"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

// GetData returns input, falling back to data.
func (args *TransactionArgs) GetData() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

func (args *TransactionArgs) GetFrom() common.Address {
	if args.From == nil {
		return common.Address{}
	}
	return *args.From
}

func (args *TransactionArgs) GetValue() *big.Int {
	if args.Value == nil {
		return new(big.Int)
	}
	return args.Value.ToInt()
}
