// Package chain is an in-process devnet that sequences pointer transactions into blocks.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/pointer"
	"github.com/ethpandaops/pointerbridge/rpctypes"
	"github.com/ethpandaops/pointerbridge/utils"
)

var ErrContractCreation = errors.New("contract creation is not supported")

type Config struct {
	ChainID uint64
	// BlockInterval seals blocks periodically. Zero seals one block per transaction.
	BlockInterval time.Duration
	GasPerCall    uint64
}

type Engine struct {
	logger     logrus.FieldLogger
	config     Config
	router     *pointer.Router
	client     *native.Client
	translator *addrmap.Translator
	index      *logindex.Index

	mutex       sync.RWMutex
	blocks      map[uint64]*Block
	blockHashes map[common.Hash]uint64
	txs         map[common.Hash]*Tx
	pending     []*Tx
	head        *Block
	nonces      map[common.Address]uint64

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewEngine creates the devnet on top of the log index. The chain continues after the index head,
// so a persistent index never sees block numbers twice.
func NewEngine(logger logrus.FieldLogger, config Config, router *pointer.Router, client *native.Client, translator *addrmap.Translator, index *logindex.Index) (*Engine, error) {
	if config.GasPerCall == 0 {
		config.GasPerCall = 50000
	}
	engine := &Engine{
		logger:      logger,
		config:      config,
		router:      router,
		client:      client,
		translator:  translator,
		index:       index,
		blocks:      map[uint64]*Block{},
		blockHashes: map[common.Hash]uint64{},
		txs:         map[common.Hash]*Tx{},
		pending:     []*Tx{},
		nonces:      map[common.Address]uint64{},
		stopChan:    make(chan struct{}),
	}

	genesis := &Block{
		Transactions: []*Tx{},
		Time:         uint64(time.Now().Unix()),
	}
	if head, ok := index.Head(); ok {
		genesis.Number = head
	}
	genesis.Hash = blockHash(common.Hash{}, genesis.Number, nil)
	if _, ok := index.Head(); !ok {
		if err := index.Finalize(genesis.Number, genesis.Hash); err != nil {
			return nil, fmt.Errorf("failed finalizing genesis block: %w", err)
		}
	}
	engine.addBlock(genesis)

	logger.WithFields(logrus.Fields{
		"chainId": config.ChainID,
		"genesis": genesis.Number,
	}).Infof("devnet chain initialized")
	return engine, nil
}

// Start seals blocks at the configured interval until Stop is called.
func (e *Engine) Start() {
	if e.config.BlockInterval == 0 {
		return
	}
	go func() {
		defer utils.HandleSubroutinePanic("chain.sealer")
		ticker := time.NewTicker(e.config.BlockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopChan:
				return
			case <-ticker.C:
				if _, err := e.Seal(); err != nil {
					e.logger.WithError(err).Errorf("failed sealing block")
				}
			}
		}
	}()
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
}

func (e *Engine) ChainID() uint64 {
	return e.config.ChainID
}

func (e *Engine) BlockNumber(ctx context.Context) (uint64, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.head.Number, nil
}

func (e *Engine) BlockNumberByHash(ctx context.Context, hash common.Hash) (uint64, bool, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	number, ok := e.blockHashes[hash]
	return number, ok, nil
}

func (e *Engine) Block(number uint64) *Block {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.blocks[number]
}

// NativeLogs returns the logs the chain emitted itself. Pointer calls emit none, their logs are synthetic.
func (e *Engine) NativeLogs(ctx context.Context, query *logindex.Query) ([]*types.Log, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	logs := []*types.Log{}
	numbers := make([]uint64, 0, len(e.blocks))
	for number := range e.blocks {
		if number >= query.FromBlock && number <= query.ToBlock {
			numbers = append(numbers, number)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for _, number := range numbers {
		for _, tx := range e.blocks[number].Transactions {
			for _, log := range tx.Receipt.Logs {
				if query.Matches(log) {
					logs = append(logs, log)
				}
			}
		}
	}
	return logs, nil
}

// BlockReceipts returns nil for unknown blocks.
func (e *Engine) BlockReceipts(ctx context.Context, number uint64) ([]*rpctypes.Receipt, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	block := e.blocks[number]
	if block == nil {
		return nil, nil
	}
	receipts := make([]*rpctypes.Receipt, len(block.Transactions))
	for i, tx := range block.Transactions {
		receipts[i] = tx.Receipt
	}
	return receipts, nil
}

// TransactionReceipt returns nil for unknown or not yet sealed transactions.
func (e *Engine) TransactionReceipt(ctx context.Context, hash common.Hash) (*rpctypes.Receipt, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	tx := e.txs[hash]
	if tx == nil || tx.Transaction.BlockHash == nil {
		return nil, nil
	}
	return tx.Receipt, nil
}

func (e *Engine) TransactionByHash(ctx context.Context, hash common.Hash) (*rpctypes.Transaction, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	tx := e.txs[hash]
	if tx == nil {
		return nil, nil
	}
	return tx.Transaction, nil
}

// Call runs a read-only pointer call against the latest state.
func (e *Engine) Call(ctx context.Context, args *rpctypes.TransactionArgs) ([]byte, error) {
	if args.To == nil {
		return nil, ErrContractCreation
	}
	env := &pointer.Env{
		Caller:   args.GetFrom(),
		ReadOnly: true,
	}
	return e.router.Call(ctx, env, *args.To, args.GetData())
}

// SendTransaction executes a pointer call as a transaction. Reverted calls are included with status 0.
func (e *Engine) SendTransaction(ctx context.Context, args *rpctypes.TransactionArgs) (common.Hash, error) {
	if args.To == nil {
		return common.Hash{}, ErrContractCreation
	}
	if args.From == nil {
		return common.Hash{}, fmt.Errorf("missing sender")
	}
	if args.GetValue().Sign() != 0 {
		return common.Hash{}, fmt.Errorf("pointer calls do not accept value")
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	from, to, input := *args.From, *args.To, args.GetData()
	nonce := e.nonces[from]
	e.nonces[from]++
	hash := evmTxHash(e.config.ChainID, from, to, nonce, input)

	txContext := NewTxContext()
	_, execErr := e.router.Call(ctx, &pointer.Env{Caller: from, Logs: txContext}, to, input)

	return hash, e.includeLocked(hash, from, &to, nonce, input, txContext, execErr)
}

// ExecuteNative runs a native CW721 execute message. Messages for contracts with a pointer
// run through the pointer so that their synthetic logs are recorded.
func (e *Engine) ExecuteNative(ctx context.Context, sender string, contract string, msg []byte) (common.Hash, error) {
	from, err := e.translator.ToEVM(sender)
	if err != nil {
		return common.Hash{}, err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	nonce := e.nonces[from]
	e.nonces[from]++
	hash := nativeTxHash(e.config.ChainID, sender, contract, nonce, msg)

	txContext := NewTxContext()
	var to *common.Address
	ptr, execErr := e.router.ResolveContract(ctx, contract)
	if execErr == nil {
		if ptr != nil {
			address := ptr.Address()
			to = &address
		}
		execErr = e.executeNative(ctx, ptr, &pointer.Env{Caller: from, Logs: txContext}, sender, contract, msg)
	}

	return hash, e.includeLocked(hash, from, to, nonce, msg, txContext, execErr)
}

// includeLocked records the executed transaction in the open block and seals it in automine mode.
func (e *Engine) includeLocked(hash common.Hash, from common.Address, to *common.Address, nonce uint64, input []byte, txContext *TxContext, execErr error) error {
	number := e.head.Number + 1
	txIndex := uint64(len(e.pending))

	status := types.ReceiptStatusSuccessful
	revertReason := ""
	logs := txContext.Logs()
	if execErr != nil {
		status = types.ReceiptStatusFailed
		revertReason = execErr.Error()
		logs = nil
	}

	if len(logs) > 0 {
		for _, log := range logs {
			log.TxHash = hash
			log.TxIndex = uint(txIndex)
		}
		if err := e.index.Append(number, logs); err != nil {
			// the native state is already committed, only the logs are lost
			e.logger.WithError(err).Errorf("failed appending synthetic logs of tx %v", hash.Hex())
		}
	}

	txIndexHex := hexutil.Uint64(txIndex)
	tx := &Tx{
		Transaction: &rpctypes.Transaction{
			From:             from,
			Gas:              hexutil.Uint64(e.config.GasPerCall),
			GasPrice:         (*hexutil.Big)(new(big.Int)),
			Hash:             hash,
			Input:            input,
			Nonce:            hexutil.Uint64(nonce),
			To:               to,
			TransactionIndex: &txIndexHex,
			Value:            (*hexutil.Big)(new(big.Int)),
			ChainID:          (*hexutil.Big)(new(big.Int).SetUint64(e.config.ChainID)),
			V:                (*hexutil.Big)(new(big.Int)),
			R:                (*hexutil.Big)(new(big.Int)),
			S:                (*hexutil.Big)(new(big.Int)),
		},
		Receipt: &rpctypes.Receipt{
			EffectiveGasPrice: (*hexutil.Big)(new(big.Int)),
			From:              from,
			GasUsed:           hexutil.Uint64(e.config.GasPerCall),
			CumulativeGasUsed: hexutil.Uint64(e.config.GasPerCall * (txIndex + 1)),
			Logs:              []*types.Log{},
			Status:            hexutil.Uint64(status),
			To:                to,
			TransactionHash:   hash,
			TransactionIndex:  hexutil.Uint64(txIndex),
		},
		RevertReason: revertReason,
	}
	e.pending = append(e.pending, tx)
	e.txs[hash] = tx

	e.logger.WithFields(logrus.Fields{
		"tx":     hash.Hex(),
		"status": status,
		"logs":   len(logs),
	}).Debugf("included transaction")
	if execErr != nil {
		e.logger.WithError(execErr).Debugf("transaction %v reverted", hash.Hex())
	}

	if e.config.BlockInterval == 0 {
		if _, err := e.sealLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Seal closes the open block and finalizes its synthetic logs.
func (e *Engine) Seal() (*Block, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.sealLocked()
}

func (e *Engine) sealLocked() (*Block, error) {
	block := &Block{
		Number:       e.head.Number + 1,
		ParentHash:   e.head.Hash,
		Time:         uint64(time.Now().Unix()),
		Transactions: e.pending,
	}
	block.Hash = blockHash(block.ParentHash, block.Number, block.Transactions)

	if err := e.index.Finalize(block.Number, block.Hash); err != nil {
		return nil, fmt.Errorf("failed finalizing block %v: %w", block.Number, err)
	}

	// pending txs may already be held by readers, sealed copies replace them
	number := (*hexutil.Big)(new(big.Int).SetUint64(block.Number))
	sealed := make([]*Tx, len(block.Transactions))
	for i, tx := range block.Transactions {
		hash := block.Hash
		transaction := *tx.Transaction
		transaction.BlockHash = &hash
		transaction.BlockNumber = number

		receipt := *tx.Receipt
		receipt.BlockHash = block.Hash
		receipt.BlockNumber = number
		receipt.Logs = make([]*types.Log, len(tx.Receipt.Logs))
		for j, log := range tx.Receipt.Logs {
			logCopy := *log
			logCopy.BlockHash = block.Hash
			logCopy.BlockNumber = block.Number
			receipt.Logs[j] = &logCopy
		}

		sealed[i] = &Tx{
			Transaction:  &transaction,
			Receipt:      &receipt,
			RevertReason: tx.RevertReason,
		}
		e.txs[tx.Transaction.Hash] = sealed[i]
	}
	block.Transactions = sealed

	e.addBlock(block)
	e.pending = []*Tx{}

	e.logger.WithFields(logrus.Fields{
		"number": block.Number,
		"hash":   block.Hash.Hex(),
		"txs":    len(block.Transactions),
	}).Debugf("sealed block")
	return block, nil
}

func (e *Engine) addBlock(block *Block) {
	e.blocks[block.Number] = block
	e.blockHashes[block.Hash] = block.Number
	e.head = block
}
