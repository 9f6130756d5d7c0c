package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/kvdb"
	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/native/wasmsim"
	"github.com/ethpandaops/pointerbridge/pointer"
	"github.com/ethpandaops/pointerbridge/registry"
	"github.com/ethpandaops/pointerbridge/rpctypes"
	"github.com/ethpandaops/pointerbridge/synth"
	bridgetypes "github.com/ethpandaops/pointerbridge/types"
)

var (
	translator = addrmap.NewTranslator("wasm")
	minterAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	contractId = translator.ToNative(common.HexToAddress("0x000000000000000000000000000000000000c721"))
)

type testChain struct {
	engine  *Engine
	index   *logindex.Index
	pointer common.Address
}

func newTestChain(t *testing.T, config Config, kv *kvdb.Engine) *testChain {
	ctx := context.Background()
	if kv == nil {
		var err error
		kv, err = kvdb.NewEngine(bridgetypes.PebbleConfig{})
		require.NoError(t, err)
		t.Cleanup(func() { kv.Close() })
	}

	host := wasmsim.NewHost(kv)
	if !kv.Has(kvdb.MakeKey(kvdb.KeyNamespaceNativeContract, []byte(contractId))) {
		require.NoError(t, host.Instantiate(ctx, contractId, "Test", "TEST", translator.ToNative(minterAddr)))
	}

	logger, _ := test.NewNullLogger()
	client := native.NewClient(host)
	reg := registry.NewRegistry(logger, registry.NewMemoryStore(), translator, client)
	pointerAddr, err := reg.Register(ctx, contractId)
	require.NoError(t, err)

	index, err := logindex.NewIndex(logger, logindex.NewPebbleEngine(kv), 16)
	require.NoError(t, err)

	engine, err := NewEngine(logger, config, pointer.NewRouter(logger, reg, client, translator), client, translator, index)
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	return &testChain{engine: engine, index: index, pointer: pointerAddr}
}

func (c *testChain) mint(t *testing.T, id string, owner common.Address) common.Hash {
	msg, err := json.Marshal(&native.ExecuteMsg{Mint: &native.MintMsg{TokenId: id, Owner: translator.ToNative(owner), TokenUri: "token uri " + id}})
	require.NoError(t, err)
	hash, err := c.engine.ExecuteNative(context.Background(), translator.ToNative(minterAddr), contractId, msg)
	require.NoError(t, err)
	return hash
}

func (c *testChain) send(t *testing.T, from common.Address, method string, args ...interface{}) common.Hash {
	input, err := pointer.ParsedABI.Pack(method, args...)
	require.NoError(t, err)
	data := hexutil.Bytes(input)
	hash, err := c.engine.SendTransaction(context.Background(), &rpctypes.TransactionArgs{From: &from, To: &c.pointer, Data: &data})
	require.NoError(t, err)
	return hash
}

func TestAutomine(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t, Config{ChainID: 1337}, nil)

	head, err := chain.engine.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head)

	mintHash := chain.mint(t, "1", alice)
	transferHash := chain.send(t, alice, "transferFrom", alice, bob, big.NewInt(1))

	head, err = chain.engine.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), head)

	receipt, err := chain.engine.TransactionReceipt(ctx, transferHash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, hexutil.Uint64(types.ReceiptStatusSuccessful), receipt.Status)
	assert.Equal(t, uint64(2), receipt.Number())
	assert.Empty(t, receipt.Logs, "pointer calls emit no native logs")

	tx, err := chain.engine.TransactionByHash(ctx, mintHash)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, minterAddr, tx.From)
	assert.Equal(t, &chain.pointer, tx.To)

	synthetic, err := chain.index.TxLogs(transferHash)
	require.NoError(t, err)
	require.Len(t, synthetic, 1)
	assert.Equal(t, synth.TransferTopic, synthetic[0].Topics[0])
	assert.Equal(t, receipt.BlockHash, synthetic[0].BlockHash)
	assert.Equal(t, uint64(2), synthetic[0].BlockNumber)

	number, ok, err := chain.engine.BlockNumberByHash(ctx, receipt.BlockHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), number)
}

func TestRevertedTransaction(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t, Config{ChainID: 1337}, nil)
	chain.mint(t, "1", alice)

	hash := chain.send(t, bob, "transferFrom", alice, bob, big.NewInt(1))
	receipt, err := chain.engine.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, hexutil.Uint64(types.ReceiptStatusFailed), receipt.Status)

	logs, err := chain.index.TxLogs(hash)
	require.NoError(t, err)
	assert.Empty(t, logs)

	input, err := pointer.ParsedABI.Pack("ownerOf", big.NewInt(1))
	require.NoError(t, err)
	data := hexutil.Bytes(input)
	output, err := chain.engine.Call(ctx, &rpctypes.TransactionArgs{To: &chain.pointer, Data: &data})
	require.NoError(t, err)
	values, err := pointer.ParsedABI.Unpack("ownerOf", output)
	require.NoError(t, err)
	assert.Equal(t, alice, values[0].(common.Address))
}

func TestIntervalSealing(t *testing.T) {
	ctx := context.Background()
	// the interval is never started, blocks are sealed manually
	chain := newTestChain(t, Config{ChainID: 1337, BlockInterval: 1 << 40}, nil)

	first := chain.mint(t, "1", alice)
	second := chain.mint(t, "2", bob)

	receipt, err := chain.engine.TransactionReceipt(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, receipt, "no receipt before sealing")
	_, err = chain.index.FilterLogs(&logindex.Query{FromBlock: 1, ToBlock: 1})
	assert.ErrorIs(t, err, logindex.ErrBlockNotFinalized)

	block, err := chain.engine.Seal()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block.Number)
	require.Len(t, block.Transactions, 2)

	logs, err := chain.index.BlockLogs(1)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, first, logs[0].TxHash)
	assert.Equal(t, uint(0), logs[0].TxIndex)
	assert.Equal(t, second, logs[1].TxHash)
	assert.Equal(t, uint(1), logs[1].TxIndex)
	assert.Equal(t, uint(1), logs[1].Index)

	empty, err := chain.engine.Seal()
	require.NoError(t, err)
	assert.Empty(t, empty.Transactions)
	assert.Equal(t, block.Hash, empty.ParentHash)
}

func TestSealLeavesPublishedTransactionsUntouched(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t, Config{ChainID: 1337, BlockInterval: 1 << 40}, nil)
	hash := chain.mint(t, "1", alice)

	pending, err := chain.engine.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, pending)

	done := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-done:
				return
			default:
			}
			tx, err := chain.engine.TransactionByHash(ctx, hash)
			if err != nil || tx == nil {
				continue
			}
			if _, err := json.Marshal(tx); err != nil {
				return
			}
		}
	}()

	_, err = chain.engine.Seal()
	close(done)
	<-readerDone
	require.NoError(t, err)

	assert.Nil(t, pending.BlockHash, "pending object must not change when its block is sealed")
	assert.Nil(t, pending.BlockNumber)

	sealed, err := chain.engine.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, sealed.BlockHash)
	assert.Equal(t, chain.engine.Block(1).Hash, *sealed.BlockHash)

	receipt, err := chain.engine.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, big.NewInt(1), receipt.BlockNumber.ToInt())
}

func TestResumeAfterIndexHead(t *testing.T) {
	kv, err := kvdb.NewEngine(bridgetypes.PebbleConfig{})
	require.NoError(t, err)
	defer kv.Close()

	first := newTestChain(t, Config{ChainID: 1337}, kv)
	first.mint(t, "1", alice)
	first.mint(t, "2", alice)

	resumed := newTestChain(t, Config{ChainID: 1337}, kv)
	head, err := resumed.engine.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), head)

	hash := resumed.mint(t, "3", bob)
	logs, err := resumed.index.TxLogs(hash)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(3), logs[0].BlockNumber)
}
