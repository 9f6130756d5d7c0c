package logindex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/db"
	"github.com/ethpandaops/pointerbridge/kvdb"
	bridgetypes "github.com/ethpandaops/pointerbridge/types"
)

var (
	contractA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	contractB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	topicX    = common.HexToHash("0x01")
	topicY    = common.HexToHash("0x02")
)

type engineFactory struct {
	name string
	new  func(t *testing.T) Engine
}

var engineFactories = []engineFactory{
	{name: "memory", new: func(t *testing.T) Engine { return nil }},
	{name: "pebble", new: func(t *testing.T) Engine {
		kv, err := kvdb.NewEngine(bridgetypes.PebbleConfig{})
		require.NoError(t, err)
		t.Cleanup(func() { kv.Close() })
		return NewPebbleEngine(kv)
	}},
	{name: "db", new: func(t *testing.T) Engine {
		err := db.InitDB(&bridgetypes.DatabaseConfig{
			Engine: "sqlite",
			Sqlite: &bridgetypes.SqliteDatabaseConfig{File: ":memory:"},
		})
		require.NoError(t, err)
		t.Cleanup(db.MustCloseDB)
		return NewDbEngine()
	}},
}

func newTestLog(address common.Address, txHash common.Hash, topics ...common.Hash) *types.Log {
	return &types.Log{
		Address: address,
		Topics:  topics,
		Data:    []byte{0x01},
		TxHash:  txHash,
	}
}

func TestOpenBlockIsInvisible(t *testing.T) {
	logger, _ := test.NewNullLogger()
	index, err := NewIndex(logger, nil, 0)
	require.NoError(t, err)

	require.NoError(t, index.Finalize(0, common.HexToHash("0x00")))
	require.NoError(t, index.Append(1, []*types.Log{newTestLog(contractA, common.HexToHash("0x1001"), topicX)}))

	_, err = index.BlockLogs(1)
	assert.ErrorIs(t, err, ErrBlockNotFinalized)
	_, err = index.FilterLogs(&Query{FromBlock: 0, ToBlock: 1})
	assert.ErrorIs(t, err, ErrBlockNotFinalized)
	logs, err := index.TxLogs(common.HexToHash("0x1001"))
	require.NoError(t, err)
	assert.Empty(t, logs)

	head, ok := index.Head()
	assert.True(t, ok)
	assert.Equal(t, uint64(0), head)

	blockHash := common.HexToHash("0xb1")
	require.NoError(t, index.Finalize(1, blockHash))

	logs, err = index.BlockLogs(1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(1), logs[0].BlockNumber)
	assert.Equal(t, blockHash, logs[0].BlockHash)
	assert.Equal(t, uint(0), logs[0].Index)
}

func TestAppendOrdering(t *testing.T) {
	logger, _ := test.NewNullLogger()
	index, err := NewIndex(logger, nil, 0)
	require.NoError(t, err)

	require.NoError(t, index.Append(3, []*types.Log{newTestLog(contractA, common.HexToHash("0x01"))}))
	assert.Error(t, index.Append(4, nil), "only one open block")
	require.NoError(t, index.Append(3, []*types.Log{newTestLog(contractA, common.HexToHash("0x02")), newTestLog(contractA, common.HexToHash("0x02"))}))
	require.NoError(t, index.Finalize(3, common.Hash{}))

	assert.Error(t, index.Append(3, nil), "finalized blocks are immutable")
	assert.Error(t, index.Finalize(2, common.Hash{}))

	logs, err := index.BlockLogs(3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i, log := range logs {
		assert.Equal(t, uint(i), log.Index)
	}

	txLogs, err := index.TxLogs(common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.Len(t, txLogs, 2)
}

func TestDiscard(t *testing.T) {
	logger, _ := test.NewNullLogger()
	index, err := NewIndex(logger, nil, 0)
	require.NoError(t, err)

	require.NoError(t, index.Append(1, []*types.Log{newTestLog(contractA, common.HexToHash("0x01"))}))
	index.Discard(1)
	require.NoError(t, index.Finalize(1, common.Hash{}))

	logs, err := index.BlockLogs(1)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestFilterLogsAcrossEngines(t *testing.T) {
	for _, factory := range engineFactories {
		t.Run(factory.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			engine := factory.new(t)
			// keep two blocks in memory so that older blocks come from the engine
			index, err := NewIndex(logger, engine, 2)
			require.NoError(t, err)

			for number := uint64(1); number <= 6; number++ {
				txHash := common.BigToHash(new(big.Int).SetUint64(number))
				require.NoError(t, index.Append(number, []*types.Log{
					newTestLog(contractA, txHash, topicX, topicY),
					newTestLog(contractB, txHash, topicY),
				}))
				require.NoError(t, index.Finalize(number, common.BigToHash(new(big.Int).SetUint64(100+number))))
			}

			all, err := index.FilterLogs(&Query{FromBlock: 1, ToBlock: 6})
			require.NoError(t, err)
			require.Len(t, all, 12)
			for i := 1; i < len(all); i++ {
				prev, cur := all[i-1], all[i]
				assert.True(t, prev.BlockNumber < cur.BlockNumber || (prev.BlockNumber == cur.BlockNumber && prev.Index < cur.Index))
			}

			byAddress, err := index.FilterLogs(&Query{FromBlock: 2, ToBlock: 5, Addresses: []common.Address{contractB}})
			require.NoError(t, err)
			assert.Len(t, byAddress, 4)

			byTopic, err := index.FilterLogs(&Query{FromBlock: 1, ToBlock: 6, Topics: [][]common.Hash{{topicX}}})
			require.NoError(t, err)
			assert.Len(t, byTopic, 6)

			bySecondTopic, err := index.FilterLogs(&Query{FromBlock: 1, ToBlock: 6, Topics: [][]common.Hash{nil, {topicY}}})
			require.NoError(t, err)
			assert.Len(t, bySecondTopic, 6)
			for _, log := range bySecondTopic {
				assert.Equal(t, contractA, log.Address)
			}

			oldBlock, err := index.BlockLogs(1)
			require.NoError(t, err)
			require.Len(t, oldBlock, 2)
			assert.Equal(t, common.BigToHash(big.NewInt(101)), oldBlock[0].BlockHash)

			oldTx, err := index.TxLogs(common.BigToHash(big.NewInt(1)))
			require.NoError(t, err)
			assert.Len(t, oldTx, 2)

			_, err = index.FilterLogs(&Query{FromBlock: 5, ToBlock: 7})
			assert.ErrorIs(t, err, ErrBlockNotFinalized)
		})
	}
}

func TestResumeFromEngine(t *testing.T) {
	kv, err := kvdb.NewEngine(bridgetypes.PebbleConfig{})
	require.NoError(t, err)
	defer kv.Close()
	logger, _ := test.NewNullLogger()

	index, err := NewIndex(logger, NewPebbleEngine(kv), 10)
	require.NoError(t, err)
	require.NoError(t, index.Append(7, []*types.Log{newTestLog(contractA, common.HexToHash("0x07"), topicX)}))
	require.NoError(t, index.Finalize(7, common.HexToHash("0x77")))

	resumed, err := NewIndex(logger, NewPebbleEngine(kv), 10)
	require.NoError(t, err)
	head, ok := resumed.Head()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), head)

	logs, err := resumed.FilterLogs(&Query{FromBlock: 0, ToBlock: 7})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, []common.Hash{topicX}, logs[0].Topics)

	assert.Error(t, resumed.Finalize(7, common.Hash{}))
	require.NoError(t, resumed.Finalize(8, common.Hash{}))
}

func TestQueryMatches(t *testing.T) {
	log := &types.Log{Address: contractA, Topics: []common.Hash{topicX}, BlockNumber: 5}

	tests := []struct {
		name  string
		query Query
		match bool
	}{
		{name: "open query", query: Query{FromBlock: 0, ToBlock: 10}, match: true},
		{name: "out of range", query: Query{FromBlock: 6, ToBlock: 10}, match: false},
		{name: "address", query: Query{ToBlock: 10, Addresses: []common.Address{contractB, contractA}}, match: true},
		{name: "wrong address", query: Query{ToBlock: 10, Addresses: []common.Address{contractB}}, match: false},
		{name: "topic alternatives", query: Query{ToBlock: 10, Topics: [][]common.Hash{{topicY, topicX}}}, match: true},
		{name: "more topic slots than log topics", query: Query{ToBlock: 10, Topics: [][]common.Hash{nil, nil}}, match: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, tt.query.Matches(log))
		})
	}
}
