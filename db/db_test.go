package db

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/dbtypes"
	"github.com/ethpandaops/pointerbridge/types"
)

func initTestDB(t *testing.T) {
	err := InitDB(&types.DatabaseConfig{
		Engine: "sqlite",
		Sqlite: &types.SqliteDatabaseConfig{File: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(MustCloseDB)
}

func TestPointerLinks(t *testing.T) {
	initTestDB(t)

	link := &dbtypes.PointerLink{Pointee: "wasm1abc", PointerAddress: []byte{1, 2, 3}, Version: 1, Created: 100}
	var inserted bool
	err := RunDBTransaction(func(tx *sqlx.Tx) error {
		var err error
		inserted, err = InsertPointerLink(link, tx)
		return err
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	// same pointee and same pointer address are both ignored
	for _, dup := range []*dbtypes.PointerLink{
		{Pointee: "wasm1abc", PointerAddress: []byte{9}, Version: 1, Created: 101},
		{Pointee: "wasm1other", PointerAddress: []byte{1, 2, 3}, Version: 1, Created: 101},
	} {
		err = RunDBTransaction(func(tx *sqlx.Tx) error {
			var err error
			inserted, err = InsertPointerLink(dup, tx)
			return err
		})
		require.NoError(t, err)
		assert.False(t, inserted)
	}

	byPointee, err := GetPointerLinkByPointee(ReaderDb, "wasm1abc")
	require.NoError(t, err)
	assert.Equal(t, link, byPointee)

	byAddress, err := GetPointerLinkByAddress(ReaderDb, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, link, byAddress)

	missing, err := GetPointerLinkByPointee(ReaderDb, "wasm1missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	links, err := GetPointerLinks()
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestSyntheticLogs(t *testing.T) {
	initTestDB(t)

	head, err := GetSyntheticHead()
	require.NoError(t, err)
	assert.Nil(t, head)

	topicA := []byte{0xaa}
	topicB := []byte{0xbb}
	logs := []*dbtypes.SyntheticLog{
		{BlockNumber: 5, LogIndex: 0, BlockHash: []byte{5}, TxHash: []byte{1}, Address: []byte{1}, Topic0: topicA, Data: []byte{}},
		{BlockNumber: 5, LogIndex: 1, BlockHash: []byte{5}, TxHash: []byte{2}, TxIndex: 1, Address: []byte{2}, Topic0: topicB, Topic1: topicA, Data: []byte{}},
	}
	err = RunDBTransaction(func(tx *sqlx.Tx) error {
		if err := InsertSyntheticBlock(&dbtypes.SyntheticBlock{Number: 4, Hash: []byte{4}}, nil, tx); err != nil {
			return err
		}
		return InsertSyntheticBlock(&dbtypes.SyntheticBlock{Number: 5, Hash: []byte{5}, LogCount: 2}, logs, tx)
	})
	require.NoError(t, err)

	head, err = GetSyntheticHead()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), head.Number)

	block, err := GetSyntheticBlock(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), block.LogCount)

	byBlock, err := GetSyntheticLogsByBlock(5)
	require.NoError(t, err)
	assert.Len(t, byBlock, 2)

	byTx, err := GetSyntheticLogsByTxHash([]byte{2})
	require.NoError(t, err)
	require.Len(t, byTx, 1)
	assert.Equal(t, uint32(1), byTx[0].LogIndex)

	filtered, err := GetSyntheticLogsFiltered(&dbtypes.SyntheticLogFilter{
		FromBlock: 0, ToBlock: 10,
		Topics: [][][]byte{nil, {topicA}},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, []byte{2}, filtered[0].Address)

	filtered, err = GetSyntheticLogsFiltered(&dbtypes.SyntheticLogFilter{
		FromBlock: 0, ToBlock: 10,
		Addresses: [][]byte{{1}, {3}},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, uint32(0), filtered[0].LogIndex)
}
