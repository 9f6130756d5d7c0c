package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/pointerbridge/dbtypes"
)

const syntheticLogColumns = `"block_number", "log_index", "block_hash", "tx_hash", "tx_index", "address", "topic0", "topic1", "topic2", "topic3", "data"`

// InsertSyntheticBlock stores a finalized block and its logs.
func InsertSyntheticBlock(block *dbtypes.SyntheticBlock, logs []*dbtypes.SyntheticLog, tx *sqlx.Tx) error {
	_, err := tx.Exec(EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql:  `INSERT INTO synthetic_blocks ("number", "hash", "log_count") VALUES ($1, $2, $3) ON CONFLICT ("number") DO NOTHING`,
		dbtypes.DBEngineSqlite: `INSERT OR IGNORE INTO synthetic_blocks ("number", "hash", "log_count") VALUES ($1, $2, $3)`,
	}), block.Number, block.Hash, block.LogCount)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	var sql strings.Builder
	fmt.Fprint(&sql, EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql:  `INSERT INTO synthetic_logs (` + syntheticLogColumns + `) VALUES `,
		dbtypes.DBEngineSqlite: `INSERT OR IGNORE INTO synthetic_logs (` + syntheticLogColumns + `) VALUES `,
	}))
	argIdx := 0
	fieldCount := 11
	args := make([]any, len(logs)*fieldCount)
	for i, log := range logs {
		if i > 0 {
			fmt.Fprintf(&sql, ", ")
		}
		fmt.Fprintf(&sql, "(")
		for f := 0; f < fieldCount; f++ {
			if f > 0 {
				fmt.Fprintf(&sql, ", ")
			}
			fmt.Fprintf(&sql, "$%v", argIdx+f+1)
		}
		fmt.Fprintf(&sql, ")")

		args[argIdx+0] = log.BlockNumber
		args[argIdx+1] = log.LogIndex
		args[argIdx+2] = log.BlockHash
		args[argIdx+3] = log.TxHash
		args[argIdx+4] = log.TxIndex
		args[argIdx+5] = log.Address
		args[argIdx+6] = log.Topic0
		args[argIdx+7] = log.Topic1
		args[argIdx+8] = log.Topic2
		args[argIdx+9] = log.Topic3
		args[argIdx+10] = log.Data
		argIdx += fieldCount
	}
	fmt.Fprint(&sql, EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql:  ` ON CONFLICT ("block_number", "log_index") DO NOTHING`,
		dbtypes.DBEngineSqlite: "",
	}))

	_, err = tx.Exec(sql.String(), args...)
	return err
}

// GetSyntheticHead returns the highest stored block, or nil if there is none.
func GetSyntheticHead() (*dbtypes.SyntheticBlock, error) {
	return getSyntheticBlock(`SELECT "number", "hash", "log_count" FROM synthetic_blocks ORDER BY "number" DESC LIMIT 1`)
}

func GetSyntheticBlock(number uint64) (*dbtypes.SyntheticBlock, error) {
	return getSyntheticBlock(`SELECT "number", "hash", "log_count" FROM synthetic_blocks WHERE "number" = $1`, number)
}

func getSyntheticBlock(query string, args ...any) (*dbtypes.SyntheticBlock, error) {
	block := &dbtypes.SyntheticBlock{}
	err := ReaderDb.Get(block, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return block, nil
}

func GetSyntheticLogsByBlock(number uint64) ([]*dbtypes.SyntheticLog, error) {
	logs := []*dbtypes.SyntheticLog{}
	err := ReaderDb.Select(&logs, `SELECT `+syntheticLogColumns+` FROM synthetic_logs WHERE "block_number" = $1 ORDER BY "log_index" ASC`, number)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func GetSyntheticLogsByTxHash(txHash []byte) ([]*dbtypes.SyntheticLog, error) {
	logs := []*dbtypes.SyntheticLog{}
	err := ReaderDb.Select(&logs, `SELECT `+syntheticLogColumns+` FROM synthetic_logs WHERE "tx_hash" = $1 ORDER BY "block_number" ASC, "log_index" ASC`, txHash)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// GetSyntheticLogsFiltered applies block range, address and topic filters.
// A nil or empty topic slot matches any value.
func GetSyntheticLogsFiltered(filter *dbtypes.SyntheticLogFilter) ([]*dbtypes.SyntheticLog, error) {
	var sql strings.Builder
	args := []any{filter.FromBlock, filter.ToBlock}
	fmt.Fprintf(&sql, `SELECT %v FROM synthetic_logs WHERE "block_number" >= $1 AND "block_number" <= $2`, syntheticLogColumns)

	appendIn := func(column string, values [][]byte) {
		fmt.Fprintf(&sql, ` AND "%v" IN (`, column)
		for i, value := range values {
			if i > 0 {
				fmt.Fprint(&sql, ", ")
			}
			args = append(args, value)
			fmt.Fprintf(&sql, "$%v", len(args))
		}
		fmt.Fprint(&sql, ")")
	}

	if len(filter.Addresses) > 0 {
		appendIn("address", filter.Addresses)
	}
	for slot, values := range filter.Topics {
		if len(values) == 0 {
			continue
		}
		appendIn(fmt.Sprintf("topic%d", slot), values)
	}
	fmt.Fprint(&sql, ` ORDER BY "block_number" ASC, "log_index" ASC`)

	logs := []*dbtypes.SyntheticLog{}
	err := ReaderDb.Select(&logs, sql.String(), args...)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
