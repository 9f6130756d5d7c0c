package logindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/pointerbridge/db"
	"github.com/ethpandaops/pointerbridge/dbtypes"
)

// DbEngine stores finalized blocks in the sql database. The db package must be initialized.
type DbEngine struct{}

func NewDbEngine() *DbEngine {
	return &DbEngine{}
}

func (e *DbEngine) StoreBlock(block *Block) error {
	dbBlock := &dbtypes.SyntheticBlock{
		Number:   block.Number,
		Hash:     block.Hash.Bytes(),
		LogCount: uint32(len(block.Logs)),
	}
	dbLogs := make([]*dbtypes.SyntheticLog, len(block.Logs))
	for i, log := range block.Logs {
		dbLogs[i] = toDbLog(log)
	}
	return db.RunDBTransaction(func(tx *sqlx.Tx) error {
		return db.InsertSyntheticBlock(dbBlock, dbLogs, tx)
	})
}

func (e *DbEngine) LoadBlock(number uint64) (*Block, error) {
	dbBlock, err := db.GetSyntheticBlock(number)
	if err != nil || dbBlock == nil {
		return nil, err
	}
	dbLogs, err := db.GetSyntheticLogsByBlock(number)
	if err != nil {
		return nil, err
	}
	return &Block{
		Number: number,
		Hash:   common.BytesToHash(dbBlock.Hash),
		Logs:   fromDbLogs(dbLogs),
	}, nil
}

func (e *DbEngine) LoadTxLogs(txHash common.Hash) ([]*types.Log, error) {
	dbLogs, err := db.GetSyntheticLogsByTxHash(txHash.Bytes())
	if err != nil {
		return nil, err
	}
	return fromDbLogs(dbLogs), nil
}

func (e *DbEngine) FilterLogs(query *Query) ([]*types.Log, error) {
	filter := &dbtypes.SyntheticLogFilter{
		FromBlock: query.FromBlock,
		ToBlock:   query.ToBlock,
	}
	for _, address := range query.Addresses {
		filter.Addresses = append(filter.Addresses, address.Bytes())
	}
	if len(query.Topics) > 4 {
		return []*types.Log{}, nil
	}
	for _, sub := range query.Topics {
		values := [][]byte{}
		for _, topic := range sub {
			values = append(values, topic.Bytes())
		}
		filter.Topics = append(filter.Topics, values)
	}

	dbLogs, err := db.GetSyntheticLogsFiltered(filter)
	if err != nil {
		return nil, err
	}

	return fromDbLogs(dbLogs), nil
}

func (e *DbEngine) Head() (uint64, bool, error) {
	head, err := db.GetSyntheticHead()
	if err != nil || head == nil {
		return 0, false, err
	}
	return head.Number, true, nil
}

func toDbLog(log *types.Log) *dbtypes.SyntheticLog {
	dbLog := &dbtypes.SyntheticLog{
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		BlockHash:   log.BlockHash.Bytes(),
		TxHash:      log.TxHash.Bytes(),
		TxIndex:     uint32(log.TxIndex),
		Address:     log.Address.Bytes(),
		Data:        log.Data,
	}
	if dbLog.Data == nil {
		dbLog.Data = []byte{}
	}
	topics := []*[]byte{&dbLog.Topic0, &dbLog.Topic1, &dbLog.Topic2, &dbLog.Topic3}
	for i, topic := range log.Topics {
		if i >= len(topics) {
			break
		}
		*topics[i] = topic.Bytes()
	}
	return dbLog
}

func fromDbLogs(dbLogs []*dbtypes.SyntheticLog) []*types.Log {
	logs := make([]*types.Log, len(dbLogs))
	for i, dbLog := range dbLogs {
		log := &types.Log{
			Address:     common.BytesToAddress(dbLog.Address),
			Data:        dbLog.Data,
			BlockNumber: dbLog.BlockNumber,
			TxHash:      common.BytesToHash(dbLog.TxHash),
			TxIndex:     uint(dbLog.TxIndex),
			BlockHash:   common.BytesToHash(dbLog.BlockHash),
			Index:       uint(dbLog.LogIndex),
			Topics:      []common.Hash{},
		}
		for _, topic := range [][]byte{dbLog.Topic0, dbLog.Topic1, dbLog.Topic2, dbLog.Topic3} {
			if topic == nil {
				break
			}
			log.Topics = append(log.Topics, common.BytesToHash(topic))
		}
		logs[i] = log
	}
	return logs
}
