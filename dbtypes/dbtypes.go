package dbtypes

type PointerLink struct {
	Pointee        string `db:"pointee"`
	PointerAddress []byte `db:"pointer_address"`
	Version        uint16 `db:"version"`
	Created        int64  `db:"created"`
}

type SyntheticBlock struct {
	Number   uint64 `db:"number"`
	Hash     []byte `db:"hash"`
	LogCount uint32 `db:"log_count"`
}

// SyntheticLog is a finalized synthetic log row. Unused topic slots are nil.
type SyntheticLog struct {
	BlockNumber uint64 `db:"block_number"`
	LogIndex    uint32 `db:"log_index"`
	BlockHash   []byte `db:"block_hash"`
	TxHash      []byte `db:"tx_hash"`
	TxIndex     uint32 `db:"tx_index"`
	Address     []byte `db:"address"`
	Topic0      []byte `db:"topic0"`
	Topic1      []byte `db:"topic1"`
	Topic2      []byte `db:"topic2"`
	Topic3      []byte `db:"topic3"`
	Data        []byte `db:"data"`
}

type SyntheticLogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses [][]byte
	Topics    [][][]byte
}
