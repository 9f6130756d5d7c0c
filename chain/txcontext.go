package chain

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// TxContext collects the synthetic logs of one transaction.
// The logs reach the log index only if the transaction succeeds.
type TxContext struct {
	logs []*types.Log
}

func NewTxContext() *TxContext {
	return &TxContext{
		logs: []*types.Log{},
	}
}

func (c *TxContext) EmitLogs(logs []*types.Log) {
	c.logs = append(c.logs, logs...)
}

func (c *TxContext) Logs() []*types.Log {
	return c.logs
}
