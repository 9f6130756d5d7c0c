package chain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethpandaops/pointerbridge/rpctypes"
)

type Block struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Time         uint64
	Transactions []*Tx
}

type Tx struct {
	Transaction *rpctypes.Transaction
	Receipt     *rpctypes.Receipt
	// Reverted calls keep their revert reason for debugging.
	RevertReason string
}

func uint64Bytes(value uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return buf
}

func blockHash(parent common.Hash, number uint64, txs []*Tx) common.Hash {
	parts := [][]byte{parent.Bytes(), uint64Bytes(number)}
	for _, tx := range txs {
		parts = append(parts, tx.Transaction.Hash.Bytes())
	}
	return crypto.Keccak256Hash(parts...)
}

func evmTxHash(chainId uint64, from common.Address, to common.Address, nonce uint64, input []byte) common.Hash {
	return crypto.Keccak256Hash([]byte("evm"), uint64Bytes(chainId), from.Bytes(), to.Bytes(), uint64Bytes(nonce), input)
}

func nativeTxHash(chainId uint64, sender string, contract string, nonce uint64, msg []byte) common.Hash {
	return crypto.Keccak256Hash([]byte("native"), uint64Bytes(chainId), []byte(sender), []byte(contract), uint64Bytes(nonce), msg)
}
