// Package synth builds ERC721 shaped logs from native CW721 state transitions.
package synth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ethpandaops/pointerbridge/addrmap"
)

var (
	TransferTopic       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalTopic       = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	ApprovalForAllTopic = crypto.Keccak256Hash([]byte("ApprovalForAll(address,address,bool)"))
)

type Operation uint8

const (
	OpMint Operation = iota + 1
	OpTransfer
	OpApprove
	OpRevoke
	OpApproveAll
	OpRevokeAll
)

func (op Operation) String() string {
	switch op {
	case OpMint:
		return "mint"
	case OpTransfer:
		return "transfer"
	case OpApprove:
		return "approve"
	case OpRevoke:
		return "revoke"
	case OpApproveAll:
		return "approve_all"
	case OpRevokeAll:
		return "revoke_all"
	}
	return fmt.Sprintf("operation(%d)", uint8(op))
}

// TokenState is the pointer's view of a token record. Accounts are native ids, empty for none.
type TokenState struct {
	Exists   bool
	Owner    string
	Approved string
}

// Transition describes one committed native operation.
// Token operations read Pre/Post; operator operations read Owner/Operator.
type Transition struct {
	Op       Operation
	Contract common.Address
	TokenId  *uint256.Int
	Pre      TokenState
	Post     TokenState
	Owner    string
	Operator string
}

type Synthesizer struct {
	translator *addrmap.Translator
}

func NewSynthesizer(translator *addrmap.Translator) *Synthesizer {
	return &Synthesizer{
		translator: translator,
	}
}

// Synthesize returns the logs a native ERC721 would have emitted for the transition.
// The result carries address, topics and data only; block and transaction fields are set by the caller.
func (s *Synthesizer) Synthesize(tr *Transition) ([]*types.Log, error) {
	switch tr.Op {
	case OpMint, OpTransfer:
		if tr.TokenId == nil {
			return nil, fmt.Errorf("%v without token id", tr.Op)
		}
		// a committed transfer always emits, a self transfer still resets the approval
		from := ""
		if tr.Op == OpTransfer && tr.Pre.Exists {
			from = tr.Pre.Owner
		}
		fromAddr, err := s.account(from)
		if err != nil {
			return nil, err
		}
		toAddr, err := s.account(tr.Post.Owner)
		if err != nil {
			return nil, err
		}
		return []*types.Log{tokenLog(tr.Contract, TransferTopic, fromAddr, toAddr, tr.TokenId)}, nil

	case OpApprove, OpRevoke:
		if tr.TokenId == nil {
			return nil, fmt.Errorf("%v without token id", tr.Op)
		}
		ownerAddr, err := s.account(tr.Post.Owner)
		if err != nil {
			return nil, err
		}
		approvedAddr := common.Address{}
		if tr.Op == OpApprove {
			approvedAddr, err = s.account(tr.Post.Approved)
			if err != nil {
				return nil, err
			}
		}
		return []*types.Log{tokenLog(tr.Contract, ApprovalTopic, ownerAddr, approvedAddr, tr.TokenId)}, nil

	case OpApproveAll, OpRevokeAll:
		ownerAddr, err := s.account(tr.Owner)
		if err != nil {
			return nil, err
		}
		operatorAddr, err := s.account(tr.Operator)
		if err != nil {
			return nil, err
		}
		data := make([]byte, 32)
		if tr.Op == OpApproveAll {
			data[31] = 1
		}
		return []*types.Log{{
			Address: tr.Contract,
			Topics:  []common.Hash{ApprovalForAllTopic, addressTopic(ownerAddr), addressTopic(operatorAddr)},
			Data:    data,
		}}, nil
	}

	return nil, fmt.Errorf("unsupported operation %v", tr.Op)
}

func (s *Synthesizer) account(nativeId string) (common.Address, error) {
	if nativeId == "" {
		return common.Address{}, nil
	}
	return s.translator.ParseAny(nativeId)
}

func tokenLog(contract common.Address, topic common.Hash, from, to common.Address, tokenId *uint256.Int) *types.Log {
	id := tokenId.Bytes32()
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{topic, addressTopic(from), addressTopic(to)},
		Data:    id[:],
	}
}

func addressTopic(address common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(address.Bytes(), 32))
}

// TopicAddress extracts the address from an indexed address topic.
func TopicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic[12:])
}
