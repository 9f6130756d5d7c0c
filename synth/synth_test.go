package synth

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/addrmap"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	ownerAddr    = common.HexToAddress("0x000000000000000000000000000000000000000a")
	spenderAddr  = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

func TestTopicSignatures(t *testing.T) {
	assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", TransferTopic.Hex())
	assert.Equal(t, "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925", ApprovalTopic.Hex())
	assert.Equal(t, "0x17307eab39ab6107e8899845ad3d59bd9653f200f220920489ca2b5937696c31", ApprovalForAllTopic.Hex())
}

func TestSynthesize(t *testing.T) {
	translator := addrmap.NewTranslator("wasm")
	synthesizer := NewSynthesizer(translator)
	owner := translator.ToNative(ownerAddr)
	spender := translator.ToNative(spenderAddr)
	tokenId := uint256.NewInt(2)
	tokenWord := common.LeftPadBytes([]byte{2}, 32)
	trueWord := common.LeftPadBytes([]byte{1}, 32)

	tests := []struct {
		name   string
		tr     *Transition
		topics []common.Hash
		data   []byte
	}{
		{
			name: "mint",
			tr: &Transition{
				Op: OpMint, TokenId: tokenId,
				Post: TokenState{Exists: true, Owner: owner},
			},
			topics: []common.Hash{TransferTopic, {}, addressTopic(ownerAddr)},
			data:   tokenWord,
		},
		{
			name: "transfer",
			tr: &Transition{
				Op: OpTransfer, TokenId: tokenId,
				Pre:  TokenState{Exists: true, Owner: owner, Approved: spender},
				Post: TokenState{Exists: true, Owner: spender},
			},
			topics: []common.Hash{TransferTopic, addressTopic(ownerAddr), addressTopic(spenderAddr)},
			data:   tokenWord,
		},
		{
			name: "approve",
			tr: &Transition{
				Op: OpApprove, TokenId: tokenId,
				Pre:  TokenState{Exists: true, Owner: owner},
				Post: TokenState{Exists: true, Owner: owner, Approved: spender},
			},
			topics: []common.Hash{ApprovalTopic, addressTopic(ownerAddr), addressTopic(spenderAddr)},
			data:   tokenWord,
		},
		{
			name: "revoke",
			tr: &Transition{
				Op: OpRevoke, TokenId: tokenId,
				Pre:  TokenState{Exists: true, Owner: owner, Approved: spender},
				Post: TokenState{Exists: true, Owner: owner},
			},
			topics: []common.Hash{ApprovalTopic, addressTopic(ownerAddr), {}},
			data:   tokenWord,
		},
		{
			name:   "approve all",
			tr:     &Transition{Op: OpApproveAll, Owner: owner, Operator: spender},
			topics: []common.Hash{ApprovalForAllTopic, addressTopic(ownerAddr), addressTopic(spenderAddr)},
			data:   trueWord,
		},
		{
			name:   "revoke all",
			tr:     &Transition{Op: OpRevokeAll, Owner: owner, Operator: spender},
			topics: []common.Hash{ApprovalForAllTopic, addressTopic(ownerAddr), addressTopic(spenderAddr)},
			data:   make([]byte, 32),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tr.Contract = testContract
			logs, err := synthesizer.Synthesize(tt.tr)
			require.NoError(t, err)
			require.Len(t, logs, 1)

			assert.Equal(t, testContract, logs[0].Address)
			assert.Equal(t, tt.topics, logs[0].Topics)
			assert.Equal(t, tt.data, logs[0].Data)

			// same input, same output
			again, err := synthesizer.Synthesize(tt.tr)
			require.NoError(t, err)
			assert.Equal(t, logs, again)
		})
	}
}

func TestSynthesizeSelfTransfer(t *testing.T) {
	translator := addrmap.NewTranslator("wasm")
	owner := translator.ToNative(ownerAddr)

	logs, err := NewSynthesizer(translator).Synthesize(&Transition{
		Op: OpTransfer, TokenId: uint256.NewInt(1),
		Pre:  TokenState{Exists: true, Owner: owner, Approved: translator.ToNative(spenderAddr)},
		Post: TokenState{Exists: true, Owner: owner},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, TransferTopic, logs[0].Topics[0])
	assert.Equal(t, ownerAddr, TopicAddress(logs[0].Topics[1]))
	assert.Equal(t, ownerAddr, TopicAddress(logs[0].Topics[2]))
}

func TestSynthesizeAddressesArePadded(t *testing.T) {
	translator := addrmap.NewTranslator("wasm")
	owner := common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")

	logs, err := NewSynthesizer(translator).Synthesize(&Transition{
		Op: OpApproveAll, Owner: translator.ToNative(owner), Operator: translator.ToNative(spenderAddr),
	})
	require.NoError(t, err)

	topic := logs[0].Topics[1]
	assert.Equal(t, make([]byte, 12), topic[:12])
	assert.Equal(t, owner, TopicAddress(topic))
}

func TestSynthesizeRejectsMalformedAccount(t *testing.T) {
	synthesizer := NewSynthesizer(addrmap.NewTranslator("wasm"))

	_, err := synthesizer.Synthesize(&Transition{Op: OpApproveAll, Owner: "cosmos1invalid", Operator: ""})
	assert.ErrorIs(t, err, addrmap.ErrMalformed)

	_, err = synthesizer.Synthesize(&Transition{Op: OpMint})
	assert.Error(t, err)
}

func TestSynthesizeLargeTokenId(t *testing.T) {
	translator := addrmap.NewTranslator("wasm")
	tokenId := new(uint256.Int).SetAllOne()

	logs, err := NewSynthesizer(translator).Synthesize(&Transition{
		Op: OpMint, TokenId: tokenId,
		Post: TokenState{Exists: true, Owner: translator.ToNative(ownerAddr)},
	})
	require.NoError(t, err)
	assert.Equal(t, tokenId, new(uint256.Int).SetBytes(logs[0].Data))
}
