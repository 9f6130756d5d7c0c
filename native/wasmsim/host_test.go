package wasmsim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/kvdb"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/types"
)

const (
	testContract = "wasm1contract"
	minter       = "wasm1minter"
	alice        = "wasm1alice"
	bob          = "wasm1bob"
	carol        = "wasm1carol"
)

func newTestClient(t *testing.T) *native.Client {
	kv, err := kvdb.NewEngine(types.PebbleConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	host := NewHost(kv)
	require.NoError(t, host.Instantiate(context.Background(), testContract, "Test", "TEST", minter))
	return native.NewClient(host)
}

func mint(t *testing.T, client *native.Client, tokenId string, owner string) {
	err := client.Execute(context.Background(), testContract, minter, &native.ExecuteMsg{
		Mint: &native.MintMsg{TokenId: tokenId, Owner: owner, TokenUri: "token uri " + tokenId},
	})
	require.NoError(t, err)
}

func TestMintAndQuery(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	mint(t, client, "1", alice)

	info, err := client.ContractInfo(ctx, testContract)
	require.NoError(t, err)
	assert.Equal(t, "Test", info.Name)
	assert.Equal(t, "TEST", info.Symbol)

	owner, err := client.OwnerOf(ctx, testContract, "1")
	require.NoError(t, err)
	assert.Equal(t, alice, owner.Owner)
	assert.Empty(t, owner.Approvals)

	nft, err := client.NftInfo(ctx, testContract, "1")
	require.NoError(t, err)
	assert.Equal(t, "token uri 1", nft.TokenUri)

	_, err = client.OwnerOf(ctx, testContract, "2")
	assert.ErrorIs(t, err, native.ErrNotFound)

	_, err = client.ContractInfo(ctx, "wasm1missing")
	assert.ErrorIs(t, err, native.ErrNoContract)
}

func TestMintRules(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	mint(t, client, "1", alice)

	err := client.Execute(ctx, testContract, alice, &native.ExecuteMsg{Mint: &native.MintMsg{TokenId: "2", Owner: alice}})
	assert.ErrorIs(t, err, native.ErrUnauthorized)

	err = client.Execute(ctx, testContract, minter, &native.ExecuteMsg{Mint: &native.MintMsg{TokenId: "1", Owner: bob}})
	assert.ErrorIs(t, err, native.ErrInvalidMsg)

	owner, err := client.OwnerOf(ctx, testContract, "1")
	require.NoError(t, err)
	assert.Equal(t, alice, owner.Owner)
}

func TestTransferAuthorization(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   *native.ExecuteMsg
		sender  string
		allowed bool
	}{
		{name: "owner", sender: alice, allowed: true},
		{name: "stranger", sender: carol, allowed: false},
		{
			name:    "approved spender",
			setup:   &native.ExecuteMsg{Approve: &native.ApproveMsg{Spender: carol, TokenId: "1"}},
			sender:  carol,
			allowed: true,
		},
		{
			name:    "operator",
			setup:   &native.ExecuteMsg{ApproveAll: &native.OperatorMsg{Operator: carol}},
			sender:  carol,
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t)
			mint(t, client, "1", alice)
			if tt.setup != nil {
				require.NoError(t, client.Execute(ctx, testContract, alice, tt.setup))
			}

			err := client.Execute(ctx, testContract, tt.sender, &native.ExecuteMsg{
				TransferNft: &native.TransferNftMsg{Recipient: bob, TokenId: "1"},
			})
			owner, qerr := client.OwnerOf(ctx, testContract, "1")
			require.NoError(t, qerr)

			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, bob, owner.Owner)
				assert.Empty(t, owner.Approvals)
			} else {
				assert.ErrorIs(t, err, native.ErrUnauthorized)
				assert.Equal(t, alice, owner.Owner)
			}
		})
	}
}

func TestApproveRevoke(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	mint(t, client, "1", alice)

	err := client.Execute(ctx, testContract, bob, &native.ExecuteMsg{Approve: &native.ApproveMsg{Spender: bob, TokenId: "1"}})
	assert.ErrorIs(t, err, native.ErrUnauthorized)

	require.NoError(t, client.Execute(ctx, testContract, alice, &native.ExecuteMsg{Approve: &native.ApproveMsg{Spender: bob, TokenId: "1"}}))
	require.NoError(t, client.Execute(ctx, testContract, alice, &native.ExecuteMsg{Approve: &native.ApproveMsg{Spender: carol, TokenId: "1"}}))

	approvals, err := client.Approvals(ctx, testContract, "1")
	require.NoError(t, err)
	assert.Equal(t, []native.Approval{{Spender: carol}}, approvals.Approvals)

	require.NoError(t, client.Execute(ctx, testContract, alice, &native.ExecuteMsg{Revoke: &native.RevokeMsg{Spender: carol, TokenId: "1"}}))
	approvals, err = client.Approvals(ctx, testContract, "1")
	require.NoError(t, err)
	assert.Empty(t, approvals.Approvals)
}

func TestOperators(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	require.NoError(t, client.Execute(ctx, testContract, alice, &native.ExecuteMsg{ApproveAll: &native.OperatorMsg{Operator: bob}}))
	require.NoError(t, client.Execute(ctx, testContract, alice, &native.ExecuteMsg{ApproveAll: &native.OperatorMsg{Operator: carol}}))

	operators, err := client.AllOperators(ctx, testContract, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{bob, carol}, operators)

	require.NoError(t, client.Execute(ctx, testContract, alice, &native.ExecuteMsg{RevokeAll: &native.OperatorMsg{Operator: bob}}))
	operators, err = client.AllOperators(ctx, testContract, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{carol}, operators)

	// revoking an absent operator is not an error
	require.NoError(t, client.Execute(ctx, testContract, alice, &native.ExecuteMsg{RevokeAll: &native.OperatorMsg{Operator: bob}}))
}

func TestTokensPagination(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	for i := 0; i < 250; i++ {
		mint(t, client, fmt.Sprintf("%03d", i), alice)
	}
	mint(t, client, "999", bob)

	tokens, err := client.AllTokens(ctx, testContract, alice)
	require.NoError(t, err)
	assert.Len(t, tokens, 250)
	assert.Equal(t, "000", tokens[0])
	assert.Equal(t, "249", tokens[249])

	tokens, err = client.AllTokens(ctx, testContract, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"999"}, tokens)
}

func TestInvalidMessages(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Host().Execute(ctx, testContract, alice, []byte("not json"))
	assert.ErrorIs(t, err, native.ErrInvalidMsg)

	_, err = client.Host().Execute(ctx, testContract, alice, []byte("{}"))
	assert.ErrorIs(t, err, native.ErrInvalidMsg)

	_, err = client.Host().Query(ctx, testContract, []byte("{}"))
	assert.ErrorIs(t, err, native.ErrInvalidMsg)
}
