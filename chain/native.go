package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/pointer"
)

func (e *Engine) executeNative(ctx context.Context, ptr *pointer.Pointer, env *pointer.Env, sender string, contract string, msgBytes []byte) error {
	msg := &native.ExecuteMsg{}
	if err := json.Unmarshal(msgBytes, msg); err != nil {
		return fmt.Errorf("%w: %v", native.ErrInvalidMsg, err)
	}

	if ptr != nil {
		handled, err := e.executeThroughPointer(ctx, ptr, env, msg)
		if handled {
			return err
		}
		e.logger.Debugf("%v message cannot be expressed through the pointer, executing without synthetic logs", msg.Name())
	}
	return e.client.Execute(ctx, contract, sender, msg)
}

// executeThroughPointer maps a native message onto the equivalent pointer operation.
// It reports false if the message cannot be expressed through the ERC721 surface,
// e.g. for non numeric token ids or accounts without a 20 byte payload.
func (e *Engine) executeThroughPointer(ctx context.Context, ptr *pointer.Pointer, env *pointer.Env, msg *native.ExecuteMsg) (bool, error) {
	switch {
	case msg.Mint != nil:
		tokenId, ok := parseTokenId(msg.Mint.TokenId)
		if !ok {
			return false, nil
		}
		to, err := e.translator.ParseAny(msg.Mint.Owner)
		if err != nil {
			return false, nil
		}
		return true, ptr.Mint(ctx, env, to, tokenId, msg.Mint.TokenUri)

	case msg.TransferNft != nil, msg.SendNft != nil:
		var tokenIdStr, recipient string
		if msg.TransferNft != nil {
			tokenIdStr, recipient = msg.TransferNft.TokenId, msg.TransferNft.Recipient
		} else {
			tokenIdStr, recipient = msg.SendNft.TokenId, msg.SendNft.Contract
		}
		tokenId, ok := parseTokenId(tokenIdStr)
		if !ok {
			return false, nil
		}
		to, err := e.translator.ParseAny(recipient)
		if err != nil {
			return false, nil
		}
		owner, err := ptr.OwnerOf(ctx, tokenId)
		if err != nil {
			return true, err
		}
		if msg.SendNft != nil {
			return true, ptr.SafeTransferFrom(ctx, env, owner, to, tokenId, msg.SendNft.Msg)
		}
		return true, ptr.TransferFrom(ctx, env, owner, to, tokenId)

	case msg.Approve != nil:
		tokenId, ok := parseTokenId(msg.Approve.TokenId)
		if !ok {
			return false, nil
		}
		spender, err := e.translator.ParseAny(msg.Approve.Spender)
		if err != nil {
			return false, nil
		}
		return true, ptr.Approve(ctx, env, spender, tokenId)

	case msg.Revoke != nil:
		tokenId, ok := parseTokenId(msg.Revoke.TokenId)
		if !ok {
			return false, nil
		}
		return true, ptr.Approve(ctx, env, common.Address{}, tokenId)

	case msg.ApproveAll != nil, msg.RevokeAll != nil:
		operatorId := ""
		if msg.ApproveAll != nil {
			operatorId = msg.ApproveAll.Operator
		} else {
			operatorId = msg.RevokeAll.Operator
		}
		operator, err := e.translator.ParseAny(operatorId)
		if err != nil {
			return false, nil
		}
		return true, ptr.SetApprovalForAll(ctx, env, operator, msg.ApproveAll != nil)
	}

	return false, nil
}

func parseTokenId(tokenId string) (*uint256.Int, bool) {
	id, err := uint256.FromDecimal(tokenId)
	if err != nil {
		return nil, false
	}
	return id, true
}
