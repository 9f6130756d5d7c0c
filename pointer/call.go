package pointer

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethpandaops/pointerbridge/metrics"
)

// Call decodes an ABI encoded ERC721 call, runs it and returns the ABI encoded result.
// Failures are returned as *RevertError.
func (p *Pointer) Call(ctx context.Context, env *Env, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, revertf(ReasonInvalidInput, "input too short")
	}
	method, err := ParsedABI.MethodById(input[:4])
	if err != nil {
		metrics.PointerCalls.WithLabelValues("unknown", "revert").Inc()
		return nil, &RevertError{Reason: ReasonUnknownMethod, Err: err}
	}

	output, err := p.call(ctx, env, method, input[4:])
	result := "ok"
	if err != nil {
		result = "revert"
		var revert *RevertError
		if !errors.As(err, &revert) {
			err = &RevertError{Reason: ReasonNativeFailure, Err: err}
		}
	}
	metrics.PointerCalls.WithLabelValues(method.RawName, result).Inc()
	return output, err
}

func (p *Pointer) call(ctx context.Context, env *Env, method *abi.Method, data []byte) ([]byte, error) {
	if env.ReadOnly && !method.IsConstant() {
		return nil, revertf(ReasonReadOnly, "%v in read-only call", method.RawName)
	}
	args, err := method.Inputs.Unpack(data)
	if err != nil {
		return nil, &RevertError{Reason: ReasonInvalidInput, Err: err}
	}

	switch method.Name {
	case "name":
		name, err := p.Name(ctx)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(name)

	case "symbol":
		symbol, err := p.Symbol(ctx)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(symbol)

	case "ownerOf":
		tokenId, err := tokenIdArg(args[0])
		if err != nil {
			return nil, err
		}
		owner, err := p.OwnerOf(ctx, tokenId)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(owner)

	case "tokenURI":
		tokenId, err := tokenIdArg(args[0])
		if err != nil {
			return nil, err
		}
		uri, err := p.TokenURI(ctx, tokenId)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(uri)

	case "balanceOf":
		balance, err := p.BalanceOf(ctx, args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(balance.ToBig())

	case "getApproved":
		tokenId, err := tokenIdArg(args[0])
		if err != nil {
			return nil, err
		}
		approved, err := p.GetApproved(ctx, tokenId)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(approved)

	case "isApprovedForAll":
		approved, err := p.IsApprovedForAll(ctx, args[0].(common.Address), args[1].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(approved)

	case "supportsInterface":
		interfaceId := args[0].([4]byte)
		supported := false
		for _, id := range supportedInterfaces {
			if id == interfaceId {
				supported = true
				break
			}
		}
		return method.Outputs.Pack(supported)

	case "approve":
		tokenId, err := tokenIdArg(args[1])
		if err != nil {
			return nil, err
		}
		return nil, p.Approve(ctx, env, args[0].(common.Address), tokenId)

	case "setApprovalForAll":
		return nil, p.SetApprovalForAll(ctx, env, args[0].(common.Address), args[1].(bool))

	case "transferFrom":
		tokenId, err := tokenIdArg(args[2])
		if err != nil {
			return nil, err
		}
		return nil, p.TransferFrom(ctx, env, args[0].(common.Address), args[1].(common.Address), tokenId)

	case "safeTransferFrom", "safeTransferFrom0":
		tokenId, err := tokenIdArg(args[2])
		if err != nil {
			return nil, err
		}
		var data []byte
		if len(args) > 3 {
			data = args[3].([]byte)
		}
		return nil, p.SafeTransferFrom(ctx, env, args[0].(common.Address), args[1].(common.Address), tokenId, data)
	}

	return nil, revertf(ReasonUnknownMethod, "%v is not implemented", method.Sig)
}

func tokenIdArg(arg interface{}) (*uint256.Int, error) {
	value, ok := arg.(*big.Int)
	if !ok {
		return nil, revertf(ReasonInvalidInput, "token id is %T", arg)
	}
	tokenId, overflow := uint256.FromBig(value)
	if overflow {
		return nil, revertf(ReasonInvalidInput, "token id out of range")
	}
	return tokenId, nil
}
