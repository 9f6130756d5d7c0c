// Package pointer serves the ERC721 interface of a native CW721 contract.
package pointer

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/synth"
)

// LogEmitter receives the synthetic logs of a successful write.
// The chain engine buffers them in the transaction context.
type LogEmitter interface {
	EmitLogs(logs []*types.Log)
}

// Env is the execution environment of one pointer call.
type Env struct {
	Caller   common.Address
	ReadOnly bool
	Logs     LogEmitter
}

// ReceiverHook decides whether an address can receive tokens through safeTransferFrom.
// A receiving contract gets the token via send_nft.
type ReceiverHook interface {
	CheckReceiver(ctx context.Context, to common.Address) (isContract bool, err error)
}

type Pointer struct {
	logger      logrus.FieldLogger
	address     common.Address
	contract    string
	client      *native.Client
	translator  *addrmap.Translator
	synthesizer *synth.Synthesizer
	receivers   ReceiverHook
}

func New(logger logrus.FieldLogger, address common.Address, contract string, client *native.Client, translator *addrmap.Translator, receivers ReceiverHook) *Pointer {
	return &Pointer{
		logger:      logger.WithField("pointer", address.Hex()),
		address:     address,
		contract:    contract,
		client:      client,
		translator:  translator,
		synthesizer: synth.NewSynthesizer(translator),
		receivers:   receivers,
	}
}

func (p *Pointer) Address() common.Address {
	return p.address
}

func (p *Pointer) Contract() string {
	return p.contract
}

func (p *Pointer) Name(ctx context.Context) (string, error) {
	info, err := p.client.ContractInfo(ctx, p.contract)
	if err != nil {
		return "", nativeRevert(err)
	}
	return info.Name, nil
}

func (p *Pointer) Symbol(ctx context.Context) (string, error) {
	info, err := p.client.ContractInfo(ctx, p.contract)
	if err != nil {
		return "", nativeRevert(err)
	}
	return info.Symbol, nil
}

func (p *Pointer) OwnerOf(ctx context.Context, tokenId *uint256.Int) (common.Address, error) {
	res, err := p.client.OwnerOf(ctx, p.contract, tokenId.Dec())
	if err != nil {
		return common.Address{}, nativeRevert(err)
	}
	return p.evmAccount(res.Owner)
}

func (p *Pointer) TokenURI(ctx context.Context, tokenId *uint256.Int) (string, error) {
	res, err := p.client.NftInfo(ctx, p.contract, tokenId.Dec())
	if err != nil {
		return "", nativeRevert(err)
	}
	return res.TokenUri, nil
}

// BalanceOf counts the live token set of the account.
func (p *Pointer) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	if account == (common.Address{}) {
		return nil, revertf(ReasonInvalidOwner, "balance query for the zero address")
	}
	tokens, err := p.client.AllTokens(ctx, p.contract, p.translator.ToNative(account))
	if err != nil {
		return nil, nativeRevert(err)
	}
	return uint256.NewInt(uint64(len(tokens))), nil
}

func (p *Pointer) GetApproved(ctx context.Context, tokenId *uint256.Int) (common.Address, error) {
	res, err := p.client.Approvals(ctx, p.contract, tokenId.Dec())
	if err != nil {
		return common.Address{}, nativeRevert(err)
	}
	if len(res.Approvals) == 0 {
		return common.Address{}, nil
	}
	return p.evmAccount(res.Approvals[0].Spender)
}

func (p *Pointer) IsApprovedForAll(ctx context.Context, owner common.Address, operator common.Address) (bool, error) {
	return p.isOperator(ctx, p.translator.ToNative(owner), operator)
}

func (p *Pointer) isOperator(ctx context.Context, owner string, operator common.Address) (bool, error) {
	operators, err := p.client.AllOperators(ctx, p.contract, owner)
	if err != nil {
		return false, nativeRevert(err)
	}
	for _, op := range operators {
		address, err := p.translator.ParseAny(op)
		if err == nil && address == operator {
			return true, nil
		}
	}
	return false, nil
}

// Approve sets the approved spender of a token. The zero spender revokes the current approval.
func (p *Pointer) Approve(ctx context.Context, env *Env, spender common.Address, tokenId *uint256.Int) error {
	id := tokenId.Dec()
	pre, err := p.tokenState(ctx, id)
	if err != nil {
		return err
	}
	if !pre.Exists {
		return revertf(ReasonNotFound, "token %v: %w", id, native.ErrNotFound)
	}

	caller := p.translator.ToNative(env.Caller)
	op := synth.OpApprove
	switch {
	case spender != (common.Address{}):
		err = p.client.Execute(ctx, p.contract, caller, &native.ExecuteMsg{
			Approve: &native.ApproveMsg{Spender: p.translator.ToNative(spender), TokenId: id},
		})
	case pre.Approved != "":
		op = synth.OpRevoke
		err = p.client.Execute(ctx, p.contract, caller, &native.ExecuteMsg{
			Revoke: &native.RevokeMsg{Spender: pre.Approved, TokenId: id},
		})
	default:
		// nothing to revoke natively, the caller still needs the rights to do so
		op = synth.OpRevoke
		err = p.requireOwnerOrOperator(ctx, pre.Owner, env.Caller)
	}
	if err != nil {
		return nativeRevert(err)
	}

	expected := pre
	expected.Approved = ""
	if op == synth.OpApprove {
		expected.Approved = p.translator.ToNative(spender)
	}
	return p.commit(ctx, env, op, tokenId, pre, expected)
}

func (p *Pointer) SetApprovalForAll(ctx context.Context, env *Env, operator common.Address, approved bool) error {
	caller := p.translator.ToNative(env.Caller)
	msg := &native.ExecuteMsg{}
	op := synth.OpApproveAll
	if approved {
		msg.ApproveAll = &native.OperatorMsg{Operator: p.translator.ToNative(operator)}
	} else {
		op = synth.OpRevokeAll
		msg.RevokeAll = &native.OperatorMsg{Operator: p.translator.ToNative(operator)}
	}
	if err := p.client.Execute(ctx, p.contract, caller, msg); err != nil {
		return nativeRevert(err)
	}

	return p.emit(env, &synth.Transition{
		Op:       op,
		Contract: p.address,
		Owner:    caller,
		Operator: p.translator.ToNative(operator),
	})
}

func (p *Pointer) TransferFrom(ctx context.Context, env *Env, from common.Address, to common.Address, tokenId *uint256.Int) error {
	return p.transfer(ctx, env, from, to, tokenId, false, nil)
}

func (p *Pointer) SafeTransferFrom(ctx context.Context, env *Env, from common.Address, to common.Address, tokenId *uint256.Int, data []byte) error {
	return p.transfer(ctx, env, from, to, tokenId, true, data)
}

func (p *Pointer) transfer(ctx context.Context, env *Env, from common.Address, to common.Address, tokenId *uint256.Int, safe bool, data []byte) error {
	if to == (common.Address{}) {
		return revertf(ReasonInvalidReceiver, "transfer to the zero address")
	}

	id := tokenId.Dec()
	pre, err := p.tokenState(ctx, id)
	if err != nil {
		return err
	}
	if !pre.Exists {
		return revertf(ReasonNotFound, "token %v: %w", id, native.ErrNotFound)
	}
	if owner, err := p.evmAccount(pre.Owner); err != nil || owner != from {
		return revertf(ReasonUnauthorized, "%v is not the owner of token %v: %w", from.Hex(), id, native.ErrUnauthorized)
	}

	sendToContract := false
	if safe && p.receivers != nil {
		sendToContract, err = p.receivers.CheckReceiver(ctx, to)
		if err != nil {
			return err
		}
	}

	caller := p.translator.ToNative(env.Caller)
	recipient := p.translator.ToNative(to)
	msg := &native.ExecuteMsg{}
	if sendToContract {
		msg.SendNft = &native.SendNftMsg{Contract: recipient, TokenId: id, Msg: data}
	} else {
		msg.TransferNft = &native.TransferNftMsg{Recipient: recipient, TokenId: id}
	}
	if err := p.client.Execute(ctx, p.contract, caller, msg); err != nil {
		return nativeRevert(err)
	}

	return p.commit(ctx, env, synth.OpTransfer, tokenId, pre, synth.TokenState{Exists: true, Owner: recipient})
}

// Mint creates a token on the native contract. It is a native operation and not part of the ERC721 surface;
// the devnet uses it to seed tokens and the pointer mirrors it as a Transfer from the zero address.
func (p *Pointer) Mint(ctx context.Context, env *Env, to common.Address, tokenId *uint256.Int, tokenURI string) error {
	id := tokenId.Dec()
	caller := p.translator.ToNative(env.Caller)
	err := p.client.Execute(ctx, p.contract, caller, &native.ExecuteMsg{
		Mint: &native.MintMsg{TokenId: id, Owner: p.translator.ToNative(to), TokenUri: tokenURI},
	})
	if err != nil {
		return nativeRevert(err)
	}
	return p.commit(ctx, env, synth.OpMint, tokenId, synth.TokenState{}, synth.TokenState{Exists: true, Owner: p.translator.ToNative(to)})
}

// commit reads the post state of a token operation and emits the logs of the transition.
// The native operation has committed at this point, so a failed post state query falls back
// to the state implied by the message instead of reverting.
func (p *Pointer) commit(ctx context.Context, env *Env, op synth.Operation, tokenId *uint256.Int, pre synth.TokenState, expected synth.TokenState) error {
	post, err := p.tokenState(ctx, tokenId.Dec())
	if err != nil || !post.Exists {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"op":      op.String(),
			"tokenId": tokenId.Dec(),
		}).Warnf("failed reading post state, using message arguments")
		post = expected
	}
	return p.emit(env, &synth.Transition{
		Op:       op,
		Contract: p.address,
		TokenId:  tokenId,
		Pre:      pre,
		Post:     post,
	})
}

func (p *Pointer) emit(env *Env, transition *synth.Transition) error {
	logs, err := p.synthesizer.Synthesize(transition)
	if err != nil {
		// the native operation already committed, the logs are lost but the call stands
		p.logger.WithError(err).Errorf("failed synthesizing logs for %v", transition.Op)
		return nil
	}
	if env.Logs != nil && len(logs) > 0 {
		env.Logs.EmitLogs(logs)
	}
	p.logger.WithFields(logrus.Fields{
		"op":   transition.Op.String(),
		"logs": len(logs),
	}).Debugf("pointer write committed")
	return nil
}

func (p *Pointer) tokenState(ctx context.Context, tokenId string) (synth.TokenState, error) {
	res, err := p.client.OwnerOf(ctx, p.contract, tokenId)
	if err != nil {
		if native.Classify(err) == native.ErrNotFound {
			return synth.TokenState{}, nil
		}
		return synth.TokenState{}, nativeRevert(err)
	}
	state := synth.TokenState{
		Exists: true,
		Owner:  res.Owner,
	}
	if len(res.Approvals) > 0 {
		state.Approved = res.Approvals[0].Spender
	}
	return state, nil
}

func (p *Pointer) requireOwnerOrOperator(ctx context.Context, owner string, caller common.Address) error {
	ownerAddr, err := p.evmAccount(owner)
	if err != nil {
		return err
	}
	if ownerAddr == caller {
		return nil
	}
	isOperator, err := p.isOperator(ctx, owner, caller)
	if err != nil {
		return err
	}
	if !isOperator {
		return revertf(ReasonUnauthorized, "%v is neither owner nor operator: %w", caller.Hex(), native.ErrUnauthorized)
	}
	return nil
}

func (p *Pointer) evmAccount(nativeId string) (common.Address, error) {
	address, err := p.translator.ParseAny(strings.TrimSpace(nativeId))
	if err != nil {
		return common.Address{}, &RevertError{Reason: ReasonNativeFailure, Err: err}
	}
	return address, nil
}
