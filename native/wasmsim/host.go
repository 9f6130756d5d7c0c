// Package wasmsim is a reference CW721 host that keeps contract state in pebble.
// It follows the cw721-base authorization rules and serves devnets and tests.
package wasmsim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/kvdb"
	"github.com/ethpandaops/pointerbridge/native"
)

var logger = logrus.StandardLogger().WithField("module", "wasmsim")

const stateVersion = 1

const (
	defaultLimit = 10
	maxLimit     = 100
)

type contractState struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Minter string `json:"minter"`
}

type tokenState struct {
	Owner    string   `json:"owner"`
	Approved []string `json:"approvals,omitempty"`
	TokenUri string   `json:"token_uri,omitempty"`
}

// Host implements native.Host on top of a kvdb engine.
type Host struct {
	kv    *kvdb.Engine
	mutex sync.Mutex
}

var _ native.Host = (*Host)(nil)

func NewHost(kv *kvdb.Engine) *Host {
	return &Host{
		kv: kv,
	}
}

// Instantiate creates a CW721 contract at the given address.
func (h *Host) Instantiate(ctx context.Context, contract string, name string, symbol string, minter string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	key := kvdb.MakeKey(kvdb.KeyNamespaceNativeContract, []byte(contract))
	if h.kv.Has(key) {
		return fmt.Errorf("contract %v already instantiated", contract)
	}

	data, err := json.Marshal(&contractState{Name: name, Symbol: symbol, Minter: minter})
	if err != nil {
		return err
	}
	err = h.kv.Set(key, stateVersion, data)
	if err != nil {
		return fmt.Errorf("failed to store contract %v: %w", contract, err)
	}

	logger.WithFields(logrus.Fields{
		"contract": contract,
		"name":     name,
		"symbol":   symbol,
	}).Infof("instantiated cw721 contract")
	return nil
}

// Execute applies one execute message. Writes are collected in a batch that is only committed on success.
func (h *Host) Execute(ctx context.Context, contract string, sender string, msg []byte) ([]byte, error) {
	execMsg := &native.ExecuteMsg{}
	if err := json.Unmarshal(msg, execMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", native.ErrInvalidMsg, err)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	info, err := h.loadContract(contract)
	if err != nil {
		return nil, err
	}

	batch := h.kv.NewBatch()
	committed := false
	defer func() {
		if !committed {
			batch.Discard()
		}
	}()

	switch {
	case execMsg.Mint != nil:
		err = h.execMint(batch, contract, info, sender, execMsg.Mint)
	case execMsg.TransferNft != nil:
		err = h.execTransfer(batch, contract, sender, execMsg.TransferNft.TokenId, execMsg.TransferNft.Recipient)
	case execMsg.SendNft != nil:
		err = h.execSend(batch, contract, sender, execMsg.SendNft)
	case execMsg.Approve != nil:
		err = h.execApprove(batch, contract, sender, execMsg.Approve.TokenId, execMsg.Approve.Spender, true)
	case execMsg.Revoke != nil:
		err = h.execApprove(batch, contract, sender, execMsg.Revoke.TokenId, execMsg.Revoke.Spender, false)
	case execMsg.ApproveAll != nil:
		err = h.execOperator(batch, contract, sender, execMsg.ApproveAll.Operator, true)
	case execMsg.RevokeAll != nil:
		err = h.execOperator(batch, contract, sender, execMsg.RevokeAll.Operator, false)
	default:
		err = fmt.Errorf("%w: empty execute message", native.ErrInvalidMsg)
	}
	if err != nil {
		return nil, err
	}

	committed = true
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %v: %w", execMsg.Name(), err)
	}

	logger.WithFields(logrus.Fields{
		"contract": contract,
		"sender":   sender,
		"msg":      execMsg.Name(),
	}).Debugf("executed native message")
	return []byte("{}"), nil
}

func (h *Host) execMint(batch *kvdb.Batch, contract string, info *contractState, sender string, msg *native.MintMsg) error {
	if sender != info.Minter {
		return fmt.Errorf("caller is not the contract minter: %w", native.ErrUnauthorized)
	}
	if msg.TokenId == "" || msg.Owner == "" {
		return fmt.Errorf("%w: mint requires token_id and owner", native.ErrInvalidMsg)
	}
	if h.kv.Has(tokenKey(contract, msg.TokenId)) {
		return fmt.Errorf("%w: token_id %v already claimed", native.ErrInvalidMsg, msg.TokenId)
	}

	token := &tokenState{Owner: msg.Owner, TokenUri: msg.TokenUri}
	return h.writeToken(batch, contract, msg.TokenId, token, "")
}

func (h *Host) execTransfer(batch *kvdb.Batch, contract string, sender string, tokenId string, recipient string) error {
	if recipient == "" {
		return fmt.Errorf("%w: missing recipient", native.ErrInvalidMsg)
	}
	token, err := h.loadToken(contract, tokenId)
	if err != nil {
		return err
	}
	if !h.canSend(contract, sender, token) {
		return fmt.Errorf("caller %v may not transfer token %v: %w", sender, tokenId, native.ErrUnauthorized)
	}

	previousOwner := token.Owner
	token.Owner = recipient
	token.Approved = nil
	return h.writeToken(batch, contract, tokenId, token, previousOwner)
}

func (h *Host) execSend(batch *kvdb.Batch, contract string, sender string, msg *native.SendNftMsg) error {
	if !h.kv.Has(contractKey(msg.Contract)) {
		return fmt.Errorf("receiving contract %v: %w", msg.Contract, native.ErrNoContract)
	}
	return h.execTransfer(batch, contract, sender, msg.TokenId, msg.Contract)
}

func (h *Host) execApprove(batch *kvdb.Batch, contract string, sender string, tokenId string, spender string, grant bool) error {
	if spender == "" {
		return fmt.Errorf("%w: missing spender", native.ErrInvalidMsg)
	}
	token, err := h.loadToken(contract, tokenId)
	if err != nil {
		return err
	}
	if token.Owner != sender && !h.isOperator(contract, token.Owner, sender) {
		return fmt.Errorf("caller %v may not approve token %v: %w", sender, tokenId, native.ErrUnauthorized)
	}

	if grant {
		// a token has a single approved spender
		token.Approved = []string{spender}
	} else {
		approved := []string{}
		for _, current := range token.Approved {
			if current != spender {
				approved = append(approved, current)
			}
		}
		token.Approved = approved
	}
	return h.writeToken(batch, contract, tokenId, token, token.Owner)
}

func (h *Host) execOperator(batch *kvdb.Batch, contract string, sender string, operator string, grant bool) error {
	if operator == "" {
		return fmt.Errorf("%w: missing operator", native.ErrInvalidMsg)
	}
	key := operatorKey(contract, sender, operator)
	if grant {
		return batch.Set(key, stateVersion, []byte{1})
	}
	return batch.Delete(key)
}

func (h *Host) canSend(contract string, sender string, token *tokenState) bool {
	if token.Owner == sender {
		return true
	}
	for _, spender := range token.Approved {
		if spender == sender {
			return true
		}
	}
	return h.isOperator(contract, token.Owner, sender)
}

func (h *Host) isOperator(contract string, owner string, operator string) bool {
	return h.kv.Has(operatorKey(contract, owner, operator))
}

func (h *Host) writeToken(batch *kvdb.Batch, contract string, tokenId string, token *tokenState, previousOwner string) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := batch.Set(tokenKey(contract, tokenId), stateVersion, data); err != nil {
		return err
	}
	if previousOwner != token.Owner {
		if previousOwner != "" {
			if err := batch.Delete(ownerKey(contract, previousOwner, tokenId)); err != nil {
				return err
			}
		}
		if err := batch.Set(ownerKey(contract, token.Owner, tokenId), stateVersion, nil); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) loadContract(contract string) (*contractState, error) {
	data, _, err := h.kv.Get(contractKey(contract))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%v: %w", contract, native.ErrNoContract)
	}
	info := &contractState{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("corrupt contract state for %v: %w", contract, err)
	}
	return info, nil
}

func (h *Host) loadToken(contract string, tokenId string) (*tokenState, error) {
	data, _, err := h.kv.Get(tokenKey(contract, tokenId))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("token %v %w", tokenId, native.ErrNotFound)
	}
	token := &tokenState{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("corrupt token state for %v: %w", tokenId, err)
	}
	return token, nil
}

func contractKey(contract string) []byte {
	return kvdb.MakeKey(kvdb.KeyNamespaceNativeContract, []byte(contract))
}

func tokenKey(contract string, tokenId string) []byte {
	return kvdb.MakeKey(kvdb.KeyNamespaceNativeToken, []byte(contract), []byte(tokenId))
}

func ownerKey(contract string, owner string, tokenId string) []byte {
	return kvdb.MakeKey(kvdb.KeyNamespaceNativeOwner, []byte(contract), []byte(owner), []byte(tokenId))
}

func operatorKey(contract string, owner string, operator string) []byte {
	return kvdb.MakeKey(kvdb.KeyNamespaceNativeOperator, []byte(contract), []byte(owner), []byte(operator))
}

func clampLimit(limit uint32) int {
	if limit == 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return int(limit)
}
