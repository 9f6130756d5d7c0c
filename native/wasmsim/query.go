package wasmsim

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethpandaops/pointerbridge/kvdb"
	"github.com/ethpandaops/pointerbridge/native"
)

// Query answers one CW721 query message.
func (h *Host) Query(ctx context.Context, contract string, req []byte) ([]byte, error) {
	queryMsg := &native.QueryMsg{}
	if err := json.Unmarshal(req, queryMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", native.ErrInvalidMsg, err)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	info, err := h.loadContract(contract)
	if err != nil {
		return nil, err
	}

	var res interface{}
	switch {
	case queryMsg.ContractInfo != nil:
		res = &native.ContractInfoResponse{Name: info.Name, Symbol: info.Symbol}
	case queryMsg.OwnerOf != nil:
		token, err := h.loadToken(contract, queryMsg.OwnerOf.TokenId)
		if err != nil {
			return nil, err
		}
		res = &native.OwnerOfResponse{Owner: token.Owner, Approvals: approvalList(token)}
	case queryMsg.NftInfo != nil:
		token, err := h.loadToken(contract, queryMsg.NftInfo.TokenId)
		if err != nil {
			return nil, err
		}
		res = &native.NftInfoResponse{TokenUri: token.TokenUri}
	case queryMsg.Approvals != nil:
		token, err := h.loadToken(contract, queryMsg.Approvals.TokenId)
		if err != nil {
			return nil, err
		}
		res = &native.ApprovalsResponse{Approvals: approvalList(token)}
	case queryMsg.Tokens != nil:
		tokens, err := h.listKeys(kvdb.PrefixKey(kvdb.KeyNamespaceNativeOwner, []byte(contract), []byte(queryMsg.Tokens.Owner)), queryMsg.Tokens.StartAfter, queryMsg.Tokens.Limit)
		if err != nil {
			return nil, err
		}
		res = &native.TokensResponse{Tokens: tokens}
	case queryMsg.AllOperators != nil:
		operators, err := h.listKeys(kvdb.PrefixKey(kvdb.KeyNamespaceNativeOperator, []byte(contract), []byte(queryMsg.AllOperators.Owner)), queryMsg.AllOperators.StartAfter, queryMsg.AllOperators.Limit)
		if err != nil {
			return nil, err
		}
		approvals := make([]native.Approval, len(operators))
		for idx, operator := range operators {
			approvals[idx] = native.Approval{Spender: operator}
		}
		res = &native.OperatorsResponse{Operators: approvals}
	default:
		return nil, fmt.Errorf("%w: empty query message", native.ErrInvalidMsg)
	}

	return json.Marshal(res)
}

// listKeys returns the key suffixes below prefix, paginated like cw721 range queries.
func (h *Host) listKeys(prefix []byte, startAfter string, limit uint32) ([]string, error) {
	maxEntries := clampLimit(limit)
	var start []byte
	if startAfter != "" {
		start = append(append([]byte{}, prefix...), startAfter...)
	}

	entries := []string{}
	err := h.kv.Iterate(prefix, start, func(key []byte, _ []byte) bool {
		entries = append(entries, string(key[len(prefix):]))
		return len(entries) < maxEntries
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func approvalList(token *tokenState) []native.Approval {
	approvals := make([]native.Approval, len(token.Approved))
	for idx, spender := range token.Approved {
		approvals[idx] = native.Approval{Spender: spender}
	}
	return approvals
}
