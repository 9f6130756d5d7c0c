package native

import (
	"encoding/json"
)

// ExecuteMsg is the CW721 execute envelope; exactly one field is set.
type ExecuteMsg struct {
	Mint        *MintMsg        `json:"mint,omitempty"`
	TransferNft *TransferNftMsg `json:"transfer_nft,omitempty"`
	SendNft     *SendNftMsg     `json:"send_nft,omitempty"`
	Approve     *ApproveMsg     `json:"approve,omitempty"`
	Revoke      *RevokeMsg      `json:"revoke,omitempty"`
	ApproveAll  *OperatorMsg    `json:"approve_all,omitempty"`
	RevokeAll   *OperatorMsg    `json:"revoke_all,omitempty"`
}

type MintMsg struct {
	TokenId  string `json:"token_id"`
	Owner    string `json:"owner"`
	TokenUri string `json:"token_uri,omitempty"`
}

type TransferNftMsg struct {
	Recipient string `json:"recipient"`
	TokenId   string `json:"token_id"`
}

type SendNftMsg struct {
	Contract string `json:"contract"`
	TokenId  string `json:"token_id"`
	Msg      []byte `json:"msg"`
}

type ApproveMsg struct {
	Spender string `json:"spender"`
	TokenId string `json:"token_id"`
}

type RevokeMsg struct {
	Spender string `json:"spender"`
	TokenId string `json:"token_id"`
}

type OperatorMsg struct {
	Operator string `json:"operator"`
}

// QueryMsg is the CW721 query envelope; exactly one field is set.
type QueryMsg struct {
	OwnerOf      *OwnerOfQuery      `json:"owner_of,omitempty"`
	NftInfo      *TokenQuery        `json:"nft_info,omitempty"`
	Tokens       *TokensQuery       `json:"tokens,omitempty"`
	Approvals    *TokenQuery        `json:"approvals,omitempty"`
	AllOperators *AllOperatorsQuery `json:"all_operators,omitempty"`
	ContractInfo *struct{}          `json:"contract_info,omitempty"`
}

type OwnerOfQuery struct {
	TokenId        string `json:"token_id"`
	IncludeExpired bool   `json:"include_expired,omitempty"`
}

type TokenQuery struct {
	TokenId string `json:"token_id"`
}

type TokensQuery struct {
	Owner      string `json:"owner"`
	StartAfter string `json:"start_after,omitempty"`
	Limit      uint32 `json:"limit,omitempty"`
}

type AllOperatorsQuery struct {
	Owner          string `json:"owner"`
	IncludeExpired bool   `json:"include_expired,omitempty"`
	StartAfter     string `json:"start_after,omitempty"`
	Limit          uint32 `json:"limit,omitempty"`
}

type Approval struct {
	Spender string `json:"spender"`
}

type OwnerOfResponse struct {
	Owner     string     `json:"owner"`
	Approvals []Approval `json:"approvals"`
}

type NftInfoResponse struct {
	TokenUri  string          `json:"token_uri"`
	Extension json.RawMessage `json:"extension,omitempty"`
}

type TokensResponse struct {
	Tokens []string `json:"tokens"`
}

type ApprovalsResponse struct {
	Approvals []Approval `json:"approvals"`
}

type OperatorsResponse struct {
	Operators []Approval `json:"operators"`
}

type ContractInfoResponse struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Name returns the message variant, e.g. "transfer_nft".
func (m *ExecuteMsg) Name() string {
	switch {
	case m.Mint != nil:
		return "mint"
	case m.TransferNft != nil:
		return "transfer_nft"
	case m.SendNft != nil:
		return "send_nft"
	case m.Approve != nil:
		return "approve"
	case m.Revoke != nil:
		return "revoke"
	case m.ApproveAll != nil:
		return "approve_all"
	case m.RevokeAll != nil:
		return "revoke_all"
	}
	return ""
}

// Name returns the query variant, e.g. "owner_of".
func (q *QueryMsg) Name() string {
	switch {
	case q.OwnerOf != nil:
		return "owner_of"
	case q.NftInfo != nil:
		return "nft_info"
	case q.Tokens != nil:
		return "tokens"
	case q.Approvals != nil:
		return "approvals"
	case q.AllOperators != nil:
		return "all_operators"
	case q.ContractInfo != nil:
		return "contract_info"
	}
	return ""
}
