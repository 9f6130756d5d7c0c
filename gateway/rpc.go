package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/pointer"
	"github.com/ethpandaops/pointerbridge/registry"
)

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeServer         = -32000
	ErrCodeRateLimit      = -32005
	ErrCodeReverted       = 3
)

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC 2.0 response. Result stays present as null when empty.
type RPCResponse struct {
	ID      json.RawMessage `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// FilterError rejects a malformed or too wide log filter.
type FilterError struct {
	Reason string
}

func (e *FilterError) Error() string {
	return "invalid filter: " + e.Reason
}

func filterErrorf(format string, args ...interface{}) *FilterError {
	return &FilterError{Reason: fmt.Sprintf(format, args...)}
}

func invalidParamsf(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func newResponse(id json.RawMessage) *RPCResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &RPCResponse{
		ID:      id,
		Jsonrpc: "2.0",
	}
}

func errorResponse(id json.RawMessage, err *RPCError) *RPCResponse {
	res := newResponse(id)
	res.Error = err
	return res
}

// toRPCError maps handler errors onto JSON-RPC error codes.
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return &RPCError{Code: ErrCodeInvalidParams, Message: filterErr.Error()}
	}

	var revertErr *pointer.RevertError
	if errors.As(err, &revertErr) {
		return &RPCError{
			Code:    ErrCodeReverted,
			Message: "execution reverted: " + revertErr.Reason,
			Data:    hexutil.Encode(revertErr.RevertData()),
		}
	}

	var translationErr *addrmap.TranslationError
	if errors.As(err, &translationErr) {
		return &RPCError{Code: ErrCodeInvalidParams, Message: translationErr.Error()}
	}

	var deploymentErr *registry.DeploymentError
	if errors.As(err, &deploymentErr) {
		return &RPCError{Code: ErrCodeServer, Message: deploymentErr.Error()}
	}

	return &RPCError{Code: ErrCodeServer, Message: err.Error()}
}

// positionalParams splits a params array. Missing params decode as null.
func positionalParams(raw json.RawMessage, min int, max int) ([]json.RawMessage, error) {
	params := []json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, invalidParamsf("params must be an array")
		}
	}
	if len(params) < min {
		return nil, invalidParamsf("missing value for required argument %v", len(params))
	}
	if len(params) > max {
		return nil, invalidParamsf("too many arguments, want at most %v", max)
	}
	for len(params) < max {
		params = append(params, json.RawMessage("null"))
	}
	return params, nil
}

func decodeParam(raw json.RawMessage, index int, value interface{}) error {
	if err := json.Unmarshal(raw, value); err != nil {
		return invalidParamsf("invalid argument %v: %v", index, err)
	}
	return nil
}
