package pointer

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethpandaops/pointerbridge/native"
)

// ErrExecutionReverted is wrapped by every RevertError.
var ErrExecutionReverted = errors.New("execution reverted")

// Revert reasons.
const (
	ReasonUnauthorized    = "Unauthorized"
	ReasonNotFound        = "NotFound"
	ReasonNoContract      = "NoContract"
	ReasonInvalidMsg      = "InvalidMessage"
	ReasonInvalidOwner    = "InvalidOwner"
	ReasonInvalidReceiver = "InvalidReceiver"
	ReasonInvalidInput    = "InvalidInput"
	ReasonReadOnly        = "WriteProtection"
	ReasonUnknownMethod   = "UnknownMethod"
	ReasonNativeFailure   = "NativeFailure"
)

var errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

// RevertError is a failed pointer call. The call left no state change and emitted no log.
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution reverted: %v: %v", e.Reason, e.Err)
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecutionReverted}
	}
	return []error{ErrExecutionReverted, e.Err}
}

// RevertData is the ABI encoding of Error(reason) returned to EVM callers.
func (e *RevertError) RevertData() []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(e.Reason)
	if err != nil {
		return append([]byte{}, errorSelector...)
	}
	return append(append([]byte{}, errorSelector...), packed...)
}

func revertf(reason string, format string, args ...interface{}) *RevertError {
	return &RevertError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// nativeRevert turns a failed native execute or query into a revert naming the native reason.
func nativeRevert(err error) *RevertError {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert
	}

	sentinel := native.Classify(err)
	reason := ReasonNativeFailure
	switch sentinel {
	case native.ErrUnauthorized:
		reason = ReasonUnauthorized
	case native.ErrNotFound:
		reason = ReasonNotFound
	case native.ErrNoContract:
		reason = ReasonNoContract
	case native.ErrInvalidMsg:
		reason = ReasonInvalidMsg
	}
	if sentinel != nil && !errors.Is(err, sentinel) {
		err = fmt.Errorf("%w: %v", sentinel, err)
	}
	return &RevertError{Reason: reason, Err: err}
}
