// Package native describes the CW721 contract host the pointer forwards to.
package native

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrNoContract   = errors.New("no such contract")
	ErrInvalidMsg   = errors.New("invalid message")
)

// Host executes and queries native contracts. Messages are CW721 JSON.
// Implementations must apply an execute atomically: a failed execute leaves no state behind.
type Host interface {
	Execute(ctx context.Context, contract string, sender string, msg []byte) ([]byte, error)
	Query(ctx context.Context, contract string, req []byte) ([]byte, error)
}

// Classify maps a native failure to one of the package sentinels, if it matches any.
// Hosts that only report plain strings (e.g. wasm error messages) are matched by text.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrUnauthorized, ErrNotFound, ErrNoContract, ErrInvalidMsg} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "caller is not"):
		return ErrUnauthorized
	case strings.Contains(msg, "not found"):
		return ErrNotFound
	case strings.Contains(msg, "no such contract"):
		return ErrNoContract
	}
	return nil
}
