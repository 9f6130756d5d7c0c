// Package addrmap derives EVM addresses from native bech32 account ids and back.
//
// The mapping is a pure function of the 20 byte account payload, so any
// syntactically valid identifier translates without prior registration.
package addrmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// AccountLength is the payload size shared by both address spaces.
const AccountLength = common.AddressLength

// ErrMalformed is wrapped by every TranslationError.
var ErrMalformed = errors.New("malformed address")

// TranslationError reports an input that is not a valid identifier in its address space.
type TranslationError struct {
	Input  string
	Reason string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("cannot translate address %q: %s", e.Input, e.Reason)
}

func (e *TranslationError) Unwrap() error {
	return ErrMalformed
}

// Translator maps between bech32 native ids with a fixed human readable prefix and EVM addresses.
type Translator struct {
	prefix string
}

// NewTranslator returns a translator for the given bech32 prefix.
func NewTranslator(prefix string) *Translator {
	return &Translator{
		prefix: strings.ToLower(prefix),
	}
}

// Prefix returns the bech32 human readable part.
func (t *Translator) Prefix() string {
	return t.prefix
}

// ToEVM decodes a native id and returns the EVM address carrying the same payload.
func (t *Translator) ToEVM(nativeId string) (common.Address, error) {
	payload, err := t.decode(nativeId)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(payload), nil
}

// ToNative encodes an EVM address as canonical (lower case) native id.
func (t *Translator) ToNative(address common.Address) string {
	encoded, err := bech32.EncodeFromBase256(t.prefix, address.Bytes())
	if err != nil {
		// only reachable with an invalid prefix, which NewTranslator callers control
		panic(fmt.Sprintf("bech32 encoding with prefix %q failed: %v", t.prefix, err))
	}
	return encoded
}

// Canonical returns the canonical form of a native id.
func (t *Translator) Canonical(nativeId string) (string, error) {
	address, err := t.ToEVM(nativeId)
	if err != nil {
		return "", err
	}
	return t.ToNative(address), nil
}

// IsNative reports whether the input decodes as a native id for this prefix.
func (t *Translator) IsNative(input string) bool {
	_, err := t.decode(input)
	return err == nil
}

// ParseEVM validates a 0x prefixed hex address.
func ParseEVM(input string) (common.Address, error) {
	if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
		return common.Address{}, &TranslationError{Input: input, Reason: "missing 0x prefix"}
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, &TranslationError{Input: input, Reason: "expected 20 byte hex address"}
	}
	return common.HexToAddress(input), nil
}

// ParseAny accepts either a hex EVM address or a native id and returns the EVM address.
func (t *Translator) ParseAny(input string) (common.Address, error) {
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		return ParseEVM(input)
	}
	return t.ToEVM(input)
}

// DecodeContract validates a native contract id and returns its canonical form and payload.
// Contract payloads are not restricted to the account length.
func (t *Translator) DecodeContract(nativeId string) (string, []byte, error) {
	hrp, payload, err := bech32.DecodeToBase256(nativeId)
	if err != nil {
		return "", nil, &TranslationError{Input: nativeId, Reason: err.Error()}
	}
	if hrp != t.prefix {
		return "", nil, &TranslationError{Input: nativeId, Reason: fmt.Sprintf("unexpected prefix %q, want %q", hrp, t.prefix)}
	}
	if len(payload) == 0 {
		return "", nil, &TranslationError{Input: nativeId, Reason: "empty payload"}
	}
	canonical, err := bech32.EncodeFromBase256(t.prefix, payload)
	if err != nil {
		return "", nil, &TranslationError{Input: nativeId, Reason: err.Error()}
	}
	return canonical, payload, nil
}

func (t *Translator) decode(nativeId string) ([]byte, error) {
	hrp, payload, err := bech32.DecodeToBase256(nativeId)
	if err != nil {
		return nil, &TranslationError{Input: nativeId, Reason: err.Error()}
	}
	if hrp != t.prefix {
		return nil, &TranslationError{Input: nativeId, Reason: fmt.Sprintf("unexpected prefix %q, want %q", hrp, t.prefix)}
	}
	if len(payload) != AccountLength {
		return nil, &TranslationError{Input: nativeId, Reason: fmt.Sprintf("payload is %d bytes, want %d", len(payload), AccountLength)}
	}
	return payload, nil
}
