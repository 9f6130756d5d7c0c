package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/registry"
)

func execute(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTranslateCommand(t *testing.T) {
	address := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	nativeId := addrmap.NewTranslator("wasm").ToNative(address)

	out, err := execute(t, "translate", address.Hex())
	require.NoError(t, err)
	assert.Equal(t, nativeId, out)

	out, err = execute(t, "translate", nativeId)
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), out)

	_, err = execute(t, "translate", "0x1234")
	assert.Error(t, err)
}

func TestPointerAddressCommand(t *testing.T) {
	contract := addrmap.NewTranslator("wasm").ToNative(common.HexToAddress("0x000000000000000000000000000000000000c721"))

	out, err := execute(t, "pointer-address", strings.ToUpper(contract))
	require.NoError(t, err)
	assert.Equal(t, registry.PointerAddress(contract).Hex(), out)
}
