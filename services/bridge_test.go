package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/gateway"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/registry"
	"github.com/ethpandaops/pointerbridge/types"
	"github.com/ethpandaops/pointerbridge/utils"
)

func testConfig(t *testing.T) *types.Config {
	cfg := &types.Config{}
	require.NoError(t, utils.ReadConfig(cfg, ""))

	translator := addrmap.NewTranslator(cfg.Chain.Bech32Prefix)
	cfg.Native.Contract = translator.ToNative(common.HexToAddress("0x000000000000000000000000000000000000c721"))
	cfg.Native.Minter = translator.ToNative(common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	return cfg
}

func TestBridgeEngines(t *testing.T) {
	tests := []struct {
		name           string
		registryEngine string
		logIndexEngine string
	}{
		{name: "memory", registryEngine: "memory", logIndexEngine: "memory"},
		{name: "pebble index", registryEngine: "memory", logIndexEngine: "pebble"},
		{name: "sql", registryEngine: "db", logIndexEngine: "db"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Registry.Engine = tc.registryEngine
			cfg.LogIndex.Engine = tc.logIndexEngine
			cfg.Database.Engine = "sqlite"
			cfg.Database.Sqlite = &types.SqliteDatabaseConfig{File: ":memory:"}

			logger, _ := test.NewNullLogger()
			bridge, err := NewBridge(context.Background(), logger, cfg)
			require.NoError(t, err)
			defer bridge.Close()
			bridge.Start()

			require.NotNil(t, bridge.Engine)
			assert.Nil(t, bridge.Upstream)

			link, err := bridge.Registry.Lookup(context.Background(), cfg.Native.Contract)
			require.NoError(t, err)
			require.NotNil(t, link)
			assert.Equal(t, registry.PointerAddress(cfg.Native.Contract), link.Pointer)

			msg, err := json.Marshal(&native.ExecuteMsg{Mint: &native.MintMsg{TokenId: "1", Owner: cfg.Native.Minter}})
			require.NoError(t, err)
			hash, err := bridge.Engine.ExecuteNative(context.Background(), cfg.Native.Minter, cfg.Native.Contract, msg)
			require.NoError(t, err)

			res := bridge.Gateway.Handle(context.Background(), &gateway.RPCRequest{
				ID:      json.RawMessage("1"),
				Jsonrpc: "2.0",
				Method:  "ext_getTransactionReceipt",
				Params:  json.RawMessage(`["` + hash.Hex() + `"]`),
			})
			require.Nil(t, res.Error)
			receipt := map[string]interface{}{}
			require.NoError(t, json.Unmarshal(res.Result, &receipt))
			assert.Len(t, receipt["logs"], 1)
		})
	}
}

func TestBridgeRejectsUnknownEngines(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := testConfig(t)
	cfg.LogIndex.Engine = "leveldb"
	_, err := NewBridge(context.Background(), logger, cfg)
	assert.ErrorContains(t, err, "unknown log index engine")

	cfg = testConfig(t)
	cfg.Registry.Engine = "etcd"
	_, err = NewBridge(context.Background(), logger, cfg)
	assert.ErrorContains(t, err, "unknown registry engine")
}

func TestBridgeRequiresMinterForNewContract(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := testConfig(t)
	cfg.Native.Minter = ""
	_, err := NewBridge(context.Background(), logger, cfg)
	assert.ErrorContains(t, err, "native.minter")
}
