package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/pointerbridge/config"
	"github.com/ethpandaops/pointerbridge/types"
)

// Config is the globally accessible configuration
var Config *types.Config

// ReadConfig will process a configuration
func ReadConfig(cfg *types.Config, path string) error {
	err := readConfigFile(cfg, path)
	if err != nil {
		return err
	}

	err = readConfigEnv(cfg)
	if err != nil {
		return fmt.Errorf("error reading config from environment: %w", err)
	}

	applyConfigDefaults(cfg)

	switch cfg.Chain.Backend {
	case "devnet":
	case "upstream":
		if cfg.Upstream.Endpoint == "" {
			return fmt.Errorf("chain.backend upstream requires upstream.endpoint")
		}
	default:
		return fmt.Errorf("invalid chain.backend %q (expected devnet or upstream)", cfg.Chain.Backend)
	}

	switch cfg.Gateway.SyntheticInStandard {
	case "none", "receipts", "all":
	default:
		return fmt.Errorf("invalid gateway.syntheticInStandard %q (expected none, receipts or all)", cfg.Gateway.SyntheticInStandard)
	}

	if cfg.Gateway.StandardNamespace == cfg.Gateway.ExtendedNamespace {
		return fmt.Errorf("standard and extended rpc namespace must differ (both %q)", cfg.Gateway.StandardNamespace)
	}

	logrus.WithFields(logrus.Fields{
		"chainId":             cfg.Chain.ChainID,
		"bech32Prefix":        cfg.Chain.Bech32Prefix,
		"standardNamespace":   cfg.Gateway.StandardNamespace,
		"extendedNamespace":   cfg.Gateway.ExtendedNamespace,
		"syntheticInStandard": cfg.Gateway.SyntheticInStandard,
		"registryEngine":      cfg.Registry.Engine,
		"logIndexEngine":      cfg.LogIndex.Engine,
	}).Infof("did init config")

	return nil
}

func readConfigFile(cfg *types.Config, path string) error {
	if path == "" {
		return yaml.Unmarshal([]byte(config.DefaultConfigYml), cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %v", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(cfg)
	if err != nil {
		return fmt.Errorf("error decoding config file %v: %v", path, err)
	}

	return nil
}

func readConfigEnv(cfg *types.Config) error {
	return envconfig.Process("", cfg)
}

func applyConfigDefaults(cfg *types.Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8545"
	}
	if cfg.Server.HttpWriteTimeout == 0 {
		cfg.Server.HttpWriteTimeout = time.Second * 15
	}
	if cfg.Server.HttpReadTimeout == 0 {
		cfg.Server.HttpReadTimeout = time.Second * 15
	}
	if cfg.Server.HttpIdleTimeout == 0 {
		cfg.Server.HttpIdleTimeout = time.Second * 60
	}
	if cfg.Chain.Backend == "" {
		cfg.Chain.Backend = "devnet"
	}
	if cfg.Chain.Bech32Prefix == "" {
		cfg.Chain.Bech32Prefix = "wasm"
	}
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 1337
	}
	if cfg.Chain.GasPerCall == 0 {
		cfg.Chain.GasPerCall = 100000
	}
	cfg.Gateway.StandardNamespace = strings.TrimSuffix(cfg.Gateway.StandardNamespace, "_")
	cfg.Gateway.ExtendedNamespace = strings.TrimSuffix(cfg.Gateway.ExtendedNamespace, "_")
	if cfg.Gateway.StandardNamespace == "" {
		cfg.Gateway.StandardNamespace = "eth"
	}
	if cfg.Gateway.ExtendedNamespace == "" {
		cfg.Gateway.ExtendedNamespace = "ext"
	}
	if cfg.Gateway.SyntheticInStandard == "" {
		cfg.Gateway.SyntheticInStandard = "none"
	}
	if cfg.Gateway.MaxBlockRange == 0 {
		cfg.Gateway.MaxBlockRange = 1000
	}
	if cfg.Gateway.MaxBatchSize == 0 {
		cfg.Gateway.MaxBatchSize = 100
	}
	if cfg.Registry.Engine == "" {
		cfg.Registry.Engine = "memory"
	}
	if cfg.LogIndex.Engine == "" {
		cfg.LogIndex.Engine = "memory"
	}
	if cfg.Cache.LocalSize == 0 {
		cfg.Cache.LocalSize = 64
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
}
