// Package services assembles the bridge components from the configuration.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/cache"
	"github.com/ethpandaops/pointerbridge/chain"
	"github.com/ethpandaops/pointerbridge/clients/execution"
	"github.com/ethpandaops/pointerbridge/db"
	"github.com/ethpandaops/pointerbridge/gateway"
	"github.com/ethpandaops/pointerbridge/kvdb"
	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/native/wasmsim"
	"github.com/ethpandaops/pointerbridge/pointer"
	"github.com/ethpandaops/pointerbridge/registry"
	"github.com/ethpandaops/pointerbridge/types"
)

// Bridge holds the running components. Engine is nil with the upstream backend, Upstream with the devnet.
type Bridge struct {
	logger logrus.FieldLogger
	config *types.Config

	Translator *addrmap.Translator
	Host       *wasmsim.Host
	Client     *native.Client
	Registry   *registry.Registry
	Router     *pointer.Router
	Index      *logindex.Index
	Engine     *chain.Engine
	Upstream   *execution.Client
	Gateway    *gateway.Gateway

	kv        *kvdb.Engine
	cache     *cache.TieredCache
	limiter   *gateway.CallRateLimiter
	dbEnabled bool
}

func NewBridge(ctx context.Context, logger logrus.FieldLogger, cfg *types.Config) (*Bridge, error) {
	bridge := &Bridge{
		logger:     logger,
		config:     cfg,
		Translator: addrmap.NewTranslator(cfg.Chain.Bech32Prefix),
	}
	if err := bridge.setup(ctx); err != nil {
		bridge.Close()
		return nil, err
	}
	return bridge, nil
}

func (b *Bridge) setup(ctx context.Context) error {
	cfg := b.config

	if cfg.Registry.Engine == "db" || cfg.LogIndex.Engine == "db" {
		if err := db.InitDB(&cfg.Database); err != nil {
			return fmt.Errorf("error initializing database: %w", err)
		}
		b.dbEnabled = true
	}

	kv, err := kvdb.NewEngine(cfg.Pebble)
	if err != nil {
		return fmt.Errorf("error opening pebble: %w", err)
	}
	b.kv = kv
	b.Host = wasmsim.NewHost(kv)
	b.Client = native.NewClient(b.Host)

	var store registry.Store
	switch cfg.Registry.Engine {
	case "memory":
		store = registry.NewMemoryStore()
	case "db":
		store = registry.NewDbStore()
	default:
		return fmt.Errorf("unknown registry engine %q", cfg.Registry.Engine)
	}
	verifyClient := b.Client
	if !cfg.Registry.VerifyContracts {
		verifyClient = nil
	}
	b.Registry = registry.NewRegistry(moduleLogger("registry"), store, b.Translator, verifyClient)

	var indexEngine logindex.Engine
	switch cfg.LogIndex.Engine {
	case "memory":
	case "db":
		indexEngine = logindex.NewDbEngine()
	case "pebble":
		indexEngine = logindex.NewPebbleEngine(kv)
	default:
		return fmt.Errorf("unknown log index engine %q", cfg.LogIndex.Engine)
	}
	if b.Index, err = logindex.NewIndex(moduleLogger("logindex"), indexEngine, cfg.LogIndex.InMemoryBlocks); err != nil {
		return err
	}

	b.Router = pointer.NewRouter(moduleLogger("pointer"), b.Registry, b.Client, b.Translator)

	if err := b.initContract(ctx); err != nil {
		return err
	}

	var backend gateway.ChainBackend
	switch cfg.Chain.Backend {
	case "upstream":
		upstream, err := execution.NewClient(moduleLogger("upstream"), cfg.Upstream.Endpoint, cfg.Upstream.Headers, cfg.Upstream.Ssh, b.Router)
		if err != nil {
			return fmt.Errorf("error creating upstream client: %w", err)
		}
		b.Upstream = upstream
		if err := upstream.Initialize(ctx); err != nil {
			return fmt.Errorf("error connecting upstream node: %w", err)
		}
		backend = upstream
	default:
		b.Engine, err = chain.NewEngine(moduleLogger("chain"), chain.Config{
			ChainID:       cfg.Chain.ChainID,
			BlockInterval: cfg.Chain.BlockInterval,
			GasPerCall:    cfg.Chain.GasPerCall,
		}, b.Router, b.Client, b.Translator, b.Index)
		if err != nil {
			return err
		}
		backend = b.Engine
	}

	b.Gateway, err = gateway.NewGateway(moduleLogger("gateway"), gateway.Config{
		StandardNamespace:   cfg.Gateway.StandardNamespace,
		ExtendedNamespace:   cfg.Gateway.ExtendedNamespace,
		SyntheticInStandard: gateway.SyntheticPolicy(cfg.Gateway.SyntheticInStandard),
		MaxBlockRange:       cfg.Gateway.MaxBlockRange,
		MaxBatchSize:        cfg.Gateway.MaxBatchSize,
		LogRequests:         cfg.Gateway.LogRequests,
	}, backend, b.Index, b.Registry, b.Translator)
	if err != nil {
		return err
	}

	if cfg.Cache.Enabled {
		tieredCache, err := cache.NewTieredCache(cfg.Cache.LocalSize, cfg.Cache.RedisAddr, cfg.Cache.RedisPrefix)
		if err != nil {
			return fmt.Errorf("error initializing response cache: %w", err)
		}
		b.cache = tieredCache
		b.Gateway.SetResponseCache(gateway.NewResponseCache(moduleLogger("cache"), tieredCache, cfg.Cache.TTL))
	}
	if cfg.RateLimit.Enabled {
		b.limiter = gateway.NewCallRateLimiter(cfg.RateLimit.ProxyCount, cfg.RateLimit.Rate, cfg.RateLimit.Burst)
		b.Gateway.SetRateLimiter(b.limiter)
	}
	if cfg.Upstream.Endpoint != "" && cfg.Chain.Backend != "upstream" {
		b.Gateway.SetUpstreamProxy(gateway.NewUpstreamProxy(moduleLogger("proxy"), cfg.Upstream.Endpoint, cfg.Upstream.Headers, cfg.Upstream.Timeout))
	}

	return nil
}

// initContract instantiates the configured devnet contract and registers its pointer.
func (b *Bridge) initContract(ctx context.Context) error {
	cfg := b.config.Native
	if cfg.Contract == "" {
		return nil
	}

	_, err := b.Client.ContractInfo(ctx, cfg.Contract)
	if errors.Is(native.Classify(err), native.ErrNoContract) {
		minter := cfg.Minter
		if minter == "" {
			return fmt.Errorf("native.minter is required to instantiate %v", cfg.Contract)
		}
		if err := b.Host.Instantiate(ctx, cfg.Contract, cfg.ContractName, cfg.ContractSymbol, minter); err != nil {
			return fmt.Errorf("error instantiating %v: %w", cfg.Contract, err)
		}
		b.logger.WithField("contract", cfg.Contract).Info("instantiated devnet contract")
	} else if err != nil {
		return err
	}

	pointerAddr, err := b.Registry.Register(ctx, cfg.Contract)
	if err != nil {
		return err
	}
	b.logger.WithFields(logrus.Fields{
		"contract": cfg.Contract,
		"pointer":  pointerAddr.Hex(),
	}).Info("devnet contract ready")
	return nil
}

func (b *Bridge) Start() {
	if b.Engine != nil {
		b.Engine.Start()
	}
}

func (b *Bridge) Close() {
	if b.Engine != nil {
		b.Engine.Stop()
	}
	if b.Upstream != nil {
		b.Upstream.Close()
	}
	if b.limiter != nil {
		b.limiter.Stop()
	}
	if b.cache != nil {
		if err := b.cache.Close(); err != nil {
			b.logger.WithError(err).Warn("error closing response cache")
		}
	}
	if b.kv != nil {
		if err := b.kv.Close(); err != nil {
			b.logger.WithError(err).Warn("error closing pebble")
		}
	}
	if b.dbEnabled {
		db.MustCloseDB()
	}
}

func moduleLogger(module string) logrus.FieldLogger {
	return logrus.StandardLogger().WithField("module", module)
}
