package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/db"
	"github.com/ethpandaops/pointerbridge/kvdb"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/native/wasmsim"
	"github.com/ethpandaops/pointerbridge/types"
)

var translator = addrmap.NewTranslator("wasm")

type storeFactory struct {
	name string
	new  func(t *testing.T) Store
}

var storeFactories = []storeFactory{
	{name: "memory", new: func(t *testing.T) Store { return NewMemoryStore() }},
	{name: "db", new: func(t *testing.T) Store {
		err := db.InitDB(&types.DatabaseConfig{
			Engine: "sqlite",
			Sqlite: &types.SqliteDatabaseConfig{File: ":memory:"},
		})
		require.NoError(t, err)
		t.Cleanup(db.MustCloseDB)
		return NewDbStore()
	}},
}

// newTestRegistry returns a registry backed by a wasmsim host with the given contracts instantiated.
func newTestRegistry(t *testing.T, store Store, contracts ...string) (*Registry, *test.Hook) {
	kv, err := kvdb.NewEngine(types.PebbleConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	host := wasmsim.NewHost(kv)
	for _, contract := range contracts {
		require.NoError(t, host.Instantiate(context.Background(), contract, "Test", "TEST", "wasm1minter"))
	}

	logger, hook := test.NewNullLogger()
	return NewRegistry(logger, store, translator, native.NewClient(host)), hook
}

func contractId(seed byte) string {
	return translator.ToNative(common.BytesToAddress([]byte{0xc0, seed}))
}

func TestRegisterIdempotent(t *testing.T) {
	for _, factory := range storeFactories {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			contract := contractId(1)
			registry, hook := newTestRegistry(t, factory.new(t), contract)

			first, err := registry.Register(ctx, contract)
			require.NoError(t, err)
			assert.Equal(t, PointerAddress(contract), first)

			second, err := registry.Register(ctx, contract)
			require.NoError(t, err)
			assert.Equal(t, first, second)

			links, err := registry.List(ctx)
			require.NoError(t, err)
			assert.Len(t, links, 1)

			registered := 0
			for _, entry := range hook.AllEntries() {
				if entry.Message == "registered pointer" {
					registered++
					assert.Equal(t, logrus.InfoLevel, entry.Level)
				}
			}
			assert.Equal(t, 1, registered)
		})
	}
}

func TestRegisterRejectsPointers(t *testing.T) {
	for _, factory := range storeFactories {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			contract := contractId(2)
			registry, _ := newTestRegistry(t, factory.new(t), contract)

			pointer, err := registry.Register(ctx, contract)
			require.NoError(t, err)

			for _, target := range []string{pointer.Hex(), translator.ToNative(pointer)} {
				_, err := registry.Register(ctx, target)
				var deployErr *DeploymentError
				require.True(t, errors.As(err, &deployErr), "target %v: %v", target, err)
				assert.ErrorIs(t, err, ErrPointerTarget)
				assert.Contains(t, err.Error(), "contract deployment failed")
			}

			links, err := registry.List(ctx)
			require.NoError(t, err)
			assert.Len(t, links, 1)
		})
	}
}

func TestRegisterRejectsPointerInStore(t *testing.T) {
	// bypasses the registry pre-check to exercise the atomic store check
	for _, factory := range storeFactories {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			store := factory.new(t)
			pointer := PointerAddress("wasm1first")

			_, created, err := store.RegisterIfAbsent(ctx, &PointerLink{Pointee: "wasm1first", Pointer: pointer, Version: 1}, nil)
			require.NoError(t, err)
			assert.True(t, created)

			_, created, err = store.RegisterIfAbsent(ctx, &PointerLink{Pointee: "wasm1second", Pointer: PointerAddress("wasm1second"), Version: 1}, []common.Address{pointer})
			assert.ErrorIs(t, err, ErrPointerTarget)
			assert.False(t, created)

			missing, err := store.GetByPointee(ctx, "wasm1second")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestRegisterRejectsInvalidTargets(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, NewMemoryStore())

	for _, target := range []string{"", "garbage", "0x1234", "cosmos1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", contractId(9)} {
		_, err := registry.Register(ctx, target)
		var deployErr *DeploymentError
		assert.True(t, errors.As(err, &deployErr), "target %q: %v", target, err)
	}

	// the uninstantiated contract reports through the native classification
	_, err := registry.Register(ctx, contractId(9))
	assert.ErrorIs(t, err, native.ErrNoContract)
}

func TestRegisterConcurrent(t *testing.T) {
	for _, factory := range storeFactories {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			contract := contractId(3)
			registry, hook := newTestRegistry(t, factory.new(t), contract)

			workers := 16
			results := make([]common.Address, workers)
			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = registry.Register(ctx, contract)
				}(i)
			}
			wg.Wait()

			for i := 0; i < workers; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, results[0], results[i])
			}

			links, err := registry.List(ctx)
			require.NoError(t, err)
			assert.Len(t, links, 1)

			registered := 0
			for _, entry := range hook.AllEntries() {
				if entry.Message == "registered pointer" {
					registered++
				}
			}
			assert.Equal(t, 1, registered)
		})
	}
}

func TestLookup(t *testing.T) {
	for _, factory := range storeFactories {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			contract := contractId(4)
			store := factory.new(t)
			registry, _ := newTestRegistry(t, store, contract)

			link, err := registry.Lookup(ctx, contract)
			require.NoError(t, err)
			assert.Nil(t, link)

			pointer, err := registry.Register(ctx, contract)
			require.NoError(t, err)

			// a fresh registry over the same store has an empty cache
			fresh, _ := newTestRegistry(t, store)

			link, err = fresh.Lookup(ctx, contract)
			require.NoError(t, err)
			require.NotNil(t, link)
			assert.Equal(t, pointer, link.Pointer)
			assert.Equal(t, PointerVersion, link.Version)

			link, err = fresh.LookupPointee(ctx, pointer)
			require.NoError(t, err)
			require.NotNil(t, link)
			assert.Equal(t, contract, link.Pointee)

			isPointer, err := fresh.IsPointer(ctx, pointer)
			require.NoError(t, err)
			assert.True(t, isPointer)

			isPointer, err = fresh.IsPointer(ctx, common.HexToAddress("0x01"))
			require.NoError(t, err)
			assert.False(t, isPointer)
		})
	}
}

func TestPointerAddressDeterministic(t *testing.T) {
	assert.Equal(t, PointerAddress("wasm1a"), PointerAddress("wasm1a"))
	assert.NotEqual(t, PointerAddress("wasm1a"), PointerAddress("wasm1b"))
}
