package pointer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/native"
	"github.com/ethpandaops/pointerbridge/registry"
)

// Router serves ERC721 calls for every pointer known to the registry.
type Router struct {
	logger     logrus.FieldLogger
	registry   *registry.Registry
	client     *native.Client
	translator *addrmap.Translator

	pointerMutex sync.Mutex
	pointers     map[common.Address]*Pointer
}

func NewRouter(logger logrus.FieldLogger, reg *registry.Registry, client *native.Client, translator *addrmap.Translator) *Router {
	return &Router{
		logger:     logger,
		registry:   reg,
		client:     client,
		translator: translator,
		pointers:   map[common.Address]*Pointer{},
	}
}

// Resolve returns the pointer served at address, or nil if address is no pointer.
func (r *Router) Resolve(ctx context.Context, address common.Address) (*Pointer, error) {
	r.pointerMutex.Lock()
	defer r.pointerMutex.Unlock()

	if pointer := r.pointers[address]; pointer != nil {
		return pointer, nil
	}

	link, err := r.registry.LookupPointee(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed resolving pointer %v: %w", address.Hex(), err)
	}
	if link == nil {
		return nil, nil
	}

	pointer := New(r.logger, link.Pointer, link.Pointee, r.client, r.translator, r)
	r.pointers[address] = pointer
	return pointer, nil
}

// ResolveContract returns the pointer of a native contract, or nil if it has none.
func (r *Router) ResolveContract(ctx context.Context, nativeContractId string) (*Pointer, error) {
	link, err := r.registry.Lookup(ctx, nativeContractId)
	if err != nil || link == nil {
		return nil, err
	}
	return r.Resolve(ctx, link.Pointer)
}

// IsPointer reports whether calls to address are served by the router.
func (r *Router) IsPointer(ctx context.Context, address common.Address) (bool, error) {
	return r.registry.IsPointer(ctx, address)
}

// Call runs an ABI encoded call against the pointer at address.
func (r *Router) Call(ctx context.Context, env *Env, address common.Address, input []byte) ([]byte, error) {
	pointer, err := r.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}
	if pointer == nil {
		return nil, revertf(ReasonNoContract, "no pointer at %v: %w", address.Hex(), native.ErrNoContract)
	}
	return pointer.Call(ctx, env, input)
}

// CheckReceiver rejects pointers, which cannot hold tokens, and reports whether the receiver is a native contract.
func (r *Router) CheckReceiver(ctx context.Context, to common.Address) (bool, error) {
	isPointer, err := r.registry.IsPointer(ctx, to)
	if err != nil {
		return false, err
	}
	if isPointer {
		return false, revertf(ReasonInvalidReceiver, "%v is a pointer contract", to.Hex())
	}

	_, err = r.client.ContractInfo(ctx, r.translator.ToNative(to))
	switch {
	case err == nil:
		return true, nil
	case native.Classify(err) == native.ErrNoContract:
		return false, nil
	default:
		return false, nativeRevert(err)
	}
}
