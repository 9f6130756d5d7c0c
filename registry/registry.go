// Package registry binds native CW721 contracts to their pointer addresses.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/metrics"
	"github.com/ethpandaops/pointerbridge/native"
)

// PointerVersion is stamped on new links; it changes whenever the pointer behaviour does.
const PointerVersion uint16 = 1

var pointerSalt = []byte("cw721-pointer")

// DeploymentError reports a rejected registration. No link is created.
type DeploymentError struct {
	Pointee string
	Reason  string
	Err     error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("contract deployment failed for %v: %v", e.Pointee, e.Reason)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

type Registry struct {
	logger     logrus.FieldLogger
	store      Store
	translator *addrmap.Translator
	client     *native.Client

	cacheMutex   sync.RWMutex
	cache        map[string]*PointerLink
	pointerCache map[common.Address]*PointerLink
}

// NewRegistry creates a registry. A nil client disables the contract check on registration.
func NewRegistry(logger logrus.FieldLogger, store Store, translator *addrmap.Translator, client *native.Client) *Registry {
	return &Registry{
		logger:       logger,
		store:        store,
		translator:   translator,
		client:       client,
		cache:        map[string]*PointerLink{},
		pointerCache: map[common.Address]*PointerLink{},
	}
}

// PointerAddress derives the pointer address for a canonical native contract id.
func PointerAddress(pointee string) common.Address {
	return common.BytesToAddress(crypto.Keccak256(pointerSalt, []byte(pointee))[12:])
}

// Register returns the pointer address of the native contract, creating the link on first use.
// The target may be given as native id or hex address.
func (r *Registry) Register(ctx context.Context, nativeContractId string) (common.Address, error) {
	link, err := r.RegisterLink(ctx, nativeContractId)
	if err != nil {
		return common.Address{}, err
	}
	return link.Pointer, nil
}

func (r *Registry) RegisterLink(ctx context.Context, nativeContractId string) (*PointerLink, error) {
	pointee, aliases, err := r.resolveTarget(nativeContractId)
	if err != nil {
		metrics.RegistrationsRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if link := r.getCached(pointee); link != nil {
		return link, nil
	}

	// rejected early so the contract check below never sees a pointer; the store repeats the check atomically
	for _, alias := range aliases {
		isPointer, err := r.IsPointer(ctx, alias)
		if err != nil {
			return nil, err
		}
		if isPointer {
			metrics.RegistrationsRejected.WithLabelValues("pointer").Inc()
			return nil, &DeploymentError{Pointee: nativeContractId, Reason: "target is a pointer contract", Err: ErrPointerTarget}
		}
	}

	if r.client != nil {
		if _, err := r.client.ContractInfo(ctx, pointee); err != nil {
			metrics.RegistrationsRejected.WithLabelValues("not_cw721").Inc()
			return nil, &DeploymentError{Pointee: pointee, Reason: "target is not a cw721 contract", Err: err}
		}
	}

	candidate := &PointerLink{
		Pointee: pointee,
		Pointer: PointerAddress(pointee),
		Version: PointerVersion,
		Created: time.Now().UTC().Truncate(time.Millisecond),
	}
	link, created, err := r.store.RegisterIfAbsent(ctx, candidate, aliases)
	if errors.Is(err, ErrPointerTarget) {
		metrics.RegistrationsRejected.WithLabelValues("pointer").Inc()
		return nil, &DeploymentError{Pointee: pointee, Reason: "target is a pointer contract", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store pointer link for %v: %w", pointee, err)
	}

	if created {
		metrics.PointersRegistered.Inc()
		r.logger.WithFields(logrus.Fields{
			"pointee": link.Pointee,
			"pointer": link.Pointer.Hex(),
			"version": link.Version,
		}).Infof("registered pointer")
	}

	r.setCached(link)
	return link, nil
}

// resolveTarget canonicalizes the target and collects the EVM addresses it could denote.
func (r *Registry) resolveTarget(target string) (string, []common.Address, error) {
	if strings.HasPrefix(target, "0x") || strings.HasPrefix(target, "0X") {
		address, err := addrmap.ParseEVM(target)
		if err != nil {
			return "", nil, &DeploymentError{Pointee: target, Reason: "malformed target", Err: err}
		}
		return r.translator.ToNative(address), []common.Address{address}, nil
	}

	canonical, payload, err := r.translator.DecodeContract(target)
	if err != nil {
		return "", nil, &DeploymentError{Pointee: target, Reason: "malformed target", Err: err}
	}
	aliases := []common.Address{}
	if len(payload) == addrmap.AccountLength {
		aliases = append(aliases, common.BytesToAddress(payload))
	}
	return canonical, aliases, nil
}

// Lookup returns the link of a native contract, or nil if none exists.
func (r *Registry) Lookup(ctx context.Context, nativeContractId string) (*PointerLink, error) {
	pointee, _, err := r.translator.DecodeContract(nativeContractId)
	if err != nil {
		return nil, err
	}
	if link := r.getCached(pointee); link != nil {
		return link, nil
	}
	link, err := r.store.GetByPointee(ctx, pointee)
	if err != nil || link == nil {
		return nil, err
	}
	r.setCached(link)
	return link, nil
}

// LookupPointee returns the link of a pointer address, or nil if the address is no pointer.
func (r *Registry) LookupPointee(ctx context.Context, pointer common.Address) (*PointerLink, error) {
	r.cacheMutex.RLock()
	cached := r.pointerCache[pointer]
	r.cacheMutex.RUnlock()
	if cached != nil {
		return cached, nil
	}

	link, err := r.store.GetByPointer(ctx, pointer)
	if err != nil || link == nil {
		return nil, err
	}
	r.setCached(link)
	return link, nil
}

func (r *Registry) IsPointer(ctx context.Context, address common.Address) (bool, error) {
	link, err := r.LookupPointee(ctx, address)
	if err != nil {
		return false, err
	}
	return link != nil, nil
}

func (r *Registry) List(ctx context.Context) ([]*PointerLink, error) {
	return r.store.List(ctx)
}

func (r *Registry) getCached(pointee string) *PointerLink {
	r.cacheMutex.RLock()
	defer r.cacheMutex.RUnlock()
	return r.cache[pointee]
}

func (r *Registry) setCached(link *PointerLink) {
	r.cacheMutex.Lock()
	defer r.cacheMutex.Unlock()
	r.cache[link.Pointee] = link
	r.pointerCache[link.Pointer] = link
}
