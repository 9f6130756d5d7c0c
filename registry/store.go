package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrPointerTarget is returned by a store when the pointee is itself a registered pointer.
var ErrPointerTarget = errors.New("target is a pointer contract")

// PointerLink binds a native contract to its pointer address. Links are immutable.
type PointerLink struct {
	Pointee string
	Pointer common.Address
	Version uint16
	Created time.Time
}

// Store persists pointer links.
type Store interface {
	// RegisterIfAbsent returns the existing link for link.Pointee, or inserts link.
	// Fails with ErrPointerTarget, inserting nothing, if any alias of the pointee is a registered pointer address.
	// The check and the insert are atomic with respect to other registrations.
	RegisterIfAbsent(ctx context.Context, link *PointerLink, aliases []common.Address) (*PointerLink, bool, error)
	GetByPointee(ctx context.Context, pointee string) (*PointerLink, error)
	GetByPointer(ctx context.Context, pointer common.Address) (*PointerLink, error)
	List(ctx context.Context) ([]*PointerLink, error)
}

// MemoryStore keeps links in process memory.
type MemoryStore struct {
	mutex     sync.RWMutex
	byPointee map[string]*PointerLink
	byPointer map[common.Address]*PointerLink
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPointee: map[string]*PointerLink{},
		byPointer: map[common.Address]*PointerLink{},
	}
}

func (s *MemoryStore) RegisterIfAbsent(ctx context.Context, link *PointerLink, aliases []common.Address) (*PointerLink, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing := s.byPointee[link.Pointee]; existing != nil {
		return existing, false, nil
	}
	for _, alias := range aliases {
		if s.byPointer[alias] != nil {
			return nil, false, ErrPointerTarget
		}
	}
	if existing := s.byPointer[link.Pointer]; existing != nil {
		return nil, false, errors.New("pointer address already bound to " + existing.Pointee)
	}

	s.byPointee[link.Pointee] = link
	s.byPointer[link.Pointer] = link
	return link, true, nil
}

func (s *MemoryStore) GetByPointee(ctx context.Context, pointee string) (*PointerLink, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.byPointee[pointee], nil
}

func (s *MemoryStore) GetByPointer(ctx context.Context, pointer common.Address) (*PointerLink, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.byPointer[pointer], nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*PointerLink, error) {
	s.mutex.RLock()
	links := make([]*PointerLink, 0, len(s.byPointee))
	for _, link := range s.byPointee {
		links = append(links, link)
	}
	s.mutex.RUnlock()

	sortLinks(links)
	return links, nil
}

func sortLinks(links []*PointerLink) {
	sort.Slice(links, func(i, j int) bool {
		if !links[i].Created.Equal(links[j].Created) {
			return links[i].Created.Before(links[j].Created)
		}
		return links[i].Pointee < links[j].Pointee
	})
}
