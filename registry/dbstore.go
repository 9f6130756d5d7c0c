package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/pointerbridge/db"
	"github.com/ethpandaops/pointerbridge/dbtypes"
)

// DbStore keeps links in the sql database. The db package must be initialized.
type DbStore struct{}

func NewDbStore() *DbStore {
	return &DbStore{}
}

func (s *DbStore) RegisterIfAbsent(ctx context.Context, link *PointerLink, aliases []common.Address) (*PointerLink, bool, error) {
	var result *PointerLink
	created := false

	err := db.RunDBTransaction(func(tx *sqlx.Tx) error {
		existing, err := db.GetPointerLinkByPointee(tx, link.Pointee)
		if err != nil {
			return err
		}
		if existing != nil {
			result = fromDbLink(existing)
			return nil
		}

		for _, alias := range aliases {
			pointer, err := db.GetPointerLinkByAddress(tx, alias.Bytes())
			if err != nil {
				return err
			}
			if pointer != nil {
				return ErrPointerTarget
			}
		}

		inserted, err := db.InsertPointerLink(toDbLink(link), tx)
		if err != nil {
			return err
		}
		if !inserted {
			// lost a race against a concurrent registration on another connection
			existing, err := db.GetPointerLinkByPointee(tx, link.Pointee)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("pointer address %v already bound", link.Pointer.Hex())
			}
			result = fromDbLink(existing)
			return nil
		}

		result = link
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *DbStore) GetByPointee(ctx context.Context, pointee string) (*PointerLink, error) {
	link, err := db.GetPointerLinkByPointee(db.ReaderDb, pointee)
	if err != nil || link == nil {
		return nil, err
	}
	return fromDbLink(link), nil
}

func (s *DbStore) GetByPointer(ctx context.Context, pointer common.Address) (*PointerLink, error) {
	link, err := db.GetPointerLinkByAddress(db.ReaderDb, pointer.Bytes())
	if err != nil || link == nil {
		return nil, err
	}
	return fromDbLink(link), nil
}

func (s *DbStore) List(ctx context.Context) ([]*PointerLink, error) {
	dbLinks, err := db.GetPointerLinks()
	if err != nil {
		return nil, err
	}
	links := make([]*PointerLink, len(dbLinks))
	for idx, link := range dbLinks {
		links[idx] = fromDbLink(link)
	}
	return links, nil
}

func toDbLink(link *PointerLink) *dbtypes.PointerLink {
	return &dbtypes.PointerLink{
		Pointee:        link.Pointee,
		PointerAddress: link.Pointer.Bytes(),
		Version:        link.Version,
		Created:        link.Created.UnixMilli(),
	}
}

func fromDbLink(link *dbtypes.PointerLink) *PointerLink {
	return &PointerLink{
		Pointee: link.Pointee,
		Pointer: common.BytesToAddress(link.PointerAddress),
		Version: link.Version,
		Created: time.UnixMilli(link.Created),
	}
}
