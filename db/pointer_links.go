package db

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/pointerbridge/dbtypes"
)

const pointerLinkColumns = `"pointee", "pointer_address", "version", "created"`

// InsertPointerLink inserts a link unless one exists for the same pointee or pointer address.
// Returns whether a row was inserted.
func InsertPointerLink(link *dbtypes.PointerLink, tx *sqlx.Tx) (bool, error) {
	res, err := tx.Exec(EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql:  `INSERT INTO pointer_links (` + pointerLinkColumns + `) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		dbtypes.DBEngineSqlite: `INSERT OR IGNORE INTO pointer_links (` + pointerLinkColumns + `) VALUES ($1, $2, $3, $4)`,
	}), link.Pointee, link.PointerAddress, link.Version, link.Created)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetPointerLinkByPointee returns nil if the native contract has no pointer.
func GetPointerLinkByPointee(q sqlx.Queryer, pointee string) (*dbtypes.PointerLink, error) {
	return getPointerLink(q, `SELECT `+pointerLinkColumns+` FROM pointer_links WHERE "pointee" = $1`, pointee)
}

// GetPointerLinkByAddress returns nil if the address is no pointer.
func GetPointerLinkByAddress(q sqlx.Queryer, pointerAddress []byte) (*dbtypes.PointerLink, error) {
	return getPointerLink(q, `SELECT `+pointerLinkColumns+` FROM pointer_links WHERE "pointer_address" = $1`, pointerAddress)
}

func getPointerLink(q sqlx.Queryer, query string, args ...any) (*dbtypes.PointerLink, error) {
	link := &dbtypes.PointerLink{}
	err := sqlx.Get(q, link, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

func GetPointerLinks() ([]*dbtypes.PointerLink, error) {
	links := []*dbtypes.PointerLink{}
	err := ReaderDb.Select(&links, `SELECT `+pointerLinkColumns+` FROM pointer_links ORDER BY "created" ASC, "pointee" ASC`)
	if err != nil {
		logger.Errorf("Error while fetching pointer links: %v", err)
		return nil, err
	}
	return links, nil
}
