// Package identity maps the numeric keys of the upstream tables to the
// opaque detection and hypothesis ids handed to callers. Ids are created on
// first use and stable afterwards.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/lineage-bridge/internal/sqlstore"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS detection_ids (
	arid         INTEGER PRIMARY KEY,
	detection_id TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS arrival_hypothesis_ids (
	account       TEXT NOT NULL,
	arid          INTEGER NOT NULL,
	hypothesis_id TEXT NOT NULL UNIQUE,
	PRIMARY KEY (account, arid)
);

CREATE TABLE IF NOT EXISTS assoc_hypothesis_ids (
	account       TEXT NOT NULL,
	arid          INTEGER NOT NULL,
	orid          INTEGER NOT NULL,
	hypothesis_id TEXT NOT NULL UNIQUE,
	PRIMARY KEY (account, arid, orid)
);
`

// #endregion schema

// #region registrar
// Registrar is a SQLite-backed get-or-create id registry.
type Registrar struct {
	db *sql.DB
}

// Open opens (and migrates) the registry database at dbPath.
func Open(dbPath string) (*Registrar, error) {
	db, err := sqlstore.OpenDB(dbPath, schema)
	if err != nil {
		return nil, err
	}
	// serialize writers so get-or-create never races itself
	db.SetMaxOpenConns(1)
	return &Registrar{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Registrar) Close() error {
	return r.db.Close()
}

// #endregion registrar

// #region get-or-create
func (r *Registrar) getOrCreate(ctx context.Context, insert, lookup string, args ...any) (uuid.UUID, error) {
	fresh := uuid.New().String()
	if _, err := r.db.ExecContext(ctx, insert, append(args, fresh)...); err != nil {
		return uuid.Nil, fmt.Errorf("register id: %w", err)
	}
	var stored string
	if err := r.db.QueryRowContext(ctx, lookup, args...).Scan(&stored); err != nil {
		return uuid.Nil, fmt.Errorf("read id: %w", err)
	}
	id, err := uuid.Parse(stored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse stored id %q: %w", stored, err)
	}
	return id, nil
}

// DetectionID returns the detection id for arid.
func (r *Registrar) DetectionID(ctx context.Context, arid int64) (uuid.UUID, error) {
	id, err := r.getOrCreate(ctx,
		`INSERT OR IGNORE INTO detection_ids (arid, detection_id) VALUES (?, ?)`,
		`SELECT detection_id FROM detection_ids WHERE arid = ?`,
		arid)
	if err != nil {
		return uuid.Nil, fmt.Errorf("detection id for arid %d: %w", arid, err)
	}
	return id, nil
}

// ArrivalHypothesisID returns the id of the hypothesis built from arid at
// the stage owning account.
func (r *Registrar) ArrivalHypothesisID(ctx context.Context, account string, arid int64) (uuid.UUID, error) {
	id, err := r.getOrCreate(ctx,
		`INSERT OR IGNORE INTO arrival_hypothesis_ids (account, arid, hypothesis_id) VALUES (?, ?, ?)`,
		`SELECT hypothesis_id FROM arrival_hypothesis_ids WHERE account = ? AND arid = ?`,
		account, arid)
	if err != nil {
		return uuid.Nil, fmt.Errorf("arrival hypothesis id for %s/%d: %w", account, arid, err)
	}
	return id, nil
}

// AssocHypothesisID returns the id of the hypothesis built from the
// (arid, orid) association at the stage owning account.
func (r *Registrar) AssocHypothesisID(ctx context.Context, account string, arid, orid int64) (uuid.UUID, error) {
	id, err := r.getOrCreate(ctx,
		`INSERT OR IGNORE INTO assoc_hypothesis_ids (account, arid, orid, hypothesis_id) VALUES (?, ?, ?, ?)`,
		`SELECT hypothesis_id FROM assoc_hypothesis_ids WHERE account = ? AND arid = ? AND orid = ?`,
		account, arid, orid)
	if err != nil {
		return uuid.Nil, fmt.Errorf("assoc hypothesis id for %s/%d/%d: %w", account, arid, orid, err)
	}
	return id, nil
}

// #endregion get-or-create

// #region reverse-lookups
// AridForDetection returns the arid a detection id was registered for.
func (r *Registrar) AridForDetection(ctx context.Context, detectionID uuid.UUID) (int64, bool, error) {
	var arid int64
	err := r.db.QueryRowContext(ctx,
		`SELECT arid FROM detection_ids WHERE detection_id = ?`, detectionID.String(),
	).Scan(&arid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("arid for detection %s: %w", detectionID, err)
	}
	return arid, true, nil
}

// ArrivalComponents recovers the account and arid of an arrival hypothesis.
func (r *Registrar) ArrivalComponents(ctx context.Context, hypothesisID uuid.UUID) (string, int64, bool, error) {
	var account string
	var arid int64
	err := r.db.QueryRowContext(ctx,
		`SELECT account, arid FROM arrival_hypothesis_ids WHERE hypothesis_id = ?`, hypothesisID.String(),
	).Scan(&account, &arid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("arrival components of %s: %w", hypothesisID, err)
	}
	return account, arid, true, nil
}

// AssocComponents recovers the account, arid and orid of an association
// hypothesis.
func (r *Registrar) AssocComponents(ctx context.Context, hypothesisID uuid.UUID) (string, int64, int64, bool, error) {
	var account string
	var arid, orid int64
	err := r.db.QueryRowContext(ctx,
		`SELECT account, arid, orid FROM assoc_hypothesis_ids WHERE hypothesis_id = ?`, hypothesisID.String(),
	).Scan(&account, &arid, &orid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, 0, false, nil
	}
	if err != nil {
		return "", 0, 0, false, fmt.Errorf("assoc components of %s: %w", hypothesisID, err)
	}
	return account, arid, orid, true, nil
}

// #endregion reverse-lookups
