// Package provenance records every hypothesis the resolver emits, with its
// parent and the inputs that decided it, so a lineage can be replayed.
package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/lineage-bridge/internal/sqlstore"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS lineage_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	hypothesis_id TEXT NOT NULL,
	detection_id  TEXT NOT NULL,
	parent_id     TEXT,
	stage         TEXT NOT NULL,
	account       TEXT NOT NULL,
	arid          INTEGER NOT NULL,
	orid          INTEGER,
	source        TEXT NOT NULL,
	decision      TEXT NOT NULL,
	parent_rule   TEXT,
	inputs_json   TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS lineage_log_hypothesis ON lineage_log (hypothesis_id, id);
`

// #endregion schema

// #region log
// Log is the SQLite lineage log.
type Log struct {
	db *sql.DB
}

// Open opens (and migrates) the lineage log at dbPath.
func Open(dbPath string) (*Log, error) {
	db, err := sqlstore.OpenDB(dbPath, schema)
	if err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record writes entry to the log.
func (l *Log) Record(ctx context.Context, entry Entry) error {
	return LogDecision(ctx, l.db, entry)
}

// #endregion log

// #region log-decision
// LogDecision writes a lineage entry to the lineage_log table of db.
func LogDecision(ctx context.Context, db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var orid any
	if entry.Source == SourceAssoc {
		orid = entry.Orid
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO lineage_log (hypothesis_id, detection_id, parent_id, stage, account, arid, orid, source, decision, parent_rule, inputs_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.HypothesisID,
		entry.DetectionID,
		nullIfEmpty(entry.ParentID),
		entry.Stage,
		entry.Account,
		entry.Arid,
		orid,
		entry.Source,
		entry.Decision,
		nullIfEmpty(entry.ParentRule),
		nullIfEmpty(entry.InputsJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// EncodeInputs serializes the decision inputs for Entry.InputsJSON.
func EncodeInputs(in DecisionInputs) string {
	b, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	return string(b)
}

// #endregion log-decision

// #region read
// Latest returns the most recent entry for a hypothesis.
func (l *Log) Latest(ctx context.Context, hypothesisID string) (Entry, bool, error) {
	var e Entry
	var parent, rule, inputs sql.NullString
	var orid sql.NullInt64
	var created string
	err := l.db.QueryRowContext(ctx,
		`SELECT hypothesis_id, detection_id, parent_id, stage, account, arid, orid, source, decision, parent_rule, inputs_json, created_at
		 FROM lineage_log WHERE hypothesis_id = ? ORDER BY id DESC LIMIT 1`, hypothesisID,
	).Scan(&e.HypothesisID, &e.DetectionID, &parent, &e.Stage, &e.Account, &e.Arid, &orid, &e.Source, &e.Decision, &rule, &inputs, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("latest entry for %s: %w", hypothesisID, err)
	}
	e.ParentID, e.ParentRule, e.InputsJSON = parent.String, rule.String, inputs.String
	e.Orid = orid.Int64
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, true, nil
}

// Chain walks parent pointers from hypothesisID, newest first, stopping at
// a root, at a parent that was never logged, or after maxDepth entries.
func (l *Log) Chain(ctx context.Context, hypothesisID string, maxDepth int) ([]Entry, error) {
	var chain []Entry
	seen := make(map[string]bool)
	for id := hypothesisID; id != "" && len(chain) < maxDepth && !seen[id]; {
		seen[id] = true
		e, ok, err := l.Latest(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		chain = append(chain, e)
		id = e.ParentID
	}
	return chain, nil
}

// #endregion read

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
