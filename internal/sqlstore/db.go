// Package sqlstore implements the record stores on SQLite: one database per
// review stage plus a shared waveform catalog.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// #region open
// OpenDB opens a SQLite database in WAL mode and applies schema. Every
// database of the service is opened through it.
func OpenDB(dbPath, schema string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// #endregion open

// #region epoch
// Times are stored as epoch seconds, the way the upstream tables carry them.
func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func nullEpoch(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return toEpoch(t)
}

func fromNullEpoch(v sql.NullFloat64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return fromEpoch(v.Float64)
}

// #endregion epoch

// #region query-helpers
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func stringArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// queryEach runs query and hands every row to scan.
func queryEach(ctx context.Context, db *sql.DB, what, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %s: %w", what, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", what, err)
	}
	return nil
}

// #endregion query-helpers

// #region interface-checks
var (
	_ records.ArrivalStore          = (*StageStore)(nil)
	_ records.AssocStore            = (*StageStore)(nil)
	_ records.AmplitudeStore        = (*StageStore)(nil)
	_ records.FilterParamStore      = (*FilterParamTable)(nil)
	_ records.WfdiscStore           = (*CatalogStore)(nil)
	_ records.WfTagStore            = (*CatalogStore)(nil)
	_ records.SiteStore             = (*CatalogStore)(nil)
	_ records.FilterDefinitionStore = (*CatalogStore)(nil)
)

// #endregion interface-checks
