package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// #region stage-schema
const stageSchema = `
CREATE TABLE IF NOT EXISTS arrival (
	arid  INTEGER PRIMARY KEY,
	sta   TEXT NOT NULL,
	chan  TEXT NOT NULL,
	time  REAL NOT NULL,
	iphase TEXT NOT NULL,
	amp   REAL NOT NULL DEFAULT -1,
	per   REAL NOT NULL DEFAULT -1
);
CREATE INDEX IF NOT EXISTS arrival_sta_time ON arrival (sta, time);

CREATE TABLE IF NOT EXISTS assoc (
	arid   INTEGER NOT NULL,
	orid   INTEGER NOT NULL,
	phase  TEXT NOT NULL,
	delta  REAL NOT NULL DEFAULT -1,
	timeres REAL NOT NULL DEFAULT -999,
	PRIMARY KEY (arid, orid)
);

CREATE TABLE IF NOT EXISTS amplitude (
	ampid   INTEGER PRIMARY KEY,
	arid    INTEGER NOT NULL,
	amptype TEXT NOT NULL,
	amp     REAL NOT NULL,
	per     REAL NOT NULL,
	amptime REAL
);
CREATE INDEX IF NOT EXISTS amplitude_arid ON amplitude (arid);

CREATE TABLE IF NOT EXISTS arrival_dynpars (
	arid      INTEGER NOT NULL,
	group_name TEXT NOT NULL,
	param_name TEXT NOT NULL,
	value     TEXT NOT NULL,
	lddate    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS amplitude_dynpars (
	ampid     INTEGER NOT NULL,
	group_name TEXT NOT NULL,
	param_name TEXT NOT NULL,
	value     TEXT NOT NULL,
	lddate    REAL NOT NULL
);
`

// #endregion stage-schema

// #region stage-store
// StageStore holds one review stage's arrival, assoc, amplitude and filter
// parameter tables.
type StageStore struct {
	db *sql.DB
}

// OpenStage opens (and migrates) the stage database at dbPath.
func OpenStage(dbPath string) (*StageStore, error) {
	db, err := OpenDB(dbPath, stageSchema)
	if err != nil {
		return nil, err
	}
	return &StageStore{db: db}, nil
}

// NewStageStore wraps an already-migrated database.
func NewStageStore(db *sql.DB) *StageStore {
	return &StageStore{db: db}
}

// Close closes the underlying database connection.
func (s *StageStore) Close() error {
	return s.db.Close()
}

// ArrivalFilterParams returns the FILTERID rows anchored on arids.
func (s *StageStore) ArrivalFilterParams() *FilterParamTable {
	return &FilterParamTable{db: s.db, table: "arrival_dynpars", anchor: "arid"}
}

// AmplitudeFilterParams returns the FILTERID rows anchored on ampids.
func (s *StageStore) AmplitudeFilterParams() *FilterParamTable {
	return &FilterParamTable{db: s.db, table: "amplitude_dynpars", anchor: "ampid"}
}

// #endregion stage-store

// #region arrivals
const arrivalColumns = `arid, sta, chan, time, iphase, amp, per`

func scanArrival(rows *sql.Rows) (records.Arrival, error) {
	var a records.Arrival
	var t float64
	if err := rows.Scan(&a.ID, &a.Station, &a.Channel, &t, &a.Phase, &a.Amplitude, &a.Period); err != nil {
		return records.Arrival{}, err
	}
	a.Time = fromEpoch(t)
	return a, nil
}

// FindArrivalsByIDs reads arrivals by arid.
func (s *StageStore) FindArrivalsByIDs(ctx context.Context, arids []int64) ([]records.Arrival, error) {
	var out []records.Arrival
	for _, chunk := range records.Partition(records.Unique(arids), records.IDPartitionSize) {
		q := `SELECT ` + arrivalColumns + ` FROM arrival WHERE arid IN (` + placeholders(len(chunk)) + `)`
		err := queryEach(ctx, s.db, "arrivals", q, int64Args(chunk), func(rows *sql.Rows) error {
			a, err := scanArrival(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindArrivalsByStationsAndTime reads arrivals at the given stations with an
// onset in [start-lead, end+lag], leaving out the excluded arids.
func (s *StageStore) FindArrivalsByStationsAndTime(ctx context.Context, stations []string, excluded []int64, start, end time.Time, lead, lag time.Duration) ([]records.Arrival, error) {
	if len(stations) == 0 {
		return nil, nil
	}
	skip := make(map[int64]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	from, to := toEpoch(start.Add(-lead)), toEpoch(end.Add(lag))

	var out []records.Arrival
	for _, chunk := range records.Partition(stations, records.IDPartitionSize) {
		q := `SELECT ` + arrivalColumns + ` FROM arrival
		      WHERE sta IN (` + placeholders(len(chunk)) + `) AND time >= ? AND time <= ?
		      ORDER BY time, arid`
		args := append(stringArgs(chunk), from, to)
		err := queryEach(ctx, s.db, "arrivals by station", q, args, func(rows *sql.Rows) error {
			a, err := scanArrival(rows)
			if err != nil {
				return err
			}
			if _, ok := skip[a.ID]; !ok {
				out = append(out, a)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertArrival writes or replaces an arrival row.
func (s *StageStore) InsertArrival(ctx context.Context, a records.Arrival) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO arrival (`+arrivalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Station, a.Channel, toEpoch(a.Time), a.Phase, a.Amplitude, a.Period,
	)
	if err != nil {
		return fmt.Errorf("insert arrival %d: %w", a.ID, err)
	}
	return nil
}

// #endregion arrivals

// #region assocs
func scanAssoc(rows *sql.Rows) (records.Assoc, error) {
	var a records.Assoc
	err := rows.Scan(&a.Key.Arid, &a.Key.Orid, &a.Phase, &a.Delta, &a.Residual)
	return a, err
}

// FindAssocsByArids reads every association of the given arrivals.
func (s *StageStore) FindAssocsByArids(ctx context.Context, arids []int64) ([]records.Assoc, error) {
	var out []records.Assoc
	for _, chunk := range records.Partition(records.Unique(arids), records.IDPartitionSize) {
		q := `SELECT arid, orid, phase, delta, timeres FROM assoc
		      WHERE arid IN (` + placeholders(len(chunk)) + `) ORDER BY arid, orid`
		err := queryEach(ctx, s.db, "assocs", q, int64Args(chunk), func(rows *sql.Rows) error {
			a, err := scanAssoc(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindAssocsByKeys reads associations by their (arid, orid) key.
func (s *StageStore) FindAssocsByKeys(ctx context.Context, keys []records.AssocKey) ([]records.Assoc, error) {
	var out []records.Assoc
	for _, chunk := range records.Partition(keys, records.KeyPartitionSize) {
		var b strings.Builder
		args := make([]any, 0, 2*len(chunk))
		for i, k := range chunk {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("(arid = ? AND orid = ?)")
			args = append(args, k.Arid, k.Orid)
		}
		q := `SELECT arid, orid, phase, delta, timeres FROM assoc WHERE ` + b.String()
		err := queryEach(ctx, s.db, "assocs by key", q, args, func(rows *sql.Rows) error {
			a, err := scanAssoc(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertAssoc writes or replaces an assoc row.
func (s *StageStore) InsertAssoc(ctx context.Context, a records.Assoc) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO assoc (arid, orid, phase, delta, timeres) VALUES (?, ?, ?, ?, ?)`,
		a.Key.Arid, a.Key.Orid, a.Phase, a.Delta, a.Residual,
	)
	if err != nil {
		return fmt.Errorf("insert assoc %s: %w", a.Key, err)
	}
	return nil
}

// #endregion assocs

// #region amplitudes
// FindAmplitudesByArids reads every amplitude measured on the given arrivals.
func (s *StageStore) FindAmplitudesByArids(ctx context.Context, arids []int64) ([]records.Amplitude, error) {
	var out []records.Amplitude
	for _, chunk := range records.Partition(records.Unique(arids), records.IDPartitionSize) {
		q := `SELECT ampid, arid, amptype, amp, per, amptime FROM amplitude
		      WHERE arid IN (` + placeholders(len(chunk)) + `) ORDER BY ampid`
		err := queryEach(ctx, s.db, "amplitudes", q, int64Args(chunk), func(rows *sql.Rows) error {
			var a records.Amplitude
			var t sql.NullFloat64
			if err := rows.Scan(&a.ID, &a.Arid, &a.Type, &a.Amplitude, &a.Period, &t); err != nil {
				return err
			}
			a.Time = fromNullEpoch(t)
			out = append(out, a)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertAmplitude writes or replaces an amplitude row.
func (s *StageStore) InsertAmplitude(ctx context.Context, a records.Amplitude) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO amplitude (ampid, arid, amptype, amp, per, amptime) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Arid, a.Type, a.Amplitude, a.Period, nullEpoch(a.Time),
	)
	if err != nil {
		return fmt.Errorf("insert amplitude %d: %w", a.ID, err)
	}
	return nil
}

// #endregion amplitudes
