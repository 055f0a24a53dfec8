package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// #region catalog-schema
const catalogSchema = `
CREATE TABLE IF NOT EXISTS wfdisc (
	wfid     INTEGER PRIMARY KEY,
	sta      TEXT NOT NULL,
	chan     TEXT NOT NULL,
	time     REAL NOT NULL,
	endtime  REAL NOT NULL,
	samprate REAL NOT NULL,
	dir      TEXT NOT NULL,
	dfile    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS wfdisc_sta_chan ON wfdisc (sta, chan, endtime);

CREATE TABLE IF NOT EXISTS wftag (
	tagname TEXT NOT NULL,
	tagid   INTEGER NOT NULL,
	wfid    INTEGER NOT NULL,
	PRIMARY KEY (tagname, tagid, wfid)
);

CREATE TABLE IF NOT EXISTS site (
	sta     TEXT NOT NULL,
	refsta  TEXT NOT NULL,
	ondate  REAL NOT NULL,
	offdate REAL,
	PRIMARY KEY (sta, ondate)
);

CREATE TABLE IF NOT EXISTS filter_definition (
	filterid     INTEGER PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	causal       INTEGER NOT NULL DEFAULT 1,
	low_hz       REAL NOT NULL DEFAULT 0,
	high_hz      REAL NOT NULL DEFAULT 0,
	filter_order INTEGER NOT NULL DEFAULT 0
);
`

// #endregion catalog-schema

// #region catalog-store
// CatalogStore holds the waveform-file catalog, derived-waveform tags, the
// site table and filter definitions shared by every stage.
type CatalogStore struct {
	db *sql.DB
}

// OpenCatalog opens (and migrates) the catalog database at dbPath.
func OpenCatalog(dbPath string) (*CatalogStore, error) {
	db, err := OpenDB(dbPath, catalogSchema)
	if err != nil {
		return nil, err
	}
	return &CatalogStore{db: db}, nil
}

// NewCatalogStore wraps an already-migrated database.
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// Close closes the underlying database connection.
func (s *CatalogStore) Close() error {
	return s.db.Close()
}

// #endregion catalog-store

// #region wfdisc
const wfdiscColumns = `wfid, sta, chan, time, endtime, samprate, dir, dfile`

func scanWfdisc(rows *sql.Rows) (records.Wfdisc, error) {
	var w records.Wfdisc
	var start, end float64
	if err := rows.Scan(&w.ID, &w.Station, &w.Channel, &start, &end, &w.SampleRate, &w.Dir, &w.File); err != nil {
		return records.Wfdisc{}, err
	}
	w.Time, w.EndTime = fromEpoch(start), fromEpoch(end)
	return w, nil
}

// FindWfdiscsByIDs reads catalog entries by wfid.
func (s *CatalogStore) FindWfdiscsByIDs(ctx context.Context, wfids []int64) ([]records.Wfdisc, error) {
	var out []records.Wfdisc
	for _, chunk := range records.Partition(records.Unique(wfids), records.IDPartitionSize) {
		q := `SELECT ` + wfdiscColumns + ` FROM wfdisc WHERE wfid IN (` + placeholders(len(chunk)) + `)`
		err := queryEach(ctx, s.db, "wfdiscs", q, int64Args(chunk), func(rows *sql.Rows) error {
			w, err := scanWfdisc(rows)
			if err != nil {
				return err
			}
			out = append(out, w)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindWfdiscsEndingAfter reads, for each key, the files on the key's
// station and channel that end at or after the key time. A file matching
// several keys is returned once.
func (s *CatalogStore) FindWfdiscsEndingAfter(ctx context.Context, keys []records.StationChannelTime) ([]records.Wfdisc, error) {
	seen := make(map[int64]struct{})
	var out []records.Wfdisc
	for _, chunk := range records.Partition(keys, records.KeyPartitionSize) {
		var b strings.Builder
		args := make([]any, 0, 3*len(chunk))
		for i, k := range chunk {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("(sta = ? AND chan = ? AND endtime >= ?)")
			args = append(args, k.Station, k.Channel, toEpoch(k.Time))
		}
		q := `SELECT ` + wfdiscColumns + ` FROM wfdisc WHERE ` + b.String() + ` ORDER BY time, wfid`
		err := queryEach(ctx, s.db, "wfdiscs by key", q, args, func(rows *sql.Rows) error {
			w, err := scanWfdisc(rows)
			if err != nil {
				return err
			}
			if _, dup := seen[w.ID]; !dup {
				seen[w.ID] = struct{}{}
				out = append(out, w)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertWfdisc writes or replaces a catalog entry.
func (s *CatalogStore) InsertWfdisc(ctx context.Context, w records.Wfdisc) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO wfdisc (`+wfdiscColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Station, w.Channel, toEpoch(w.Time), toEpoch(w.EndTime), w.SampleRate, w.Dir, w.File,
	)
	if err != nil {
		return fmt.Errorf("insert wfdisc %d: %w", w.ID, err)
	}
	return nil
}

// #endregion wfdisc

// #region wftag
// FindWfTagsByTagIDs reads the arrival tags ("arid") for the given arids.
func (s *CatalogStore) FindWfTagsByTagIDs(ctx context.Context, tagIDs []int64) ([]records.WfTag, error) {
	var out []records.WfTag
	for _, chunk := range records.Partition(records.Unique(tagIDs), records.IDPartitionSize) {
		q := `SELECT tagname, tagid, wfid FROM wftag
		      WHERE tagname = 'arid' AND tagid IN (` + placeholders(len(chunk)) + `) ORDER BY tagid, wfid`
		err := queryEach(ctx, s.db, "wftags", q, int64Args(chunk), func(rows *sql.Rows) error {
			var t records.WfTag
			if err := rows.Scan(&t.TagName, &t.TagID, &t.WfID); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertWfTag writes a tag row; duplicates are ignored.
func (s *CatalogStore) InsertWfTag(ctx context.Context, t records.WfTag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO wftag (tagname, tagid, wfid) VALUES (?, ?, ?)`,
		t.TagName, t.TagID, t.WfID,
	)
	if err != nil {
		return fmt.Errorf("insert wftag %s: %w", t, err)
	}
	return nil
}

// #endregion wftag

// #region site
// FindSitesByReferenceStations reads the sites of the given reference
// stations that were active at some point in [start, end].
func (s *CatalogStore) FindSitesByReferenceStations(ctx context.Context, refs []string, start, end time.Time) ([]records.Site, error) {
	var out []records.Site
	for _, chunk := range records.Partition(refs, records.IDPartitionSize) {
		q := `SELECT sta, refsta, ondate, offdate FROM site
		      WHERE refsta IN (` + placeholders(len(chunk)) + `)
		        AND ondate <= ? AND (offdate IS NULL OR offdate >= ?)
		      ORDER BY sta`
		args := append(stringArgs(chunk), toEpoch(end), toEpoch(start))
		err := queryEach(ctx, s.db, "sites", q, args, func(rows *sql.Rows) error {
			var site records.Site
			var on float64
			var off sql.NullFloat64
			if err := rows.Scan(&site.Station, &site.ReferenceStation, &on, &off); err != nil {
				return err
			}
			site.OnDate, site.OffDate = fromEpoch(on), fromNullEpoch(off)
			out = append(out, site)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertSite writes or replaces a site row. A zero OffDate means still open.
func (s *CatalogStore) InsertSite(ctx context.Context, site records.Site) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO site (sta, refsta, ondate, offdate) VALUES (?, ?, ?, ?)`,
		site.Station, site.ReferenceStation, toEpoch(site.OnDate), nullEpoch(site.OffDate),
	)
	if err != nil {
		return fmt.Errorf("insert site %s: %w", site.Station, err)
	}
	return nil
}

// #endregion site

// #region filter-definitions
// LoadFilterDefinitions reads filter definitions by id; unknown ids are
// absent from the result.
func (s *CatalogStore) LoadFilterDefinitions(ctx context.Context, ids []int64) (map[int64]records.FilterDefinition, error) {
	out := make(map[int64]records.FilterDefinition, len(ids))
	for _, chunk := range records.Partition(records.Unique(ids), records.IDPartitionSize) {
		q := `SELECT filterid, name, description, causal, low_hz, high_hz, filter_order
		      FROM filter_definition WHERE filterid IN (` + placeholders(len(chunk)) + `)`
		err := queryEach(ctx, s.db, "filter definitions", q, int64Args(chunk), func(rows *sql.Rows) error {
			var d records.FilterDefinition
			if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Causal, &d.LowHz, &d.HighHz, &d.Order); err != nil {
				return err
			}
			out[d.ID] = d
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InsertFilterDefinition writes or replaces a filter definition.
func (s *CatalogStore) InsertFilterDefinition(ctx context.Context, d records.FilterDefinition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO filter_definition (filterid, name, description, causal, low_hz, high_hz, filter_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Description, d.Causal, d.LowHz, d.HighHz, d.Order,
	)
	if err != nil {
		return fmt.Errorf("insert filter definition %d: %w", d.ID, err)
	}
	return nil
}

// #endregion filter-definitions
