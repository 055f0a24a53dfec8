package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// filterParamName is the dynamic parameter carrying a filter id.
const filterParamName = "FILTERID"

// FilterParamTable reads FILTERID rows from one dynamic-parameter table.
type FilterParamTable struct {
	db     *sql.DB
	table  string
	anchor string
}

// FindFilterParamsByIDs reads the FILTERID rows anchored on ids. Rows whose
// value is not an integer are skipped.
func (t *FilterParamTable) FindFilterParamsByIDs(ctx context.Context, ids []int64) ([]records.FilterParam, error) {
	var out []records.FilterParam
	for _, chunk := range records.Partition(records.Unique(ids), records.IDPartitionSize) {
		q := fmt.Sprintf(`SELECT %s, group_name, value, lddate FROM %s
		      WHERE param_name = ? AND %s IN (%s)`, t.anchor, t.table, t.anchor, placeholders(len(chunk)))
		args := append([]any{filterParamName}, int64Args(chunk)...)
		err := queryEach(ctx, t.db, t.table, q, args, func(rows *sql.Rows) error {
			var p records.FilterParam
			var value string
			var loaded float64
			if err := rows.Scan(&p.AnchorID, &p.Group, &value, &loaded); err != nil {
				return err
			}
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil
			}
			p.Value = v
			p.LoadedAt = fromEpoch(loaded)
			out = append(out, p)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Insert appends a FILTERID row.
func (t *FilterParamTable) Insert(ctx context.Context, p records.FilterParam) error {
	q := fmt.Sprintf(`INSERT INTO %s (%s, group_name, param_name, value, lddate) VALUES (?, ?, ?, ?, ?)`, t.table, t.anchor)
	_, err := t.db.ExecContext(ctx, q, p.AnchorID, p.Group, filterParamName, strconv.FormatInt(p.Value, 10), toEpoch(p.LoadedAt))
	if err != nil {
		return fmt.Errorf("insert %s row for %d: %w", t.table, p.AnchorID, err)
	}
	return nil
}
