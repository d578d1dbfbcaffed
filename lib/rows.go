package dbq

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// IndexKey is the synthetic column injected into every Row, holding the
// zero-based ordinal of the row within its result set.
const IndexKey = "index"

// ResultSetsKey is the key under which a stored procedure result carries the
// cursors it produced, when it produced any.
const ResultSetsKey = "resultSets"

// Row maps column names to trimmed string values (nil for SQL NULL), plus
// the synthetic IndexKey entry. Key order is not significant.
type Row map[string]any

// ResultSet is the ordered sequence of rows produced by one cursor.
type ResultSet []Row

// ProcedureResult maps output parameter field names to trimmed scalar
// values. When the procedure produced cursors it also carries ResultSetsKey
// holding an ordered []ResultSet.
type ProcedureResult map[string]any

// collectRows drains the current result set of rows into a ResultSet. The
// cursor is consumed destructively; column order is not preserved in the row
// mapping, row order is.
func collectRows(rows *sqlx.Rows) (ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := ResultSet{}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(cols)+1)
		for i, col := range cols {
			row[col] = TrimValue(stringValue(vals[i]))
		}
		row[IndexKey] = len(out)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// stringValue renders a driver value as its string representation, keeping
// NULL as nil.
func stringValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
