package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

var ErrValuesRequired = errors.New("audit: insert requires values")

// InsertCond is a positional value list for a single row insert, kept
// from the teacher's builder since a one-row-per-cycle ledger needs
// nothing fancier than VALUES (?, ?, ...).
type InsertCond struct {
	Arg []any
}

// InsertBuilder builds and executes a single-row INSERT. Adapted from
// the teacher's mysql.InsertBuilder (mysql/insert.go): same
// table+values shape, generalized away from the teacher's hardcoded
// `users` table toward any table name, with the debug Printf calls
// dropped in favor of the caller's own logging.
type InsertBuilder struct {
	table  string
	values *InsertCond
}

// InsertFrom begins an InsertBuilder for table.
func InsertFrom(table string) InsertBuilder {
	return InsertBuilder{table: table}
}

// Values attaches the row to insert.
func (b InsertBuilder) Values(conds *InsertCond) InsertBuilder {
	b.values = conds
	return b
}

// Exec runs the insert and returns the new row's auto-increment ID.
func (b InsertBuilder) Exec(ctx context.Context, db *sqlx.DB) (int64, error) {
	q, args, err := b.build()
	if err != nil {
		return 0, err
	}
	q = db.Rebind(q)

	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "audit: insert exec")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "audit: insert last id")
	}
	return id, nil
}

func (b InsertBuilder) build() (string, []any, error) {
	if b.values == nil {
		return "", nil, ErrValuesRequired
	}
	if !safeIdent(b.table) {
		return "", nil, fmt.Errorf("audit: unsafe table name %q", b.table)
	}

	valStrs := make([]string, 0, len(b.values.Arg))
	for range b.values.Arg {
		valStrs = append(valStrs, "?")
	}

	sb := strings.Builder{}
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.table)
	sb.WriteString(" VALUES (")
	sb.WriteString(strings.Join(valStrs, ", "))
	sb.WriteString(")")

	return sb.String(), b.values.Arg, nil
}

func safeIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '.' ||
			(r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}
