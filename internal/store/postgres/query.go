package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// where accumulates numbered placeholders for a dynamic WHERE clause.
type where struct {
	clauses []string
	args    []any
}

// add appends cond with %d replaced by the next placeholder index.
func (w *where) add(cond string, v any) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// window applies the Since/Until bounds of opts to column.
func (w *where) window(column string, opts domain.ListOpts) {
	if opts.Since != nil {
		w.add(column+" >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		w.add(column+" <= $%d", *opts.Until)
	}
}

// page renders LIMIT/OFFSET for opts and appends their arguments.
func (w *where) page(opts domain.ListOpts) string {
	var sb strings.Builder
	if opts.Limit > 0 {
		w.args = append(w.args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(w.args))
	}
	if opts.Offset > 0 {
		w.args = append(w.args, opts.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(w.args))
	}
	return sb.String()
}
