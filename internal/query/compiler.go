package query

import (
	"database/sql"
	"sort"
	"strconv"
	"strings"
)

// DefaultTable is the table every shard carries.
const DefaultTable = "books"

// Limit is the LIMIT/OFFSET window applied to the row query.
type Limit struct {
	Size   int
	Offset int
}

// PageLimit derives the window for a 1-based page.
func PageLimit(pageSize, page int) (Limit, error) {
	if pageSize < 1 {
		return Limit{}, newValidationError(ConstraintPageSize, "page size must be >= 1, got %d", pageSize)
	}
	if page < 1 {
		return Limit{}, newValidationError(ConstraintPage, "page must be >= 1, got %d", page)
	}
	return Limit{Size: pageSize, Offset: (page - 1) * pageSize}, nil
}

// Compiled is a parameterized row query and its matching count query. Both
// share Params; only RowQuery carries the pagination window.
type Compiled struct {
	RowQuery   string
	CountQuery string
	Params     map[string]string
}

// Args returns Params as named arguments in key order.
func (c Compiled) Args() []any {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, sql.Named(k, c.Params[k]))
	}
	return args
}

// Compiler turns a validated chain into queries for one kind of data store.
type Compiler interface {
	Compile(chain Chain, limit Limit) (Compiled, error)
}

// SQLite compiles chains to SQLite SQL with :name placeholders.
type SQLite struct {
	// Table defaults to DefaultTable.
	Table string
	// OrderBy is appended to the row query when set, e.g. "id DESC".
	OrderBy string
}

var _ Compiler = SQLite{}

// Compile implements Compiler. Every predicate is parenthesized and the chain
// is folded left to right, so "a AND b OR c" compiles to ((a) AND (b)) OR (c).
// Each parameter is keyed by field plus position so repeated fields never
// collide.
func (s SQLite) Compile(chain Chain, limit Limit) (Compiled, error) {
	if err := chain.Validate(); err != nil {
		return Compiled{}, err
	}
	if limit.Size < 1 {
		return Compiled{}, newValidationError(ConstraintPageSize, "page size must be >= 1, got %d", limit.Size)
	}
	if limit.Offset < 0 {
		return Compiled{}, newValidationError(ConstraintPage, "offset must be >= 0, got %d", limit.Offset)
	}

	table := s.Table
	if table == "" {
		table = DefaultTable
	}

	params := make(map[string]string, chain.Len())
	where := ""
	for i, p := range chain.Predicates {
		key := string(p.Field) + strconv.Itoa(i)
		cond := "(" + p.Field.Column() + " = :" + key + ")"
		params[key] = p.Value
		if p.Kind == Contains {
			cond = "(" + p.Field.Column() + " LIKE :" + key + ")"
			params[key] = "%" + p.Value + "%"
		}

		switch {
		case i == 0:
			where = cond
		case i == 1:
			where = where + " " + string(chain.Connectors[0]) + " " + cond
		default:
			// Fold what we have so far so SQL's AND-before-OR rule cannot
			// reorder the chain.
			where = "(" + where + ") " + string(chain.Connectors[i-1]) + " " + cond
		}
	}

	filter := ""
	if where != "" {
		filter = " WHERE " + where
	}

	var rows strings.Builder
	rows.WriteString("SELECT * FROM ")
	rows.WriteString(table)
	rows.WriteString(filter)
	if s.OrderBy != "" {
		rows.WriteString(" ORDER BY ")
		rows.WriteString(s.OrderBy)
	}
	rows.WriteString(" LIMIT ")
	rows.WriteString(strconv.Itoa(limit.Size))
	rows.WriteString(" OFFSET ")
	rows.WriteString(strconv.Itoa(limit.Offset))

	return Compiled{
		RowQuery:   rows.String(),
		CountQuery: "SELECT COUNT(*) FROM " + table + filter,
		Params:     params,
	}, nil
}
