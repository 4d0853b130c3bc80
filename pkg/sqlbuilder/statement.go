// Package sqlbuilder assembles SQL statements from accumulated clauses.
//
// A Statement is a single-use accumulator: set the clauses in any
// order, then render once. Clauses always render in a fixed sequence
// (CREATE, SELECT, FROM, JOIN, WHERE, GROUP BY, ORDER BY, LIMIT,
// OFFSET) with empty clauses omitted. Build emits $n placeholders plus
// a bound-argument list; BuildInline renders quoted literals for
// statements that cannot be parameterized, such as CREATE MATERIALIZED
// VIEW.
//
// The builder performs no validation against schema metadata. A
// reference to a nonexistent column or table surfaces only when the
// statement executes.
package sqlbuilder

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Field is one projected select entry: either a raw expression with an
// alias, or a column qualified by its owning table. Expressions may
// carry ? placeholders with matching Args.
type Field struct {
	Expr   string
	Table  string
	Column string
	Alias  string
	Args   []interface{}
}

// Col projects a table-qualified column.
func Col(table, column string) Field {
	return Field{Table: table, Column: column}
}

// Expr projects a raw expression under an explicit alias.
func Expr(expr, alias string) Field {
	return Field{Expr: expr, Alias: alias}
}

// ExprArgs projects a raw expression with bound arguments for its ?
// placeholders.
func ExprArgs(expr, alias string, args ...interface{}) Field {
	return Field{Expr: expr, Alias: alias, Args: args}
}

func (f Field) render(bind func(interface{}) string) string {
	if f.Expr != "" {
		expr := substitute(f.Expr, f.Args, bind)
		if f.Alias != "" {
			return fmt.Sprintf("%s AS %s", expr, f.Alias)
		}
		return expr
	}
	qualified := fmt.Sprintf("%s.%s", f.Table, f.Column)
	if f.Alias != "" {
		return fmt.Sprintf("%s AS %s", qualified, f.Alias)
	}
	return qualified
}

// substitute replaces ? markers left to right with bound arguments.
func substitute(sql string, args []interface{}, bind func(interface{}) string) string {
	if len(args) == 0 {
		return sql
	}
	var b strings.Builder
	argIdx := 0
	for _, r := range sql {
		if r == '?' && argIdx < len(args) {
			b.WriteString(bind(args[argIdx]))
			argIdx++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Fuzzy is the marker operator for case-insensitive substring matching.
// It renders as ILIKE with the value wrapped in wildcards.
const Fuzzy = "fuzzy"

// Condition is a single WHERE predicate. Either Raw SQL with ?
// placeholders and matching Args, or a column/operator/value triple.
// CastText forces a ::text cast on the column before a fuzzy match when
// its storage type is not already string-like.
type Condition struct {
	Column   string
	Operator string
	Value    interface{}
	CastText bool

	Raw  string
	Args []interface{}
}

// Compare builds a column/operator/value predicate.
func Compare(column, operator string, value interface{}) Condition {
	return Condition{Column: column, Operator: operator, Value: value}
}

// Raw builds a predicate from a SQL fragment with ? placeholders.
func Raw(sql string, args ...interface{}) Condition {
	return Condition{Raw: sql, Args: args}
}

// OrderClause is one ORDER BY entry.
type OrderClause struct {
	Expression string
	Desc       bool
}

// Statement accumulates clauses for one SQL statement. Not safe for
// concurrent use; construct one per build.
type Statement struct {
	create string
	fields []Field
	from   string
	joins  []string
	wheres []Condition
	groups []string
	orders []OrderClause
	suffix string
	limit  int
	offset int
}

// New returns an empty statement. Limit starts unbounded.
func New() *Statement {
	return &Statement{limit: -1}
}

// Create sets a CREATE prefix, e.g. Create("MATERIALIZED VIEW", name)
// renders "CREATE MATERIALIZED VIEW name AS".
func (s *Statement) Create(object, name string) *Statement {
	s.create = fmt.Sprintf("CREATE %s %s AS", object, pq.QuoteIdentifier(name))
	return s
}

// Select appends projected fields.
func (s *Statement) Select(fields ...Field) *Statement {
	s.fields = append(s.fields, fields...)
	return s
}

// From sets the driving table.
func (s *Statement) From(table string) *Statement {
	s.from = table
	return s
}

// Join appends pre-rendered join clauses in order.
func (s *Statement) Join(clauses ...string) *Statement {
	s.joins = append(s.joins, clauses...)
	return s
}

// Where appends predicates, combined with AND.
func (s *Statement) Where(conds ...Condition) *Statement {
	s.wheres = append(s.wheres, conds...)
	return s
}

// GroupBy appends grouping expressions.
func (s *Statement) GroupBy(exprs ...string) *Statement {
	s.groups = append(s.groups, exprs...)
	return s
}

// OrderBy appends an order key.
func (s *Statement) OrderBy(expression string, desc bool) *Statement {
	s.orders = append(s.orders, OrderClause{Expression: expression, Desc: desc})
	return s
}

// HasOrder reports whether any order key has been set.
func (s *Statement) HasOrder() bool {
	return len(s.orders) > 0
}

// Limit sets the row limit; -1 means unbounded.
func (s *Statement) Limit(n int) *Statement {
	s.limit = n
	return s
}

// Offset sets the row offset.
func (s *Statement) Offset(n int) *Statement {
	s.offset = n
	return s
}

// Suffix appends trailing text after every other clause, e.g.
// "WITH DATA" on a materialized view definition.
func (s *Statement) Suffix(text string) *Statement {
	s.suffix = text
	return s
}

// Build renders the statement with $n placeholders and returns it with
// the bound argument list.
func (s *Statement) Build() (string, []interface{}) {
	return s.render(false)
}

// BuildInline renders the statement with values quoted inline via
// pq.QuoteLiteral. Required for DDL, which does not accept bind
// parameters.
func (s *Statement) BuildInline() string {
	sql, _ := s.render(true)
	return sql
}

func (s *Statement) render(inline bool) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	// bind appends an argument and returns its rendering: a $n
	// placeholder, or a quoted literal in inline mode.
	bind := func(v interface{}) string {
		if inline {
			return pq.QuoteLiteral(fmt.Sprint(v))
		}
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s.create != "" {
		clauses = append(clauses, s.create)
	}

	if len(s.fields) > 0 {
		rendered := make([]string, len(s.fields))
		for i, f := range s.fields {
			rendered[i] = f.render(bind)
		}
		clauses = append(clauses, "SELECT "+strings.Join(rendered, ", "))
	}

	if s.from != "" {
		clauses = append(clauses, "FROM "+s.from)
	}

	clauses = append(clauses, s.joins...)

	if len(s.wheres) > 0 {
		preds := make([]string, len(s.wheres))
		for i, c := range s.wheres {
			preds[i] = s.renderCondition(c, bind)
		}
		clauses = append(clauses, "WHERE "+strings.Join(preds, " AND "))
	}

	if len(s.groups) > 0 {
		clauses = append(clauses, "GROUP BY "+strings.Join(s.groups, ", "))
	}

	if len(s.orders) > 0 {
		rendered := make([]string, len(s.orders))
		for i, o := range s.orders {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			rendered[i] = o.Expression + " " + dir
		}
		clauses = append(clauses, "ORDER BY "+strings.Join(rendered, ", "))
	}

	if s.limit >= 0 {
		if inline {
			clauses = append(clauses, fmt.Sprintf("LIMIT %d", s.limit))
		} else {
			clauses = append(clauses, "LIMIT "+bind(s.limit))
		}
	}

	if s.offset > 0 {
		if inline {
			clauses = append(clauses, fmt.Sprintf("OFFSET %d", s.offset))
		} else {
			clauses = append(clauses, "OFFSET "+bind(s.offset))
		}
	}

	if s.suffix != "" {
		clauses = append(clauses, s.suffix)
	}

	return strings.Join(clauses, " "), args
}

// renderCondition renders one predicate. Raw fragments have their ?
// markers replaced left to right with bound arguments.
func (s *Statement) renderCondition(c Condition, bind func(interface{}) string) string {
	if c.Raw != "" {
		return substitute(c.Raw, c.Args, bind)
	}

	if c.Operator == Fuzzy {
		column := c.Column
		if c.CastText {
			column += "::text"
		}
		return fmt.Sprintf("%s ILIKE %s", column, bind(fmt.Sprintf("%%%v%%", c.Value)))
	}

	return fmt.Sprintf("%s %s %s", c.Column, c.Operator, bind(c.Value))
}
