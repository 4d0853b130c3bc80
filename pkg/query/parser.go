// Package query implements the human-typed search query language.
//
// A query mixes free words with key:value tokens:
//
//	Washington city:Chicago order:!release_date limit:10
//
// Reserved keys are order (prefix the value with ! for descending;
// repeated order keys accumulate), limit, and offset. Any other key is
// treated as a filter on that attribute. A filter value may start with
// =, >, <, >= or <= to select a comparison operator; without one the
// filter is a fuzzy (case-insensitive substring) match.
//
// Parsing never fails. Ambiguous or malformed fragments degrade into
// the free-text term instead of raising an error.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq  Operator = "="
	OpGt  Operator = ">"
	OpLt  Operator = "<"
	OpGte Operator = ">="
	OpLte Operator = "<="
	// OpFuzzy is the default: case-insensitive substring match.
	OpFuzzy Operator = "fuzzy"
)

// Filter is a single attribute predicate.
type Filter struct {
	Operator Operator
	Value    string
}

// OrderClause is one entry of the order list.
type OrderClause struct {
	Expression string
	Desc       bool
}

// ParsedQuery is the structured intent extracted from a raw query
// string. It is built once per search call and not mutated afterwards.
type ParsedQuery struct {
	// Raw is the original query string.
	Raw string
	// FreeText is what remains after every key:value token is removed.
	FreeText string
	// Filters maps attribute name to its predicate. Duplicate keys
	// overwrite; the last occurrence wins.
	Filters map[string]Filter
	// Order accumulates order keys in textual left-to-right order.
	Order []OrderClause
	// Limit is -1 when unbounded.
	Limit int
	// Offset is never negative.
	Offset int
}

// reserved keys of the query language.
const (
	keyOrder  = "order"
	keyLimit  = "limit"
	keyOffset = "offset"
)

// Parse extracts structured intent from a raw query string. It has no
// failure mode: anything that does not parse as a key:value token stays
// in the free-text term, and non-numeric limit/offset values are
// treated as absent.
func Parse(raw string) *ParsedQuery {
	q := &ParsedQuery{
		Raw:     raw,
		Filters: make(map[string]Filter),
		Limit:   -1,
	}

	tokens := lex(raw)

	// Words before the first key token form the free-text term; words
	// after a key token extend that key's value until the next key.
	var free []string
	i := 0
	for i < len(tokens) && tokens[i].kind == tokenWord {
		free = append(free, tokens[i].text)
		i++
	}
	q.FreeText = strings.Join(free, " ")

	for i < len(tokens) {
		tok := tokens[i]
		i++

		value := []string{}
		if tok.rest != "" {
			value = append(value, tok.rest)
		}
		for i < len(tokens) && tokens[i].kind == tokenWord {
			value = append(value, tokens[i].text)
			i++
		}
		q.apply(tok.key, strings.Join(value, " "))
	}

	return q
}

// apply dispatches one key:value pair onto the structured intent.
func (q *ParsedQuery) apply(key, value string) {
	switch key {
	case keyOrder:
		clause := OrderClause{Expression: value}
		if strings.HasPrefix(value, "!") {
			clause.Expression = value[1:]
			clause.Desc = true
		}
		if clause.Expression != "" {
			q.Order = append(q.Order, clause)
		}
	case keyLimit:
		if n, err := strconv.Atoi(value); err == nil && n >= -1 {
			q.Limit = n
		}
	case keyOffset:
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			q.Offset = n
		}
	default:
		q.Filters[key] = parseFilter(value)
	}
}

// parseFilter reads an optional leading comparison operator off the
// value. No operator means a fuzzy match.
func parseFilter(value string) Filter {
	switch {
	case strings.HasPrefix(value, ">="):
		return Filter{Operator: OpGte, Value: value[2:]}
	case strings.HasPrefix(value, "<="):
		return Filter{Operator: OpLte, Value: value[2:]}
	case strings.HasPrefix(value, "="):
		return Filter{Operator: OpEq, Value: value[1:]}
	case strings.HasPrefix(value, ">"):
		return Filter{Operator: OpGt, Value: value[1:]}
	case strings.HasPrefix(value, "<"):
		return Filter{Operator: OpLt, Value: value[1:]}
	}
	return Filter{Operator: OpFuzzy, Value: value}
}

// String re-serializes the structured intent into query-language form.
// Parsing the result yields an equivalent ParsedQuery; the string
// itself is not guaranteed to match the original (filters render in
// sorted attribute order).
func (q *ParsedQuery) String() string {
	var parts []string
	if q.FreeText != "" {
		parts = append(parts, q.FreeText)
	}

	attrs := make([]string, 0, len(q.Filters))
	for attr := range q.Filters {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)
	for _, attr := range attrs {
		f := q.Filters[attr]
		if f.Operator == OpFuzzy {
			parts = append(parts, fmt.Sprintf("%s:%s", attr, f.Value))
		} else {
			parts = append(parts, fmt.Sprintf("%s:%s%s", attr, f.Operator, f.Value))
		}
	}

	for _, o := range q.Order {
		if o.Desc {
			parts = append(parts, fmt.Sprintf("order:!%s", o.Expression))
		} else {
			parts = append(parts, fmt.Sprintf("order:%s", o.Expression))
		}
	}

	if q.Limit >= 0 {
		parts = append(parts, fmt.Sprintf("limit:%d", q.Limit))
	}
	if q.Offset > 0 {
		parts = append(parts, fmt.Sprintf("offset:%d", q.Offset))
	}

	return strings.Join(parts, " ")
}
