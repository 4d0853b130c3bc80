// Package document builds the weighted full-text document expression
// for a model and its included associations.
//
// The document is a tsvector concatenation: one setweight(to_tsvector(...))
// fragment per weighted attribute, ordered depth-first across the
// association tree with the base table first. Alongside the expression
// the builder emits the LEFT OUTER JOIN clauses needed to reach each
// included table and the GROUP BY keys that keep the result one row per
// root entity.
package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mujz/pgsearch/pkg/schema"
)

// Configuration errors, raised before any SQL is emitted.
var (
	ErrInvalidWeight      = errors.New("document: invalid weight code")
	ErrInvalidAssociation = errors.New("document: invalid association type")
)

// Include describes one association to fold into the document.
type Include struct {
	Model schema.Model
	// As aliases the joined table. Optional.
	As string
	// ForeignKey names the linking column. For belongsTo it lives on
	// the parent table; for hasOne and hasMany it lives on this table.
	ForeignKey string
	// TargetKey names the column the foreign key points at. Defaults
	// to the owning side's primary key.
	TargetKey string
	Type      schema.AssociationType
	// Weights selects which of this table's attributes join the
	// document, and at what rank.
	Weights map[string]schema.Weight
	// Include nests further associations beneath this one.
	Include []Include
}

// Options adjusts how the root model is read.
type Options struct {
	// TableName overrides the model's table.
	TableName string
	// PrimaryKey overrides the model's primary key.
	PrimaryKey string
	// Include lists the associations to fold in, in document order.
	Include []Include
}

// Document is the built expression plus the clauses required to
// compute it.
type Document struct {
	// Expression is the full tsvector concatenation.
	Expression string
	// Joins holds one LEFT OUTER JOIN clause per included association,
	// in traversal order.
	Joins []string
	// GroupBy holds one qualified key per non-aggregated association,
	// deduplicated, in order of first appearance.
	GroupBy []string
	// Aggregated reports whether any fragment is computed under
	// row-aggregation, i.e. a hasMany association is present.
	Aggregated bool
}

// Builder compiles association trees into document expressions. Safe
// for concurrent use; all per-build state is threaded through the
// recursion explicitly.
type Builder struct {
	describer schema.Describer
}

// NewBuilder creates a builder resolving column metadata through d.
func NewBuilder(d schema.Describer) *Builder {
	return &Builder{describer: d}
}

// node carries the per-node build context through the recursion.
type node struct {
	table     string // physical table name
	ref       string // alias if set, otherwise the table name
	root      bool
	aggregate bool
	join      string // rendered join clause; empty for the root
	groupKey  string // driving key to group by; empty when aggregated
	weights   map[string]schema.Weight
	pk        string
	include   []Include
}

// result is one node's contribution, buffered so sibling fragments can
// be reassembled by structural position regardless of completion order.
type result struct {
	fragments  []string
	joins      []string
	groups     []string
	aggregated bool
}

// Build compiles the document expression for model and its includes.
// An unrecognized weight code or association type fails here, before
// any SQL is handed to the database.
func (b *Builder) Build(ctx context.Context, model schema.Model, weights map[string]schema.Weight, opts Options) (*Document, error) {
	root := node{
		table:   model.Table,
		pk:      model.PrimaryKey,
		root:    true,
		weights: weights,
		include: opts.Include,
	}
	if opts.TableName != "" {
		root.table = opts.TableName
	}
	if opts.PrimaryKey != "" {
		root.pk = opts.PrimaryKey
	}
	root.ref = root.table

	res, err := b.buildNode(ctx, root)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Expression: strings.Join(res.fragments, " || "),
		Joins:      res.joins,
		Aggregated: res.aggregated,
	}

	// Dedupe group keys, keeping first-appearance order.
	seen := make(map[string]bool)
	for _, g := range res.groups {
		if !seen[g] {
			seen[g] = true
			doc.GroupBy = append(doc.GroupBy, g)
		}
	}

	return doc, nil
}

// buildNode emits the current node's fragments, then recurses into its
// includes depth-first. Sibling metadata lookups run concurrently, but
// results are stitched back together in declaration order.
func (b *Builder) buildNode(ctx context.Context, n node) (result, error) {
	// Validate child specs up front so configuration errors surface
	// before any metadata round trip.
	children := make([]node, len(n.include))
	for i, inc := range n.include {
		child, err := childNode(n, inc)
		if err != nil {
			return result{}, err
		}
		children[i] = child
	}

	cols, err := b.describer.DescribeTable(ctx, n.table)
	if err != nil {
		return result{}, err
	}

	var res result
	if n.aggregate && len(n.weights) > 0 {
		res.aggregated = true
	}
	if n.join != "" {
		res.joins = append(res.joins, n.join)
	}
	if n.groupKey != "" {
		res.groups = append(res.groups, n.groupKey)
	}

	for _, attr := range sortedByWeight(n.weights) {
		w := n.weights[attr]
		if !w.Valid() {
			return result{}, fmt.Errorf("%w: %q for attribute %q", ErrInvalidWeight, string(w), attr)
		}
		res.fragments = append(res.fragments, fragment(n, attr, cols[attr], w))
	}

	// buffered per position; never appended in completion order
	childResults := make([]result, len(children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			r, err := b.buildNode(gctx, child)
			if err != nil {
				return err
			}
			childResults[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result{}, err
	}

	for _, r := range childResults {
		res.fragments = append(res.fragments, r.fragments...)
		res.joins = append(res.joins, r.joins...)
		res.groups = append(res.groups, r.groups...)
		res.aggregated = res.aggregated || r.aggregated
	}

	return res, nil
}

// childNode resolves join direction and grouping for one include.
func childNode(parent node, inc Include) (node, error) {
	child := node{
		table:   inc.Model.Table,
		pk:      inc.Model.PrimaryKey,
		weights: inc.Weights,
		include: inc.Include,
	}
	child.ref = child.table
	if inc.As != "" {
		child.ref = inc.As
	}

	// Anything nested beneath a hasMany multiplies rows too, so the
	// aggregation flag propagates down the subtree.
	child.aggregate = parent.aggregate || inc.Type == schema.HasMany

	var on string
	switch inc.Type {
	case schema.BelongsTo:
		target := inc.TargetKey
		if target == "" {
			target = inc.Model.PrimaryKey
		}
		on = fmt.Sprintf("%s.%s = %s.%s", parent.ref, inc.ForeignKey, child.ref, target)
	case schema.HasOne, schema.HasMany:
		target := inc.TargetKey
		if target == "" {
			target = parent.pk
		}
		on = fmt.Sprintf("%s.%s = %s.%s", child.ref, inc.ForeignKey, parent.ref, target)
	default:
		return node{}, fmt.Errorf("%w: %q for table %q", ErrInvalidAssociation, string(inc.Type), inc.Model.Table)
	}

	if inc.As != "" {
		child.join = fmt.Sprintf("LEFT OUTER JOIN %s AS %s ON %s", inc.Model.Table, inc.As, on)
	} else {
		child.join = fmt.Sprintf("LEFT OUTER JOIN %s ON %s", inc.Model.Table, on)
	}

	// Aggregation replaces grouping: only joins with cardinality <= 1
	// keep the result one row per root entity via GROUP BY on the
	// driving node's key.
	if !child.aggregate {
		child.groupKey = fmt.Sprintf("%s.%s", parent.ref, parent.pk)
	}

	return child, nil
}

// fragment renders one weighted attribute. Casts to text, aggregates,
// and coalesces as the attribute's storage and join context demand.
func fragment(n node, attr string, col schema.Column, w schema.Weight) string {
	expr := fmt.Sprintf("%s.%s", n.ref, attr)
	if !col.IsText() {
		expr += "::text"
	}
	if n.aggregate {
		expr = fmt.Sprintf("string_agg(%s, ' ')", expr)
	}
	// Outer-joined tables may produce no matching row, so every
	// non-root attribute coalesces; root attributes only when the
	// column itself is nullable. string_agg over zero rows is NULL.
	if col.Nullable || !n.root || n.aggregate {
		expr = fmt.Sprintf("coalesce(%s, '')", expr)
	}
	return fmt.Sprintf("setweight(to_tsvector('english', %s), '%s')", expr, string(w))
}

// sortedByWeight orders attributes by weight rank, then name, so the
// rendered document is deterministic and weight-ordered.
func sortedByWeight(weights map[string]schema.Weight) []string {
	attrs := make([]string, 0, len(weights))
	for attr := range weights {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		wi, wj := weights[attrs[i]], weights[attrs[j]]
		if wi != wj {
			return wi < wj
		}
		return attrs[i] < attrs[j]
	})
	return attrs
}
