package search

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mujz/pgsearch/pkg/cache"
	"github.com/mujz/pgsearch/pkg/document"
	"github.com/mujz/pgsearch/pkg/query"
	"github.com/mujz/pgsearch/pkg/schema"
	"github.com/mujz/pgsearch/pkg/sqlbuilder"
)

var tracer = otel.Tracer("pgsearch/search")

// documentColumn is the tsvector column every search view exposes.
const documentColumn = "document"

// Executor runs the statements the orchestrator produces. *sql.DB
// satisfies it. Cancellation and timeouts are the executor's concern;
// its errors are propagated unchanged.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Row is one result row: projected attribute name to value.
type Row map[string]interface{}

// View binds a materialized search view to its source model and the
// weighted attributes its document is built from.
type View struct {
	Name    string
	Model   schema.Model
	Weights map[string]schema.Weight
	Options document.Options
}

// table returns the source table, honoring the override.
func (v View) table() string {
	if v.Options.TableName != "" {
		return v.Options.TableName
	}
	return v.Model.Table
}

// primaryKey returns the source primary key, honoring the override.
func (v View) primaryKey() string {
	if v.Options.PrimaryKey != "" {
		return v.Options.PrimaryKey
	}
	return v.Model.PrimaryKey
}

// Options carries caller-supplied search refinements. They take
// priority over whatever the parsed query string says, attribute by
// attribute for filters and wholesale for order and pagination.
type Options struct {
	// Attributes overrides the projection.
	Attributes []string
	// Where filters by attribute; each entry overrides a parsed filter
	// on the same attribute.
	Where map[string]query.Filter
	// Order replaces the parsed order list entirely when non-empty.
	Order []query.OrderClause
	// Limit caps the result set when > 0.
	Limit int
	// Offset skips rows when > 0.
	Offset int
}

// Service orchestrates the parse, plan, render, execute pipeline. Each
// call is stateless; the only shared state is read-only schema
// metadata behind the describer.
type Service struct {
	db        Executor
	describer schema.Describer
	builder   *document.Builder
	log       *logrus.Logger
	metrics   *Metrics
	cache     *cache.QueryCache
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCache enables result caching. Entries are invalidated on
// refresh.
func WithCache(c *cache.QueryCache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates a search service executing against db and
// resolving metadata through describer.
func NewService(db Executor, describer schema.Describer, opts ...Option) *Service {
	s := &Service{
		db:        db,
		describer: describer,
		builder:   document.NewBuilder(describer),
		log:       logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search parses the raw query-language string and executes it against
// the view. See SearchParsed for the merge rules.
func (s *Service) Search(ctx context.Context, v View, rawQuery string, opts Options) ([]Row, error) {
	return s.SearchParsed(ctx, v, query.Parse(rawQuery), opts)
}

// SearchParsed executes an already-parsed query against the view. The
// view's document column drives full-text matching and ranking; the
// result rows are read from the source table through a join on the
// primary key, so callers see the original column values rather than
// what the view stores.
func (s *Service) SearchParsed(ctx context.Context, v View, q *query.ParsedQuery, opts Options) ([]Row, error) {
	ctx, span := tracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("view", v.Name),
			attribute.String("query", q.Raw),
		),
	)
	defer span.End()

	start := time.Now()

	sqlText, args, err := s.buildSearchStatement(ctx, v, q, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build statement")
		s.observeSearch(v.Name, "error", start)
		return nil, err
	}

	if s.cache != nil {
		key := cache.Key(sqlText, args)
		var cached []Row
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			s.observeCache(v.Name, true)
			s.observeSearch(v.Name, "ok", start)
			return cached, nil
		}
		s.observeCache(v.Name, false)
	}

	s.log.WithFields(logrus.Fields{
		"view": v.Name,
		"sql":  sqlText,
	}).Debug("executing search")

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		s.observeSearch(v.Name, "error", start)
		return nil, err
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scan rows")
		s.observeSearch(v.Name, "error", start)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.Key(sqlText, args), results); err != nil {
			s.log.WithError(err).Warn("failed to cache search results")
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "search completed")
	s.observeSearch(v.Name, "ok", start)
	return results, nil
}

// buildSearchStatement merges parsed intent with caller options and
// drives the assembler.
func (s *Service) buildSearchStatement(ctx context.Context, v View, q *query.ParsedQuery, opts Options) (string, []interface{}, error) {
	source := v.table()
	pk := v.primaryKey()

	stmt := sqlbuilder.New().
		From(v.Name).
		Join(fmt.Sprintf("JOIN %s ON %s.%s = %s.%s", source, v.Name, pk, source, pk))

	for _, attr := range resolveProjection(v.Model, opts.Attributes) {
		stmt.Select(sqlbuilder.Col(source, attr))
	}

	ts := ToTSQuery(q.FreeText)
	if ts != "" {
		stmt.Where(sqlbuilder.Raw(
			fmt.Sprintf("%s.%s @@ to_tsquery('english', ?)", v.Name, documentColumn), ts))
	}

	// Caller filters take attribute-level ownership over parsed ones.
	filters := make(map[string]query.Filter, len(q.Filters)+len(opts.Where))
	for attr, f := range q.Filters {
		filters[attr] = f
	}
	for attr, f := range opts.Where {
		filters[attr] = f
	}

	if len(filters) > 0 {
		cols, err := s.describer.DescribeTable(ctx, source)
		if err != nil {
			return "", nil, err
		}
		attrs := make([]string, 0, len(filters))
		for attr := range filters {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)
		for _, attr := range attrs {
			f := filters[attr]
			cond := sqlbuilder.Condition{
				Column:   fmt.Sprintf("%s.%s", source, attr),
				Operator: string(f.Operator),
				Value:    f.Value,
			}
			if f.Operator == query.OpFuzzy {
				cond.Operator = sqlbuilder.Fuzzy
				cond.CastText = !cols[attr].IsText()
			}
			stmt.Where(cond)
		}
	}

	order := opts.Order
	if len(order) == 0 {
		order = q.Order
	}
	for _, o := range order {
		expr := o.Expression
		if !strings.Contains(expr, ".") {
			expr = fmt.Sprintf("%s.%s", source, expr)
		}
		stmt.OrderBy(expr, o.Desc)
	}
	if ts != "" {
		stmt.Select(sqlbuilder.ExprArgs(
			fmt.Sprintf("ts_rank(%s.%s, to_tsquery('english', ?))", v.Name, documentColumn),
			"rank", ts))
		// Rank dominates unless the caller ordered explicitly.
		if !stmt.HasOrder() {
			stmt.OrderBy("rank", true)
		}
	}

	limit := q.Limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	offset := q.Offset
	if opts.Offset > 0 {
		offset = opts.Offset
	}
	stmt.Limit(limit).Offset(offset)

	sqlText, args := stmt.Build()
	return sqlText, args, nil
}

// resolveProjection picks the projected attributes: caller list, then
// the model's "search" scope, then its default scope, then everything.
func resolveProjection(m schema.Model, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	if attrs, ok := m.Scope(schema.ScopeSearch); ok {
		return attrs
	}
	if attrs, ok := m.Scope(schema.ScopeDefault); ok {
		return attrs
	}
	return m.Attributes
}

// ToTSQuery compiles a free-text term into a prefix-match tsquery:
// words joined with &, the final word marked as a prefix.
func ToTSQuery(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strings.ReplaceAll(w, "'", "''")
	}
	parts[len(parts)-1] += ":*"
	return strings.Join(parts, " & ")
}

// scanRows reads every row into attribute/value maps, converting byte
// slices to strings.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) observeSearch(view, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchesTotal.WithLabelValues(view, status).Inc()
	s.metrics.SearchDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
}

func (s *Service) observeCache(view string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHitsTotal.WithLabelValues(view).Inc()
	} else {
		s.metrics.CacheMissesTotal.WithLabelValues(view).Inc()
	}
}
