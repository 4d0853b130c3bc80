package search

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mujz/pgsearch/pkg/sqlbuilder"
)

// CreateView builds the weighted document expression for the view's
// model and materializes it. The view stores the source primary key
// and the document tsvector; searches join back to the source table
// for everything else. Configuration errors (bad weight codes,
// unknown association types) fail here before any SQL reaches the
// database.
func (s *Service) CreateView(ctx context.Context, v View) error {
	ctx, span := tracer.Start(ctx, "CreateView",
		trace.WithAttributes(attribute.String("view", v.Name)),
	)
	defer span.End()

	doc, err := s.builder.Build(ctx, v.Model, v.Weights, v.Options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid view configuration")
		return err
	}

	source := v.table()
	pk := v.primaryKey()

	stmt := sqlbuilder.New().
		Create("MATERIALIZED VIEW", v.Name).
		Select(
			sqlbuilder.Col(source, pk),
			sqlbuilder.Expr(doc.Expression, documentColumn),
		).
		From(source).
		Join(doc.Joins...).
		GroupBy(doc.GroupBy...).
		Suffix("WITH DATA")

	// Aggregated fragments still need the select's key column grouped
	// when no cardinality-one include contributed a group key.
	if doc.Aggregated && len(doc.GroupBy) == 0 {
		stmt.GroupBy(fmt.Sprintf("%s.%s", source, pk))
	}

	sqlText := stmt.BuildInline()
	s.log.WithFields(logrus.Fields{
		"view": v.Name,
		"sql":  sqlText,
	}).Debug("creating materialized view")

	if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create view")
		return err
	}

	span.SetStatus(codes.Ok, "view created")
	return nil
}

// DropView removes the materialized view if it exists.
func (s *Service) DropView(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DROP MATERIALIZED VIEW IF EXISTS "+pq.QuoteIdentifier(name))
	return err
}

// Refresh rebuilds the materialized view in full. There is no
// incremental maintenance; the view reflects source data as of the
// last refresh. Cached search results are invalidated afterwards.
func (s *Service) Refresh(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "Refresh",
		trace.WithAttributes(attribute.String("view", name)),
	)
	defer span.End()

	start := time.Now()
	_, err := s.db.ExecContext(ctx, "REFRESH MATERIALIZED VIEW "+pq.QuoteIdentifier(name))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		s.observeRefresh(name, "error", start)
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.WithError(err).Warn("failed to invalidate result cache")
		}
	}

	span.SetStatus(codes.Ok, "view refreshed")
	s.observeRefresh(name, "ok", start)
	return nil
}

func (s *Service) observeRefresh(view, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RefreshesTotal.WithLabelValues(view, status).Inc()
	s.metrics.RefreshDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
}
