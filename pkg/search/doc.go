// Package search orchestrates PostgreSQL full-text search over
// relational models.
//
// # Overview
//
// A search view is a materialized view combining a source table and
// its associations into one weighted tsvector document. This package
// drives the whole pipeline: it compiles the human-typed query
// language, assembles ranked SQL against the view, and executes it
// through a caller-supplied executor.
//
// # Query Syntax
//
// Free words plus key:value tokens:
//
//	Washington city:Chicago order:!release_date limit:10
//
// Reserved keys are order (leading ! means descending), limit, and
// offset. Any other key filters on that attribute; a value may start
// with =, >, <, >= or <= to pick the operator, and defaults to a
// case-insensitive substring match.
//
// # Usage Example
//
// Create a view and search it:
//
//	svc := search.NewService(db, describer)
//	view := search.View{
//		Name:  "films_search",
//		Model: films,
//		Weights: map[string]schema.Weight{
//			"name":        schema.WeightA,
//			"description": schema.WeightB,
//			"city":        schema.WeightC,
//		},
//	}
//	if err := svc.CreateView(ctx, view); err != nil {
//		log.Fatal(err)
//	}
//
//	rows, err := svc.Search(ctx, view, "Chicago limit:10", search.Options{})
//
// Results come back rank-ordered: matches on weight-A attributes beat
// matches on lower-weighted ones.
//
// # Related Packages
//
//   - pkg/query: the query-language parser
//   - pkg/document: the weighted document expression builder
//   - pkg/sqlbuilder: the clause-oriented statement assembler
//   - pkg/schema: model and column metadata
package search
