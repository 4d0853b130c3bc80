package search

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mujz/pgsearch/pkg/query"
	"github.com/mujz/pgsearch/pkg/schema"
)

func filmDescriber() schema.StaticDescriber {
	return schema.StaticDescriber{
		"films": {
			"id":           {Name: "id", Type: "integer"},
			"name":         {Name: "name", Type: "character varying"},
			"description":  {Name: "description", Type: "text", Nullable: true},
			"city":         {Name: "city", Type: "character varying", Nullable: true},
			"release_date": {Name: "release_date", Type: "date", Nullable: true},
		},
	}
}

func filmView() View {
	return View{
		Name: "films_search",
		Model: schema.Model{
			Table:      "films",
			PrimaryKey: "id",
			Attributes: []string{"id", "name", "description", "city", "release_date"},
		},
		Weights: map[string]schema.Weight{
			"name":        schema.WeightA,
			"description": schema.WeightB,
			"city":        schema.WeightC,
		},
	}
}

const filmProjection = "films.id, films.name, films.description, films.city, films.release_date"

func TestBuildSearchStatementFreeText(t *testing.T) {
	svc := NewService(nil, filmDescriber())

	sql, args, err := svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("Chicago"), Options{})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT "+filmProjection+", "+
			"ts_rank(films_search.document, to_tsquery('english', $1)) AS rank "+
			"FROM films_search JOIN films ON films_search.id = films.id "+
			"WHERE films_search.document @@ to_tsquery('english', $2) "+
			"ORDER BY rank DESC",
		sql)
	assert.Equal(t, []interface{}{"Chicago:*", "Chicago:*"}, args)
}

func TestBuildSearchStatementExplicitOrderOverridesRank(t *testing.T) {
	svc := NewService(nil, filmDescriber())

	sql, _, err := svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("Mind order:release_date"), Options{})
	require.NoError(t, err)

	assert.Contains(t, sql, "ORDER BY films.release_date ASC")
	assert.NotContains(t, sql, "ORDER BY rank DESC")
	// The rank column is still projected for callers that want it.
	assert.Contains(t, sql, "AS rank")
}

func TestBuildSearchStatementComparisonFilter(t *testing.T) {
	svc := NewService(nil, filmDescriber())

	sql, args, err := svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("Mind release_date:<2002-01-01"), Options{})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT "+filmProjection+", "+
			"ts_rank(films_search.document, to_tsquery('english', $1)) AS rank "+
			"FROM films_search JOIN films ON films_search.id = films.id "+
			"WHERE films_search.document @@ to_tsquery('english', $2) "+
			"AND films.release_date < $3 "+
			"ORDER BY rank DESC",
		sql)
	assert.Equal(t, []interface{}{"Mind:*", "Mind:*", "2002-01-01"}, args)
}

func TestBuildSearchStatementFuzzyFilter(t *testing.T) {
	svc := NewService(nil, filmDescriber())

	// String-typed column: no cast.
	sql, args, err := svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("city:Chicago"), Options{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT "+filmProjection+" "+
			"FROM films_search JOIN films ON films_search.id = films.id "+
			"WHERE films.city ILIKE $1",
		sql)
	assert.Equal(t, []interface{}{"%Chicago%"}, args)

	// Non-string column: cast to text first.
	sql, args, err = svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("release_date:2001"), Options{})
	require.NoError(t, err)
	assert.Contains(t, sql, "films.release_date::text ILIKE $1")
	assert.Equal(t, []interface{}{"%2001%"}, args)
}

func TestBuildSearchStatementPagination(t *testing.T) {
	svc := NewService(nil, filmDescriber())

	sql, args, err := svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("Washington limit:2 offset:1"), Options{})
	require.NoError(t, err)

	assert.Contains(t, sql, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []interface{}{"Washington:*", "Washington:*", 2, 1}, args)
}

func TestBuildSearchStatementOptionsTakePriority(t *testing.T) {
	svc := NewService(nil, filmDescriber())

	sql, args, err := svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("city:Chicago order:name limit:5 offset:2"),
		Options{
			Where:  map[string]query.Filter{"city": {Operator: query.OpEq, Value: "Paris"}},
			Order:  []query.OrderClause{{Expression: "release_date", Desc: true}},
			Limit:  10,
			Offset: 4,
		})
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE films.city = $1")
	assert.Contains(t, sql, "ORDER BY films.release_date DESC")
	assert.Contains(t, sql, "LIMIT $2 OFFSET $3")
	assert.Equal(t, []interface{}{"Paris", 10, 4}, args)
}

func TestBuildSearchStatementMultiWordFreeText(t *testing.T) {
	svc := NewService(nil, filmDescriber())

	_, args, err := svc.buildSearchStatement(context.Background(), filmView(),
		query.Parse("free range pork"), Options{})
	require.NoError(t, err)

	// All words are required; only the last is a prefix match.
	assert.Equal(t, []interface{}{"free & range & pork:*", "free & range & pork:*"}, args)
}

func TestResolveProjection(t *testing.T) {
	base := schema.Model{
		Table:      "films",
		PrimaryKey: "id",
		Attributes: []string{"id", "name", "city"},
	}

	t.Run("caller attributes win", func(t *testing.T) {
		assert.Equal(t, []string{"name"}, resolveProjection(base, []string{"name"}))
	})

	t.Run("search scope beats default scope", func(t *testing.T) {
		m := base
		m.Scopes = map[string][]string{
			schema.ScopeSearch:  {"name", "city"},
			schema.ScopeDefault: {"id", "name"},
		}
		assert.Equal(t, []string{"name", "city"}, resolveProjection(m, nil))
	})

	t.Run("default scope when no search scope", func(t *testing.T) {
		m := base
		m.Scopes = map[string][]string{schema.ScopeDefault: {"id", "name"}}
		assert.Equal(t, []string{"id", "name"}, resolveProjection(m, nil))
	})

	t.Run("all attributes as last resort", func(t *testing.T) {
		assert.Equal(t, []string{"id", "name", "city"}, resolveProjection(base, nil))
	})
}

func TestToTSQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"single word", "chicago", "chicago:*"},
		{"multiple words", "beautiful mind", "beautiful & mind:*"},
		{"quotes escaped", "o'fallon", "o''fallon:*"},
		{"extra whitespace", "  beautiful   mind  ", "beautiful & mind:*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToTSQuery(tt.input))
		})
	}
}

func TestSearchExecutesAndScans(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "rank"}).
		AddRow(1, []byte("Chicago"), 0.9).
		AddRow(2, []byte("The Fugitive"), 0.4)

	mock.ExpectQuery("SELECT (.+) FROM films_search JOIN films").
		WithArgs("Chicago:*", "Chicago:*").
		WillReturnRows(rows)

	svc := NewService(db, filmDescriber())
	results, err := svc.Search(context.Background(), filmView(), "Chicago", Options{})
	require.NoError(t, err)

	require.Len(t, results, 2)
	// Byte slices come back as strings; row order is preserved.
	assert.Equal(t, "Chicago", results[0]["name"])
	assert.Equal(t, "The Fugitive", results[1]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPropagatesExecutionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbErr := errors.New(`pq: relation "films_search" does not exist`)
	mock.ExpectQuery("SELECT (.+) FROM films_search").WillReturnError(dbErr)

	svc := NewService(db, filmDescriber())
	_, err = svc.Search(context.Background(), filmView(), "Chicago", Options{})
	require.Error(t, err)
	// Collaborator errors pass through unchanged.
	assert.ErrorIs(t, err, dbErr)
}

func TestSearchParsedAcceptsStructuredIntent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $3")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	q := &query.ParsedQuery{
		FreeText: "Mind",
		Filters:  map[string]query.Filter{},
		Limit:    3,
	}

	svc := NewService(db, filmDescriber())
	_, err = svc.SearchParsed(context.Background(), filmView(), q, Options{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
