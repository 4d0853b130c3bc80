//go:build integration

package search

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mujz/pgsearch/pkg/document"
	"github.com/mujz/pgsearch/pkg/schema"
)

func setupFilmDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("films_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	seedFilms(t, db)
	return db
}

func seedFilms(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE films (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			city VARCHAR(255),
			release_date DATE
		)`,
		`CREATE TABLE actors (
			id SERIAL PRIMARY KEY,
			film_id INTEGER REFERENCES films(id),
			name VARCHAR(255) NOT NULL
		)`,
		`INSERT INTO films (name, description, city, release_date) VALUES
			('Chicago', 'Two murderesses compete for fame', 'New York', '2002-01-18'),
			('The Fugitive', 'A doctor on the run through Chicago', 'Chicago', '1993-08-06'),
			('A Beautiful Mind', 'The life of mathematician John Nash', 'Princeton', '2001-12-21'),
			('Eternal Sunshine of the Spotless Mind', 'A couple erases each other from memory', 'Montauk', '2004-03-19'),
			('Washington Square', 'An heiress and her suitor in old New York', 'Washington', '1997-10-10'),
			('Mr. Smith Goes to Washington', 'A naive senator takes on corruption', 'New York', '1939-10-19'),
			('The Post', 'Publishing the Pentagon Papers in Washington', 'Arlington', '2017-12-22')`,
		`INSERT INTO actors (film_id, name) VALUES
			(1, 'Renee Zellweger'),
			(1, 'Richard Gere'),
			(2, 'Harrison Ford')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func filmIntegrationView() View {
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
		Options: document.Options{
			Include: []document.Include{{
				Model:      schema.Model{Table: "actors", PrimaryKey: "id"},
				ForeignKey: "film_id",
				Type:       schema.HasMany,
				Weights:    map[string]schema.Weight{"name": schema.WeightD},
			}},
		},
	}
}

func names(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r["name"].(string)
	}
	return out
}

func TestSearchIntegration(t *testing.T) {
	db := setupFilmDB(t)
	ctx := context.Background()

	describer, err := schema.NewPostgresDescriber(db)
	require.NoError(t, err)

	svc := NewService(db, describer)
	view := filmIntegrationView()
	require.NoError(t, svc.CreateView(ctx, view))

	t.Run("name weight outranks description and city", func(t *testing.T) {
		results, err := svc.Search(ctx, view, "Chicago", Options{})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, []string{"Chicago", "The Fugitive"}, names(results))
	})

	t.Run("explicit order replaces relevance order", func(t *testing.T) {
		results, err := svc.Search(ctx, view, "Mind order:release_date", Options{})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, []string{"A Beautiful Mind", "Eternal Sunshine of the Spotless Mind"},
			names(results))
	})

	t.Run("comparison filter narrows matches", func(t *testing.T) {
		results, err := svc.Search(ctx, view, "Mind release_date:<2002-01-01", Options{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "A Beautiful Mind", results[0]["name"])
	})

	t.Run("pagination windows are disjoint", func(t *testing.T) {
		all, err := svc.Search(ctx, view, "Washington", Options{})
		require.NoError(t, err)
		require.Len(t, all, 3)

		page, err := svc.Search(ctx, view, "Washington limit:2 offset:1", Options{})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, names(all)[1:3], names(page))

		first, err := svc.Search(ctx, view, "Washington limit:1", Options{})
		require.NoError(t, err)
		require.Len(t, first, 1)
		assert.NotContains(t, names(page), first[0]["name"])
	})

	t.Run("fuzzy filter matches substrings", func(t *testing.T) {
		results, err := svc.Search(ctx, view, "city:chic", Options{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "The Fugitive", results[0]["name"])
	})

	t.Run("included association text is searchable", func(t *testing.T) {
		results, err := svc.Search(ctx, view, "Zellweger", Options{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Chicago", results[0]["name"])
	})

	t.Run("refresh picks up new rows", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO films (name, description, city, release_date)
			VALUES ('Chicago Heights', 'A small town drama', 'Chicago Heights', '2009-11-06')`)
		require.NoError(t, err)

		results, err := svc.Search(ctx, view, "Heights", Options{})
		require.NoError(t, err)
		assert.Empty(t, results, "view should lag source data until refreshed")

		require.NoError(t, svc.Refresh(ctx, view.Name))

		results, err = svc.Search(ctx, view, "Heights", Options{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Chicago Heights", results[0]["name"])
	})

	t.Run("drop removes the view", func(t *testing.T) {
		require.NoError(t, svc.DropView(ctx, view.Name))
		_, err := svc.Search(ctx, view, "Chicago", Options{})
		assert.Error(t, err)
	})
}
