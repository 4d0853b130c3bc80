package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mujz/pgsearch/pkg/cache"
	"github.com/mujz/pgsearch/pkg/config"
	"github.com/mujz/pgsearch/pkg/schema"
	"github.com/mujz/pgsearch/pkg/search"
)

func main() {
	port := flag.String("port", "8080", "Port to listen on")
	viewFile := flag.String("view", "view.json", "Path to the view definition file")
	create := flag.Bool("create", false, "Create the materialized view on startup")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		log.SetLevel(level)
	}

	view, err := loadView(*viewFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load view definition")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	describer, err := schema.NewPostgresDescriber(db)
	if err != nil {
		log.WithError(err).Fatal("failed to create schema describer")
	}

	opts := []search.Option{search.WithLogger(log)}

	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		opts = append(opts, search.WithMetrics(search.NewMetrics(registry)))
	}

	if cfg.Cache.Enabled {
		qc, err := cache.New(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to the result cache")
		}
		defer qc.Close()
		opts = append(opts, search.WithCache(qc))
	}

	svc := search.NewService(db, describer, opts...)

	if *create {
		if err := svc.CreateView(context.Background(), view); err != nil {
			log.WithError(err).Fatal("failed to create materialized view")
		}
		log.WithField("view", view.Name).Info("materialized view created")
	}

	if cfg.Refresh.Enabled {
		refresher := search.NewRefresher(svc, view.Name, cfg.Refresh.Schedule, log)
		if err := refresher.Start(); err != nil {
			log.WithError(err).Fatal("failed to start view refresher")
		}
		defer refresher.Stop()
	}

	router := mux.NewRouter()
	search.NewHandlers(svc, view).RegisterRoutes(router)
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	log.WithFields(logrus.Fields{
		"port": *port,
		"view": view.Name,
	}).Info("starting pgsearch server")
	if err := http.ListenAndServe(":"+*port, router); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

// loadView reads a JSON view definition, e.g.:
//
//	{
//	  "Name": "films_search",
//	  "Model": {"Table": "films", "PrimaryKey": "id",
//	            "Attributes": ["id", "name", "description"]},
//	  "Weights": {"name": "A", "description": "B"}
//	}
func loadView(path string) (search.View, error) {
	var view search.View
	data, err := os.ReadFile(path)
	if err != nil {
		return view, err
	}
	if err := json.Unmarshal(data, &view); err != nil {
		return view, err
	}
	return view, nil
}
