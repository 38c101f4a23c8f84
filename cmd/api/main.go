package main

import (
	"context"
	"log"
	"net/http"

	"pedraum/assignment"
	"pedraum/auth"
	"pedraum/config"
	"pedraum/db"
	"pedraum/demand"
	"pedraum/geo"
	"pedraum/supplier"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := db.Migrate(cfg.MigrationURL, cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	directory, err := supplier.NewDirectory(pool, cfg.SupplierTables)
	if err != nil {
		log.Fatalf("supplier directory: %v", err)
	}

	server := &Server{
		demands:     demand.NewService(demand.NewRepository(pool)),
		assignments: assignment.NewService(pool, nil, directory),
		suppliers:   directory,
		authService: auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
		geo:         geo.NewClient(cfg.IBGEBaseURL),
	}

	log.Printf("api listening on %s", cfg.ServerAddress)
	if err := http.ListenAndServe(cfg.ServerAddress, server.routes()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
