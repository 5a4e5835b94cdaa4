package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"shopcart-backend/internal/config"
	"shopcart-backend/internal/db"
	cartrepo "shopcart-backend/internal/repository/cart"
)

// Removes orphaned carts: carts left with neither an owner nor an anonymous
// token, e.g. after consolidation discarded them mid-failure or a user row
// was deleted. Meant to run from cron, not in-process.
func main() {
	olderThan := flag.Duration("older-than", 24*time.Hour, "only remove carts untouched for this long")
	flag.Parse()

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[gc] ", log.LstdFlags|log.LUTC)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	repo := cartrepo.NewPostgres(pool, logger)
	n, err := repo.DeleteOrphaned(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		logger.Fatalf("delete orphaned carts: %v", err)
	}
	logger.Printf("removed %d orphaned carts", n)
}
