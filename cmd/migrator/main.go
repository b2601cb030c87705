package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"resumehub/internal/config"
	"resumehub/internal/storage/mongodb"
)

func main() {
	var configPath, migrationsPath string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&migrationsPath, "migrations-path", "migrations", "path to sqlite migration files")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/local.yaml"
	}

	cfg := config.LoadConfig(configPath)

	switch cfg.Storage {
	case "sqlite":
		migrateSQLite(cfg.StoragePath, migrationsPath)
	case "mongodb":
		initMongo(cfg.Mongo.URI, cfg.Mongo.Database)
	default:
		log.Fatalf("unknown storage backend: %s", cfg.Storage)
	}
}

func migrateSQLite(storagePath, migrationsPath string) {
	m, err := migrate.New(
		"file://"+migrationsPath,
		fmt.Sprintf("sqlite3://%s", storagePath),
	)
	if err != nil {
		log.Fatalf("failed to init migrator: %v", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		log.Fatalf("failed to apply migrations: %v", err)
	}

	fmt.Println("migrations applied successfully")
}

// initMongo only needs to connect: the storage constructor creates every
// index the service relies on.
func initMongo(uri, database string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("Connecting to MongoDB...")

	storage, err := mongodb.New(ctx, uri, database)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer storage.Close(ctx)

	fmt.Println("MongoDB connected, indexes created successfully")
}
