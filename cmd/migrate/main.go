package main

import (
	"credit_ledger/internal/config" // Custom import path (Config)
	"credit_ledger/internal/db"     // Custom import path (Database)

	"github.com/sirupsen/logrus" // Logging library
)

// Main entry point for migration
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	if cfg.StoreBackend != config.BackendMySQL {
		logrus.Infof("STORE_BACKEND=%s needs no schema migration", cfg.StoreBackend)
		return
	}
	db.Migrate(cfg.DSN())
}
