// Package app assembles the runtime dependencies shared by the server and
// the operator CLI from a loaded configuration.
package app

import (
	"context"
	"fmt"

	"credit_ledger/internal/config"
	"credit_ledger/internal/db"
	"credit_ledger/internal/docstore"
	"credit_ledger/internal/firebaseapp"
	"credit_ledger/internal/ledger"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Runtime holds opened connections. Close releases them.
type Runtime struct {
	Store    ledger.Store
	Cache    *redis.Client // nil when REDIS_ADDR is empty
	Firebase *firebase.App // nil unless a Firebase feature is enabled
	closers  []func() error
}

// SetupLogging applies the configured logrus level and formatter.
func SetupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// Open connects the store backend, the optional Redis cache and, when the
// store or auth mode needs it, the Firebase app.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{}

	if cfg.StoreBackend == config.BackendFirestore || cfg.AuthMode == config.AuthFirebase {
		fb, err := firebaseapp.New(ctx, cfg.FirebaseProject, cfg.FirebaseCreds)
		if err != nil {
			return nil, err
		}
		rt.Firebase = fb
	}

	switch cfg.StoreBackend {
	case config.BackendFirestore:
		client, err := rt.Firebase.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		rt.closers = append(rt.closers, client.Close)
		rt.Store = docstore.New(client)
	default:
		gdb, err := db.Open(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		if sqlDB, err := gdb.DB(); err == nil {
			rt.closers = append(rt.closers, sqlDB.Close)
		}
		rt.Store = db.NewStore(gdb)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		rt.closers = append(rt.closers, rdb.Close)
		rt.Cache = rdb
	}
	return rt, nil
}

// Ledger builds the ledger on top of the runtime's store and cache.
func (rt *Runtime) Ledger(cfg *config.Config) *ledger.Ledger {
	return ledger.New(rt.Store, ledger.Options{
		DefaultBalance: cfg.DefaultBalance,
		Cache:          rt.Cache,
		CacheTTL:       cfg.BalanceCacheTTL,
	})
}

// Close releases every opened connection, newest first.
func (rt *Runtime) Close() error {
	var firstErr error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rt.closers = nil
	return firstErr
}
