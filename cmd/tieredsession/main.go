// Command tieredsession purges expired sessions from a tiered store.
//
// It runs a sweep every sweep_interval until interrupted, or a single sweep
// with -once:
//
//	tieredsession -config sweeper.yaml
//	tieredsession -config sweeper.yaml -once -verbose
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluescreen10/tieredsession"
	"github.com/bluescreen10/tieredsession/gormstore"
	"github.com/bluescreen10/tieredsession/mysqlstore"
	"github.com/bluescreen10/tieredsession/redisstore"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to sweeper config YAML file (required)")
		once       = flag.Bool("once", false, "Run a single sweep and exit")
		verbose    = flag.Bool("verbose", false, "Enable debug logging to stderr")
	)
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: tieredsession -config <file> [-once] [-verbose]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, _ := cfg.Level()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	records, closeFn, err := openRecords(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", cfg.Driver, err)
	}
	defer closeFn()

	opts := append(cfg.Store.Options(), tieredsession.WithLogger(logger))
	store, err := tieredsession.New(records, opts...)
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("sweeper started",
		"driver", cfg.Driver,
		"ttl", store.TTL(),
		"size_threshold", store.SizeThreshold(),
		"default_collection", store.DefaultCollection(),
	)

	if *once {
		res, err := store.Sweep(ctx, time.Now())
		if err != nil {
			logger.Error("sweep failed", "hot", res.Hot, "cold", res.Cold, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Purged: %d (hot %d, cold %d)\n", res.Total(), res.Hot, res.Cold)
		return
	}

	store.PeriodicSweep(ctx, cfg.SweepInterval)
	logger.Info("sweeper stopped")
}

// openRecords opens the backend named by cfg.Driver. The returned func
// releases its connections.
func openRecords(cfg *Config) (tieredsession.RecordStore, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		s, err := gormstore.New(db, gormstore.WithTables(cfg.Tables.Hot, cfg.Tables.Cold))
		if err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return s, func() { sqlDB.Close() }, nil

	case "mysql":
		capacity := mysqlstore.DefaultHotCapacity
		if cfg.Store.SizeThreshold > 0 {
			capacity = cfg.Store.SizeThreshold
		}
		s, err := mysqlstore.Open(cfg.DSN,
			mysqlstore.WithTables(cfg.Tables.Hot, cfg.Tables.Cold),
			mysqlstore.WithHotEngine(cfg.HotEngine),
			mysqlstore.WithHotCapacity(capacity),
		)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "redis":
		ropts, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", tieredsession.ErrConfiguration, err)
		}
		rdb := redis.NewClient(ropts)
		s, err := redisstore.New(rdb, redisstore.WithPrefix(cfg.Prefix))
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return s, func() { rdb.Close() }, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown driver %q", tieredsession.ErrConfiguration, cfg.Driver)
}
