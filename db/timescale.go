package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gexpipe/config"
	"gexpipe/logger"
)

var (
	timescaleInstance *TimescaleDB
	timescaleOnce     sync.Once
)

// TimescaleDB wraps the pgx connection pool for the four snapshot tables
type TimescaleDB struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// GetTimescaleDB returns a singleton instance of TimescaleDB
func GetTimescaleDB() *TimescaleDB {
	timescaleOnce.Do(func() {
		var err error
		timescaleInstance, err = initDB(&config.GetConfig().Timescale)
		if err != nil {
			panic(fmt.Sprintf("Failed to initialize TimescaleDB: %v", err))
		}
	})
	return timescaleInstance
}

func initDB(cfg *config.TimescaleConfig) (*TimescaleDB, error) {
	log := logger.L()
	ctx := context.Background()

	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.GetMaxConnLifetime()
	poolConfig.MaxConnIdleTime = cfg.GetMaxConnIdleTime()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Successfully connected to database", map[string]interface{}{
		"host":      cfg.Host,
		"port":      cfg.Port,
		"db":        cfg.DBName,
		"max_conns": cfg.MaxConnections,
		"min_conns": cfg.MinConnections,
	})

	return &TimescaleDB{
		pool: pool,
		log:  log,
	}, nil
}

// GetPool returns the connection pool
func (t *TimescaleDB) GetPool() *pgxpool.Pool {
	return t.pool
}

// Close closes the database connection
func (t *TimescaleDB) Close() {
	if t.pool != nil {
		t.pool.Close()
	}
}

// WithTx runs fn inside a transaction, rolling back on error
func (t *TimescaleDB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			t.log.Error("Failed to rollback transaction", map[string]interface{}{
				"error": rbErr.Error(),
			})
		}
		return err
	}

	return tx.Commit(ctx)
}
