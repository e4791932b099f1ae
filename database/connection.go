package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// StatsDB wraps a pooled database/sql connection used for the raw aggregate
// queries in stats.go. GORM owns the entity tables; these read-only rollups
// are plain SQL.
type StatsDB struct {
	conn *sql.DB
}

// StatsConfig holds connection parameters for the stats pool
type StatsConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// NewStatsDB opens the raw connection pool for aggregate queries
func NewStatsDB(cfg StatsConfig) (*StatsDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Aggregate queries are infrequent; keep the pool small
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(2 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &StatsDB{conn: conn}, nil
}

// Close closes the stats connection pool
func (db *StatsDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the connection is alive
func (db *StatsDB) Ping() error {
	return db.conn.Ping()
}
