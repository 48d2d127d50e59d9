package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// MySQLConfig holds the configuration for MySQL connection pool
type MySQLConfig struct {
	// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=Local"
	DSN string `json:"dsn"`

	// MaxOpenConnections is the maximum number of open connections. Default: 25
	MaxOpenConnections int `json:"maxOpenConnections,optional"`

	// MaxIdleConnections is the maximum number of idle connections. Default: 5
	MaxIdleConnections int `json:"maxIdleConnections,optional"`

	// ConnMaxLifetime is the maximum amount of time a connection may be reused. Default: 5m
	ConnMaxLifetime time.Duration `json:"connMaxLifetime,optional"`

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle. Default: 10m
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime,optional"`
}

// ApplyDefaults fills unset pool settings.
func (c *MySQLConfig) ApplyDefaults() {
	if c.MaxOpenConnections == 0 {
		c.MaxOpenConnections = 25
	}
	if c.MaxIdleConnections == 0 {
		c.MaxIdleConnections = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
}

// NormalizeDSN validates dsn and forces parseTime so DATETIME columns scan
// into time.Time.
func NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("DSN cannot be empty")
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	parsed.ParseTime = true
	return parsed.FormatDSN(), nil
}

// NewSqlConn opens a pooled MySQL connection and wraps it for go-zero models.
func NewSqlConn(config MySQLConfig) (sqlx.SqlConn, error) {
	config.ApplyDefaults()
	dsn, err := NormalizeDSN(config.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConnections)
	db.SetMaxIdleConns(config.MaxIdleConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqlx.NewSqlConnFromDB(db), nil
}

// IsDuplicateKey reports a MySQL unique key violation.
func IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
