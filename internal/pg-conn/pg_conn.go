package pgconn

import (
	"database/sql"
	"errors"
	"log"

	_ "github.com/lib/pq"

	"github.com/blnkfinance/tally/config"
)

// ConnectDB opens a pooled Postgres connection and verifies it with a ping.
func ConnectDB(cfg config.DataSourceConfig) (*sql.DB, error) {
	if cfg.Dns == "" {
		return nil, errors.New("data source DNS is required")
	}

	db, err := sql.Open("postgres", cfg.Dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	err = db.Ping()
	if err != nil {
		log.Printf("Database connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	log.Println("Database connection established ✅")
	return db, nil
}
