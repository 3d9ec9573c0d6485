/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"log"
	"sync"

	"github.com/blnkfinance/tally/config"
	"github.com/blnkfinance/tally/internal/cache"
	pgconn "github.com/blnkfinance/tally/internal/pg-conn"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Datasource is the Postgres implementation of IDataSource. A Datasource
// returned inside WithTx is bound to that transaction.
type Datasource struct {
	Conn    *sql.DB
	Cache   cache.Cache
	Retries int

	tx *sql.Tx
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := pgconn.ConnectDB(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}

		var cacheInstance cache.Cache
		if configuration.Redis.Dns != "" {
			cacheInstance, err = cache.NewCache(configuration.Redis)
			if err != nil {
				log.Printf("Error creating cache: %v", err)
				// Continue without cache instead of failing completely.
				cacheInstance, err = nil, nil
			}
		}

		instance = &Datasource{Conn: con, Cache: cacheInstance, Retries: configuration.Settlement.TxRetryAttempts}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens the Postgres pool described by configuration.
func ConnectDB(configuration config.DataSourceConfig) (*sql.DB, error) {
	return pgconn.ConnectDB(configuration)
}

func (d Datasource) q() queryer {
	if d.tx != nil {
		return d.tx
	}
	return d.Conn
}

// lockClause is appended to reads that must hold the row for the rest of
// the transaction. Outside a transaction the lock would be released at once,
// so it is omitted.
func (d Datasource) lockClause() string {
	if d.tx != nil {
		return " FOR UPDATE"
	}
	return ""
}
