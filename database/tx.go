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
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/tally/internal/apierror"
)

const defaultRetries = 3

// Postgres error codes the unit of work retries. The whole transaction was
// rolled back, so running it again cannot double-post.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
)

// Concurrent lazy creation of the same account loses on one of these indexes.
// The retry then finds the account the winner created.
var retryableConstraints = map[string]bool{
	"ledger_accounts_system_key":   true,
	"ledger_accounts_owner_key":    true,
	"holdings_customer_symbol_key": true,
}

// IsRetryable reports whether err is a transient conflict between concurrent transactions.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	case codeUniqueViolation:
		return retryableConstraints[pqErr.Constraint]
	}
	return false
}

func newBackOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// WithTx runs fn in a single READ COMMITTED transaction. Balances are
// protected by row locks taken inside fn, so fn must lock before it reads
// anything it intends to write. A transaction that loses a deadlock or
// serialization race is rolled back and run again; any other error rolls
// back and is returned unchanged.
func (d Datasource) WithTx(ctx context.Context, fn TxFunc) error {
	if d.tx != nil {
		return fn(ctx, d)
	}

	attempts := d.Retries
	if attempts <= 0 {
		attempts = defaultRetries
	}

	operation := func() error {
		tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return backoff.Permanent(apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err))
		}
		defer func(tx *sql.Tx) {
			_ = tx.Rollback()
		}(tx)

		bound := Datasource{Conn: d.Conn, Cache: d.Cache, Retries: d.Retries, tx: tx}
		if err := fn(ctx, bound); err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logrus.Warnf("transaction conflict, retrying in %s: %v", wait, err)
	}

	err := backoff.RetryNotify(operation, newBackOff(ctx, attempts), notify)
	if err != nil && IsRetryable(err) {
		return apierror.NewAPIError(apierror.ErrConflict, "Transaction kept conflicting with concurrent updates", err)
	}
	return err
}

// WithReadTx runs fn in a read-only REPEATABLE READ transaction so every
// query in fn sees the same snapshot. Nothing is locked and nothing is
// retried. Inside an open transaction fn joins it.
func (d Datasource) WithReadTx(ctx context.Context, fn TxFunc) error {
	if d.tx != nil {
		return fn(ctx, d)
	}
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err := fn(ctx, Datasource{Conn: d.Conn, Cache: d.Cache, Retries: d.Retries, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

// mapWriteError converts driver errors from INSERT/UPDATE statements.
func mapWriteError(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return apierror.NewAPIError(apierror.ErrConflict, what+" already exists", err)
		case codeForeignKeyViolation:
			return apierror.NewAPIError(apierror.ErrBadRequest, what+" references a record that does not exist", err)
		case codeSerializationFailure, codeDeadlockDetected:
			return apierror.NewAPIError(apierror.ErrConflict, "Failed to write "+what+", concurrent update", err)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write "+what, err)
}

// mapReadError converts driver errors from SELECT statements.
func mapReadError(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NotFound("%s with ID '%s' not found", what, id)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve "+what, err)
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logrus.Error(err)
	}
}
