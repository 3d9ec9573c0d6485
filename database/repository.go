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
	"time"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	unitOfWork         // Interface for running work in one database transaction
	sequence           // Interface for the reference number sequence
	ledgerAccount      // Interface for ledger account operations
	ledgerTransaction  // Interface for the append-only transaction log
	bankAccount        // Interface for customer bank account operations
	lien               // Interface for account lien operations
	pendingTransaction // Interface for maker-checker records
	holding            // Interface for portfolio holdings
	ipoApplication     // Interface for IPO applications
}

// TxFunc is the body of a unit of work. ds is bound to the open transaction.
type TxFunc func(ctx context.Context, ds IDataSource) error

type unitOfWork interface {
	WithTx(ctx context.Context, fn TxFunc) error     // Runs fn in one transaction, retrying serialization failures; nested calls join the outer transaction
	WithReadTx(ctx context.Context, fn TxFunc) error // Runs fn against one read-only snapshot
}

type sequence interface {
	NextSequence(ctx context.Context) (int64, error) // Returns the next value of the shared reference counter
}

type ledgerAccount interface {
	CreateLedgerAccount(ctx context.Context, account *model.LedgerAccount) error                                       // Creates a new ledger account
	GetLedgerAccount(ctx context.Context, id string) (*model.LedgerAccount, error)                                     // Retrieves a ledger account by ID
	FindSystemAccount(ctx context.Context, name string) (*model.LedgerAccount, error)                                  // Retrieves an unowned account by name
	FindOwnedAccount(ctx context.Context, class model.AccountClass, ownerID string) (*model.LedgerAccount, error)      // Retrieves an owned account by class and owner
	LockLedgerAccounts(ctx context.Context, ids ...string) (map[string]*model.LedgerAccount, error)                   // Row-locks accounts in ascending id order
	UpdateLedgerAccountBalance(ctx context.Context, account *model.LedgerAccount) error                                // Persists a new balance
	ListLedgerAccounts(ctx context.Context, class model.AccountClass, limit, offset int) ([]model.LedgerAccount, error) // Lists accounts, optionally filtered by class
}

type ledgerTransaction interface {
	RecordLedgerTransaction(ctx context.Context, txn *model.LedgerTransaction) error                                           // Appends a posting
	GetLedgerTransaction(ctx context.Context, id string) (*model.LedgerTransaction, error)                                     // Retrieves a posting by ID
	GetLedgerTransactionByReference(ctx context.Context, reference string) (*model.LedgerTransaction, error)                   // Retrieves a posting by reference id
	GetReversalOf(ctx context.Context, transactionID string) (*model.LedgerTransaction, error)                                 // Retrieves the reversal of a posting, NotFound if none
	GetAccountPostings(ctx context.Context, accountID string, from, to time.Time) ([]model.LedgerTransaction, error)           // Postings touching an account in [from, to), oldest first
	SumAccountPostingsBefore(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error)                  // Credits minus debits before a time
	GetBankPostings(ctx context.Context, bankAccountID string, from, to time.Time) ([]model.LedgerTransaction, error)          // Postings linked to a bank account in [from, to), oldest first
	SumBankPostingsBefore(ctx context.Context, bankAccountID string, before time.Time) (decimal.Decimal, error)                 // Bank credits minus bank debits before a time
}

type bankAccount interface {
	CreateBankAccount(ctx context.Context, account *model.BankAccount) error              // Registers a customer bank account
	GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error)            // Retrieves a bank account by ID
	LockBankAccount(ctx context.Context, id string) (*model.BankAccount, error)           // Row-locks a bank account
	UpdateBankAccountBalances(ctx context.Context, account *model.BankAccount) error      // Persists balance and held balance
}

type lien interface {
	CreateLien(ctx context.Context, lien *model.AccountLien) error                                    // Creates a lien
	GetLien(ctx context.Context, id string) (*model.AccountLien, error)                               // Retrieves a lien by ID
	LockLien(ctx context.Context, id string) (*model.AccountLien, error)                              // Row-locks a lien
	UpdateLien(ctx context.Context, lien *model.AccountLien) error                                    // Persists status, reason and release time
	GetActiveLiens(ctx context.Context, bankAccountID string) ([]model.AccountLien, error)            // Lists ACTIVE liens on a bank account
}

type pendingTransaction interface {
	CreatePendingTransaction(ctx context.Context, pending *model.PendingTransaction) error                                  // Creates a PENDING record
	GetPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error)                               // Retrieves a pending transaction by ID
	LockPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error)                              // Row-locks a pending transaction
	UpdatePendingTransaction(ctx context.Context, pending *model.PendingTransaction) error                                  // Persists a status transition
	ListPendingTransactions(ctx context.Context, status model.PendingStatus, limit, offset int) ([]model.PendingTransaction, error) // Lists by status, newest first
}

type holding interface {
	LockHolding(ctx context.Context, customerID, symbol string) (*model.Holding, error) // Row-locks a holding, NotFound if none
	SaveHolding(ctx context.Context, holding *model.Holding) error                    // Inserts or updates a holding
	GetHoldings(ctx context.Context, customerID string) ([]model.Holding, error)      // Lists a customer's holdings
}

type ipoApplication interface {
	CreateIPOApplication(ctx context.Context, application *model.IPOApplication) error          // Records an application
	GetIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error)            // Retrieves an application by ID
	LockIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error)           // Row-locks an application
	UpdateIPOApplication(ctx context.Context, application *model.IPOApplication) error          // Persists allotment results
}
