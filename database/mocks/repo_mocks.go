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

package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/tally/database"
	"github.com/blnkfinance/tally/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// WithTx records the call and runs fn against the mock itself.
func (m *MockDataSource) WithTx(ctx context.Context, fn database.TxFunc) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m)
}

// WithReadTx records the call and runs fn against the mock itself.
func (m *MockDataSource) WithReadTx(ctx context.Context, fn database.TxFunc) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m)
}

// Sequence methods

func (m *MockDataSource) NextSequence(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Ledger account methods

func (m *MockDataSource) CreateLedgerAccount(ctx context.Context, account *model.LedgerAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockDataSource) GetLedgerAccount(ctx context.Context, id string) (*model.LedgerAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerAccount), args.Error(1)
}

func (m *MockDataSource) FindSystemAccount(ctx context.Context, name string) (*model.LedgerAccount, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerAccount), args.Error(1)
}

func (m *MockDataSource) FindOwnedAccount(ctx context.Context, class model.AccountClass, ownerID string) (*model.LedgerAccount, error) {
	args := m.Called(ctx, class, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerAccount), args.Error(1)
}

func (m *MockDataSource) LockLedgerAccounts(ctx context.Context, ids ...string) (map[string]*model.LedgerAccount, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*model.LedgerAccount), args.Error(1)
}

func (m *MockDataSource) UpdateLedgerAccountBalance(ctx context.Context, account *model.LedgerAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockDataSource) ListLedgerAccounts(ctx context.Context, class model.AccountClass, limit, offset int) ([]model.LedgerAccount, error) {
	args := m.Called(ctx, class, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerAccount), args.Error(1)
}

// Ledger transaction methods

func (m *MockDataSource) RecordLedgerTransaction(ctx context.Context, txn *model.LedgerTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockDataSource) GetLedgerTransaction(ctx context.Context, id string) (*model.LedgerTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerTransaction), args.Error(1)
}

func (m *MockDataSource) GetLedgerTransactionByReference(ctx context.Context, reference string) (*model.LedgerTransaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerTransaction), args.Error(1)
}

func (m *MockDataSource) GetReversalOf(ctx context.Context, transactionID string) (*model.LedgerTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerTransaction), args.Error(1)
}

func (m *MockDataSource) GetAccountPostings(ctx context.Context, accountID string, from, to time.Time) ([]model.LedgerTransaction, error) {
	args := m.Called(ctx, accountID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerTransaction), args.Error(1)
}

func (m *MockDataSource) SumAccountPostingsBefore(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, before)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockDataSource) GetBankPostings(ctx context.Context, bankAccountID string, from, to time.Time) ([]model.LedgerTransaction, error) {
	args := m.Called(ctx, bankAccountID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerTransaction), args.Error(1)
}

func (m *MockDataSource) SumBankPostingsBefore(ctx context.Context, bankAccountID string, before time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, bankAccountID, before)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// Bank account methods

func (m *MockDataSource) CreateBankAccount(ctx context.Context, account *model.BankAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockDataSource) GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankAccount), args.Error(1)
}

func (m *MockDataSource) LockBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankAccount), args.Error(1)
}

func (m *MockDataSource) UpdateBankAccountBalances(ctx context.Context, account *model.BankAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// Lien methods

func (m *MockDataSource) CreateLien(ctx context.Context, lien *model.AccountLien) error {
	args := m.Called(ctx, lien)
	return args.Error(0)
}

func (m *MockDataSource) GetLien(ctx context.Context, id string) (*model.AccountLien, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccountLien), args.Error(1)
}

func (m *MockDataSource) LockLien(ctx context.Context, id string) (*model.AccountLien, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccountLien), args.Error(1)
}

func (m *MockDataSource) UpdateLien(ctx context.Context, lien *model.AccountLien) error {
	args := m.Called(ctx, lien)
	return args.Error(0)
}

func (m *MockDataSource) GetActiveLiens(ctx context.Context, bankAccountID string) ([]model.AccountLien, error) {
	args := m.Called(ctx, bankAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccountLien), args.Error(1)
}

// Pending transaction methods

func (m *MockDataSource) CreatePendingTransaction(ctx context.Context, pending *model.PendingTransaction) error {
	args := m.Called(ctx, pending)
	return args.Error(0)
}

func (m *MockDataSource) GetPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PendingTransaction), args.Error(1)
}

func (m *MockDataSource) LockPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PendingTransaction), args.Error(1)
}

func (m *MockDataSource) UpdatePendingTransaction(ctx context.Context, pending *model.PendingTransaction) error {
	args := m.Called(ctx, pending)
	return args.Error(0)
}

func (m *MockDataSource) ListPendingTransactions(ctx context.Context, status model.PendingStatus, limit, offset int) ([]model.PendingTransaction, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PendingTransaction), args.Error(1)
}

// Holding methods

func (m *MockDataSource) LockHolding(ctx context.Context, customerID, symbol string) (*model.Holding, error) {
	args := m.Called(ctx, customerID, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Holding), args.Error(1)
}

func (m *MockDataSource) SaveHolding(ctx context.Context, holding *model.Holding) error {
	args := m.Called(ctx, holding)
	return args.Error(0)
}

func (m *MockDataSource) GetHoldings(ctx context.Context, customerID string) ([]model.Holding, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Holding), args.Error(1)
}

// IPO application methods

func (m *MockDataSource) CreateIPOApplication(ctx context.Context, application *model.IPOApplication) error {
	args := m.Called(ctx, application)
	return args.Error(0)
}

func (m *MockDataSource) GetIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IPOApplication), args.Error(1)
}

func (m *MockDataSource) LockIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IPOApplication), args.Error(1)
}

func (m *MockDataSource) UpdateIPOApplication(ctx context.Context, application *model.IPOApplication) error {
	args := m.Called(ctx, application)
	return args.Error(0)
}
