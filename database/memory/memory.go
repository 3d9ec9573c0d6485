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

// Package memory is an in-process IDataSource. A unit of work holds the store
// mutex for its whole duration and restores a snapshot when it fails, so it
// gives the same all-or-nothing behaviour as the Postgres datasource.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/database"
	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

type state struct {
	accounts     map[string]model.LedgerAccount
	transactions []model.LedgerTransaction
	banks        map[string]model.BankAccount
	liens        map[string]model.AccountLien
	pending      map[string]model.PendingTransaction
	holdings     map[string]model.Holding
	applications map[string]model.IPOApplication
}

func newState() *state {
	return &state{
		accounts:     map[string]model.LedgerAccount{},
		banks:        map[string]model.BankAccount{},
		liens:        map[string]model.AccountLien{},
		pending:      map[string]model.PendingTransaction{},
		holdings:     map[string]model.Holding{},
		applications: map[string]model.IPOApplication{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.transactions = append([]model.LedgerTransaction(nil), s.transactions...)
	for k, v := range s.banks {
		c.banks[k] = v
	}
	for k, v := range s.liens {
		c.liens[k] = v
	}
	for k, v := range s.pending {
		c.pending[k] = copyPending(v)
	}
	for k, v := range s.holdings {
		c.holdings[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	return c
}

func copyPending(p model.PendingTransaction) model.PendingTransaction {
	p.SettlementRefs = append([]string(nil), p.SettlementRefs...)
	if p.Payload != nil {
		p.Payload = append(json.RawMessage(nil), p.Payload...)
	}
	return p
}

type shared struct {
	mu       sync.Mutex
	data     *state
	sequence int64
}

// Store implements database.IDataSource in memory.
type Store struct {
	shared *shared
	inTx   bool
}

var _ database.IDataSource = (*Store)(nil)

func New() *Store {
	return &Store{shared: &shared{data: newState()}}
}

// guard takes the store mutex unless the caller is already inside WithTx.
func (s *Store) guard() func() {
	if s.inTx {
		return func() {}
	}
	s.shared.mu.Lock()
	return s.shared.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn database.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	snapshot := s.shared.data.clone()
	if err := fn(ctx, &Store{shared: s.shared, inTx: true}); err != nil {
		s.shared.data = snapshot
		return err
	}
	return nil
}

// WithReadTx holds the store mutex for the whole of fn, which is as
// consistent as any snapshot.
func (s *Store) WithReadTx(ctx context.Context, fn database.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	return fn(ctx, &Store{shared: s.shared, inTx: true})
}

// NextSequence is not rolled back with the unit of work, like a Postgres sequence.
func (s *Store) NextSequence(_ context.Context) (int64, error) {
	defer s.guard()()
	s.shared.sequence++
	return s.shared.sequence, nil
}

func (s *Store) CreateLedgerAccount(_ context.Context, account *model.LedgerAccount) error {
	defer s.guard()()
	data := s.shared.data
	if _, ok := data.accounts[account.AccountID]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "ledger account already exists", nil)
	}
	for _, existing := range data.accounts {
		if account.OwnerID == "" && existing.OwnerID == "" && existing.Name == account.Name {
			return apierror.NewAPIError(apierror.ErrConflict, "ledger account already exists", nil)
		}
		if account.OwnerID != "" && existing.OwnerID == account.OwnerID && existing.Class == account.Class {
			return apierror.NewAPIError(apierror.ErrConflict, "ledger account already exists", nil)
		}
	}
	data.accounts[account.AccountID] = *account
	return nil
}

func (s *Store) GetLedgerAccount(_ context.Context, id string) (*model.LedgerAccount, error) {
	defer s.guard()()
	account, ok := s.shared.data.accounts[id]
	if !ok {
		return nil, apierror.NotFound("ledger account with ID '%s' not found", id)
	}
	return &account, nil
}

func (s *Store) FindSystemAccount(_ context.Context, name string) (*model.LedgerAccount, error) {
	defer s.guard()()
	for _, account := range s.shared.data.accounts {
		if account.OwnerID == "" && account.Name == name {
			found := account
			return &found, nil
		}
	}
	return nil, apierror.NotFound("system account with ID '%s' not found", name)
}

func (s *Store) FindOwnedAccount(_ context.Context, class model.AccountClass, ownerID string) (*model.LedgerAccount, error) {
	defer s.guard()()
	for _, account := range s.shared.data.accounts {
		if account.Class == class && account.OwnerID == ownerID {
			found := account
			return &found, nil
		}
	}
	return nil, apierror.NotFound("%s account with ID '%s' not found", class, ownerID)
}

func (s *Store) LockLedgerAccounts(_ context.Context, ids ...string) (map[string]*model.LedgerAccount, error) {
	defer s.guard()()
	locked := make(map[string]*model.LedgerAccount, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		account, ok := s.shared.data.accounts[id]
		if !ok {
			return nil, apierror.NotFound("ledger account with ID '%s' not found", id)
		}
		locked[id] = &account
	}
	return locked, nil
}

func (s *Store) UpdateLedgerAccountBalance(_ context.Context, account *model.LedgerAccount) error {
	defer s.guard()()
	stored, ok := s.shared.data.accounts[account.AccountID]
	if !ok {
		return apierror.NotFound("ledger account with ID '%s' not found", account.AccountID)
	}
	stored.Balance = account.Balance
	stored.UpdatedAt = account.UpdatedAt
	s.shared.data.accounts[account.AccountID] = stored
	return nil
}

func (s *Store) ListLedgerAccounts(_ context.Context, class model.AccountClass, limit, offset int) ([]model.LedgerAccount, error) {
	defer s.guard()()
	accounts := []model.LedgerAccount{}
	for _, account := range s.shared.data.accounts {
		if class == "" || account.Class == class {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Name == accounts[j].Name {
			return accounts[i].AccountID < accounts[j].AccountID
		}
		return accounts[i].Name < accounts[j].Name
	})
	return page(accounts, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) RecordLedgerTransaction(_ context.Context, txn *model.LedgerTransaction) error {
	defer s.guard()()
	data := s.shared.data
	for _, existing := range data.transactions {
		if existing.TransactionID == txn.TransactionID || existing.ReferenceID == txn.ReferenceID {
			return apierror.NewAPIError(apierror.ErrConflict, "ledger transaction already exists", nil)
		}
		if txn.ReversalOf != "" && existing.ReversalOf == txn.ReversalOf {
			return apierror.NewAPIError(apierror.ErrConflict, "ledger transaction already exists", nil)
		}
	}
	for _, id := range []string{txn.DebitAccountID, txn.CreditAccountID} {
		if _, ok := data.accounts[id]; !ok {
			return apierror.NewAPIError(apierror.ErrBadRequest, "ledger transaction references a record that does not exist", nil)
		}
	}
	data.transactions = append(data.transactions, *txn)
	return nil
}

func (s *Store) findTransaction(match func(model.LedgerTransaction) bool, id string) (*model.LedgerTransaction, error) {
	defer s.guard()()
	for _, txn := range s.shared.data.transactions {
		if match(txn) {
			found := txn
			return &found, nil
		}
	}
	return nil, apierror.NotFound("ledger transaction with ID '%s' not found", id)
}

func (s *Store) GetLedgerTransaction(_ context.Context, id string) (*model.LedgerTransaction, error) {
	return s.findTransaction(func(txn model.LedgerTransaction) bool { return txn.TransactionID == id }, id)
}

func (s *Store) GetLedgerTransactionByReference(_ context.Context, reference string) (*model.LedgerTransaction, error) {
	return s.findTransaction(func(txn model.LedgerTransaction) bool { return txn.ReferenceID == reference }, reference)
}

func (s *Store) GetReversalOf(_ context.Context, transactionID string) (*model.LedgerTransaction, error) {
	return s.findTransaction(func(txn model.LedgerTransaction) bool { return txn.ReversalOf == transactionID }, transactionID)
}

func (s *Store) postings(match func(model.LedgerTransaction) bool, from, to time.Time) []model.LedgerTransaction {
	defer s.guard()()
	postings := []model.LedgerTransaction{}
	for _, txn := range s.shared.data.transactions {
		if match(txn) && !txn.CreatedAt.Before(from) && txn.CreatedAt.Before(to) {
			postings = append(postings, txn)
		}
	}
	sort.SliceStable(postings, func(i, j int) bool { return postings[i].CreatedAt.Before(postings[j].CreatedAt) })
	return postings
}

func (s *Store) sumBefore(before time.Time, classify model.Classifier) decimal.Decimal {
	defer s.guard()()
	prior := []model.LedgerTransaction{}
	for _, txn := range s.shared.data.transactions {
		if txn.CreatedAt.Before(before) {
			prior = append(prior, txn)
		}
	}
	return model.OpeningBalance(prior, classify)
}

func touches(accountID string) func(model.LedgerTransaction) bool {
	return func(txn model.LedgerTransaction) bool {
		return txn.DebitAccountID == accountID || txn.CreditAccountID == accountID
	}
}

func linkedTo(bankAccountID string) func(model.LedgerTransaction) bool {
	return func(txn model.LedgerTransaction) bool {
		return txn.BankAccountID == bankAccountID && txn.BankEffect != model.BankEffectNone
	}
}

func (s *Store) GetAccountPostings(_ context.Context, accountID string, from, to time.Time) ([]model.LedgerTransaction, error) {
	return s.postings(touches(accountID), from, to), nil
}

func (s *Store) SumAccountPostingsBefore(_ context.Context, accountID string, before time.Time) (decimal.Decimal, error) {
	return s.sumBefore(before, model.LedgerClassifier(accountID)), nil
}

func (s *Store) GetBankPostings(_ context.Context, bankAccountID string, from, to time.Time) ([]model.LedgerTransaction, error) {
	return s.postings(linkedTo(bankAccountID), from, to), nil
}

func (s *Store) SumBankPostingsBefore(_ context.Context, bankAccountID string, before time.Time) (decimal.Decimal, error) {
	return s.sumBefore(before, model.BankClassifier(bankAccountID)), nil
}

func (s *Store) CreateBankAccount(_ context.Context, account *model.BankAccount) error {
	defer s.guard()()
	for _, existing := range s.shared.data.banks {
		if existing.BankAccountID == account.BankAccountID || existing.AccountNumber == account.AccountNumber {
			return apierror.NewAPIError(apierror.ErrConflict, "bank account already exists", nil)
		}
	}
	s.shared.data.banks[account.BankAccountID] = *account
	return nil
}

func (s *Store) GetBankAccount(_ context.Context, id string) (*model.BankAccount, error) {
	defer s.guard()()
	account, ok := s.shared.data.banks[id]
	if !ok {
		return nil, apierror.NotFound("bank account with ID '%s' not found", id)
	}
	return &account, nil
}

func (s *Store) LockBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	return s.GetBankAccount(ctx, id)
}

// UpdateBankAccountBalances enforces the same check constraints as the bank_accounts table.
func (s *Store) UpdateBankAccountBalances(_ context.Context, account *model.BankAccount) error {
	defer s.guard()()
	stored, ok := s.shared.data.banks[account.BankAccountID]
	if !ok {
		return apierror.NotFound("bank account with ID '%s' not found", account.BankAccountID)
	}
	if account.HeldBalance.IsNegative() || account.Spendable().IsNegative() {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write bank account", nil)
	}
	stored.Balance = account.Balance
	stored.HeldBalance = account.HeldBalance
	stored.UpdatedAt = account.UpdatedAt
	s.shared.data.banks[account.BankAccountID] = stored
	return nil
}

func (s *Store) CreateLien(_ context.Context, lien *model.AccountLien) error {
	defer s.guard()()
	if _, ok := s.shared.data.liens[lien.LienID]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "lien already exists", nil)
	}
	if _, ok := s.shared.data.banks[lien.BankAccountID]; !ok {
		return apierror.NewAPIError(apierror.ErrBadRequest, "lien references a record that does not exist", nil)
	}
	s.shared.data.liens[lien.LienID] = *lien
	return nil
}

func (s *Store) GetLien(_ context.Context, id string) (*model.AccountLien, error) {
	defer s.guard()()
	lien, ok := s.shared.data.liens[id]
	if !ok {
		return nil, apierror.NotFound("lien with ID '%s' not found", id)
	}
	return &lien, nil
}

func (s *Store) LockLien(ctx context.Context, id string) (*model.AccountLien, error) {
	return s.GetLien(ctx, id)
}

func (s *Store) UpdateLien(_ context.Context, lien *model.AccountLien) error {
	defer s.guard()()
	stored, ok := s.shared.data.liens[lien.LienID]
	if !ok {
		return apierror.NotFound("lien with ID '%s' not found", lien.LienID)
	}
	stored.Status = lien.Status
	stored.Reason = lien.Reason
	stored.ReleasedAt = lien.ReleasedAt
	s.shared.data.liens[lien.LienID] = stored
	return nil
}

func (s *Store) GetActiveLiens(_ context.Context, bankAccountID string) ([]model.AccountLien, error) {
	defer s.guard()()
	liens := []model.AccountLien{}
	for _, lien := range s.shared.data.liens {
		if lien.BankAccountID == bankAccountID && lien.Active() {
			liens = append(liens, lien)
		}
	}
	sort.Slice(liens, func(i, j int) bool { return liens[i].StartDate.Before(liens[j].StartDate) })
	return liens, nil
}

func (s *Store) CreatePendingTransaction(_ context.Context, pending *model.PendingTransaction) error {
	defer s.guard()()
	if _, ok := s.shared.data.pending[pending.PendingID]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "pending transaction already exists", nil)
	}
	s.shared.data.pending[pending.PendingID] = copyPending(*pending)
	return nil
}

func (s *Store) GetPendingTransaction(_ context.Context, id string) (*model.PendingTransaction, error) {
	defer s.guard()()
	pending, ok := s.shared.data.pending[id]
	if !ok {
		return nil, apierror.NotFound("pending transaction with ID '%s' not found", id)
	}
	found := copyPending(pending)
	return &found, nil
}

func (s *Store) LockPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error) {
	return s.GetPendingTransaction(ctx, id)
}

func (s *Store) UpdatePendingTransaction(_ context.Context, pending *model.PendingTransaction) error {
	defer s.guard()()
	stored, ok := s.shared.data.pending[pending.PendingID]
	if !ok || stored.Status != model.PendingStatusPending {
		return apierror.StateConflict("pending transaction %s is no longer PENDING", pending.PendingID)
	}
	stored.Status = pending.Status
	stored.CheckerID = pending.CheckerID
	stored.RejectionReason = pending.RejectionReason
	stored.LienID = pending.LienID
	stored.SettlementRefs = pending.SettlementRefs
	stored.VerifiedAt = pending.VerifiedAt
	s.shared.data.pending[pending.PendingID] = copyPending(stored)
	return nil
}

func (s *Store) ListPendingTransactions(_ context.Context, status model.PendingStatus, limit, offset int) ([]model.PendingTransaction, error) {
	defer s.guard()()
	pending := []model.PendingTransaction{}
	for _, p := range s.shared.data.pending {
		if p.Status == status {
			pending = append(pending, copyPending(p))
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })
	return page(pending, limit, offset), nil
}

func holdingKey(customerID, symbol string) string {
	return customerID + "/" + symbol
}

func (s *Store) LockHolding(_ context.Context, customerID, symbol string) (*model.Holding, error) {
	defer s.guard()()
	holding, ok := s.shared.data.holdings[holdingKey(customerID, symbol)]
	if !ok {
		return nil, apierror.NotFound("holding with ID '%s' not found", holdingKey(customerID, symbol))
	}
	return &holding, nil
}

func (s *Store) SaveHolding(_ context.Context, holding *model.Holding) error {
	defer s.guard()()
	key := holdingKey(holding.CustomerID, holding.Symbol)
	if stored, ok := s.shared.data.holdings[key]; ok {
		holding.HoldingID = stored.HoldingID
		holding.CreatedAt = stored.CreatedAt
	}
	s.shared.data.holdings[key] = *holding
	return nil
}

func (s *Store) GetHoldings(_ context.Context, customerID string) ([]model.Holding, error) {
	defer s.guard()()
	holdings := []model.Holding{}
	for _, holding := range s.shared.data.holdings {
		if holding.CustomerID == customerID {
			holdings = append(holdings, holding)
		}
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

func (s *Store) CreateIPOApplication(_ context.Context, application *model.IPOApplication) error {
	defer s.guard()()
	if _, ok := s.shared.data.applications[application.ApplicationID]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "IPO application already exists", nil)
	}
	s.shared.data.applications[application.ApplicationID] = *application
	return nil
}

func (s *Store) GetIPOApplication(_ context.Context, id string) (*model.IPOApplication, error) {
	defer s.guard()()
	application, ok := s.shared.data.applications[id]
	if !ok {
		return nil, apierror.NotFound("IPO application with ID '%s' not found", id)
	}
	return &application, nil
}

func (s *Store) LockIPOApplication(ctx context.Context, id string) (*model.IPOApplication, error) {
	return s.GetIPOApplication(ctx, id)
}

func (s *Store) UpdateIPOApplication(_ context.Context, application *model.IPOApplication) error {
	defer s.guard()()
	stored, ok := s.shared.data.applications[application.ApplicationID]
	if !ok {
		return apierror.NotFound("IPO application with ID '%s' not found", application.ApplicationID)
	}
	stored.AllottedQuantity = application.AllottedQuantity
	stored.LienID = application.LienID
	stored.Status = application.Status
	stored.SettledAt = application.SettledAt
	s.shared.data.applications[application.ApplicationID] = stored
	return nil
}
