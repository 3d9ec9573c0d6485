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

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

type StatementLine struct {
	Transaction    LedgerTransaction `json:"transaction"`
	Direction      Direction         `json:"direction"`
	Amount         decimal.Decimal   `json:"amount"`
	RunningBalance decimal.Decimal   `json:"running_balance"`
}

// Statement lists postings newest first. OpeningBalance is the balance at From,
// ClosingBalance the balance after the last line.
type Statement struct {
	AccountID      string          `json:"account_id"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	TotalCredits   decimal.Decimal `json:"total_credits"`
	TotalDebits    decimal.Decimal `json:"total_debits"`
	Lines          []StatementLine `json:"lines"`
}

// Classifier returns how a posting moved the statement's account. ok is false
// for postings that did not touch it.
type Classifier func(txn LedgerTransaction) (direction Direction, ok bool)

// LedgerClassifier classifies postings against a ledger account.
func LedgerClassifier(accountID string) Classifier {
	return func(txn LedgerTransaction) (Direction, bool) {
		switch accountID {
		case txn.CreditAccountID:
			return DirectionCredit, true
		case txn.DebitAccountID:
			return DirectionDebit, true
		}
		return "", false
	}
}

// BankClassifier classifies postings by the effect they had on a bank account.
func BankClassifier(bankAccountID string) Classifier {
	return func(txn LedgerTransaction) (Direction, bool) {
		if txn.BankAccountID != bankAccountID {
			return "", false
		}
		switch txn.BankEffect {
		case BankEffectCredit:
			return DirectionCredit, true
		case BankEffectDebit:
			return DirectionDebit, true
		}
		return "", false
	}
}

// OpeningBalance sums credits minus debits over postings booked before the range.
func OpeningBalance(prior []LedgerTransaction, classify Classifier) decimal.Decimal {
	balance := decimal.Zero
	for _, txn := range prior {
		direction, ok := classify(txn)
		if !ok {
			continue
		}
		if direction == DirectionCredit {
			balance = balance.Add(txn.Amount)
		} else {
			balance = balance.Sub(txn.Amount)
		}
	}
	return balance
}

// BuildStatement replays postings, which must be sorted oldest first, from the
// opening balance and returns the lines newest first.
func BuildStatement(accountID string, from, to time.Time, opening decimal.Decimal, postings []LedgerTransaction, classify Classifier) Statement {
	statement := Statement{
		AccountID:      accountID,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		TotalCredits:   decimal.Zero,
		TotalDebits:    decimal.Zero,
		Lines:          make([]StatementLine, 0, len(postings)),
	}

	running := opening
	for _, txn := range postings {
		direction, ok := classify(txn)
		if !ok {
			continue
		}
		if direction == DirectionCredit {
			running = running.Add(txn.Amount)
			statement.TotalCredits = statement.TotalCredits.Add(txn.Amount)
		} else {
			running = running.Sub(txn.Amount)
			statement.TotalDebits = statement.TotalDebits.Add(txn.Amount)
		}
		statement.Lines = append(statement.Lines, StatementLine{
			Transaction:    txn,
			Direction:      direction,
			Amount:         txn.Amount,
			RunningBalance: running,
		})
	}
	statement.ClosingBalance = running

	for i, j := 0, len(statement.Lines)-1; i < j; i, j = i+1, j-1 {
		statement.Lines[i], statement.Lines[j] = statement.Lines[j], statement.Lines[i]
	}
	return statement
}
