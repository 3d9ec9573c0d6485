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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/tally/internal/apierror"
)

// AccountClass groups ledger accounts by the role they play in settlement.
type AccountClass string

const (
	ClassOffice         AccountClass = "OFFICE"
	ClassCoreCapital    AccountClass = "CORE_CAPITAL"
	ClassCustomerLedger AccountClass = "CUSTOMER_LEDGER"
	ClassInvestorLedger AccountClass = "INVESTOR_LEDGER"
	ClassFeeIncome      AccountClass = "FEE_INCOME"
	ClassTaxPayable     AccountClass = "TAX_PAYABLE"
	ClassIPOFundHold    AccountClass = "IPO_FUND_HOLD"
	ClassSuspense       AccountClass = "SUSPENSE"
	ClassInvested       AccountClass = "INVESTED"
	ClassExpense        AccountClass = "EXPENSE"
)

const AccountStatusActive = "ACTIVE"

var accountClasses = []interface{}{
	ClassOffice, ClassCoreCapital, ClassCustomerLedger, ClassInvestorLedger, ClassFeeIncome,
	ClassTaxPayable, ClassIPOFundHold, ClassSuspense, ClassInvested, ClassExpense,
}

// Owned reports whether accounts of this class belong to a customer or investor.
func (c AccountClass) Owned() bool {
	return c == ClassCustomerLedger || c == ClassInvestorLedger
}

// LedgerAccount is a balance-holding bucket. Its balance only moves through
// ApplyPosting, so it always equals credits minus debits.
type LedgerAccount struct {
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Class     AccountClass    `json:"class"`
	OwnerID   string          `json:"owner_id,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SystemAccount names one of the house accounts that are looked up by name
// rather than by owner.
type SystemAccount struct {
	Name  string
	Class AccountClass
}

var (
	OfficeCash      = SystemAccount{Name: "Office Cash", Class: ClassOffice}
	CoreCapital     = SystemAccount{Name: "Core Capital Account", Class: ClassCoreCapital}
	Invested        = SystemAccount{Name: "Invested Account", Class: ClassInvested}
	IPOFundHold     = SystemAccount{Name: "IPO Fund Hold", Class: ClassIPOFundHold}
	ShareSettlement = SystemAccount{Name: "Share Settlement Account", Class: ClassSuspense}
	BrokerPayable   = SystemAccount{Name: "Broker Commission Payable", Class: ClassFeeIncome}
	TaxPayable      = SystemAccount{Name: "Tax Payable", Class: ClassTaxPayable}
	OfficeExpenses  = SystemAccount{Name: "Office Expenses", Class: ClassExpense}
)

// SystemAccounts lists every house account seeded by `tally accounts seed`.
var SystemAccounts = []SystemAccount{
	OfficeCash, CoreCapital, Invested, IPOFundHold, ShareSettlement, BrokerPayable, TaxPayable, OfficeExpenses,
}

// NewLedgerAccount builds an ACTIVE account with a zero balance. Owned classes
// require an owner and house classes must not have one.
func NewLedgerAccount(name string, class AccountClass, ownerID string) (*LedgerAccount, error) {
	account := &LedgerAccount{
		AccountID: GenerateUUIDWithSuffix("la"),
		Name:      name,
		Class:     class,
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Status:    AccountStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	account.UpdatedAt = account.CreatedAt

	err := validation.ValidateStruct(account,
		validation.Field(&account.Name, validation.Required),
		validation.Field(&account.Class, validation.Required, validation.In(accountClasses...)),
		validation.Field(&account.OwnerID,
			validation.When(class.Owned(), validation.Required).Else(validation.Empty)),
	)
	if err != nil {
		return nil, apierror.Validation("invalid ledger account: %v", err)
	}
	return account, nil
}
