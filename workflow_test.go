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

package tally

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/tally/internal/apierror"
	redlock "github.com/blnkfinance/tally/internal/lock"
	"github.com/blnkfinance/tally/model"
)

func TestDeposit_WaitsForCheckerWhenFundingIsShort(t *testing.T) {
	f := newFixture(t)
	f.enableAutoApproval()
	ctx := context.Background()
	f.fundCapital(t, "300")
	bank := f.openBank(t, "cust_m", "", "0")

	pending, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("500"),
		Target:  model.PendingTarget{BankAccountID: bank.BankAccountID},
		MakerID: "M",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, pending.Status)
	assert.Equal(t, "cust_m", pending.CustomerID)

	_, err = f.Approve(ctx, pending.PendingID, "C")
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)

	stored, err := f.GetPendingTransaction(ctx, pending.PendingID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, stored.Status)
	assert.Empty(t, stored.CheckerID)
	assert.True(t, f.capitalBalance(t).Equal(dec("300")))
	assert.True(t, f.bank(t, bank.BankAccountID).Balance.IsZero())

	f.fundCapital(t, "200")
	result, err := f.Approve(ctx, pending.PendingID, "C")
	require.NoError(t, err)

	require.Len(t, result.Transactions, 1)
	txn := result.Transactions[0]
	assert.Equal(t, model.TypeDeposit, txn.Type)
	assert.Equal(t, "M", txn.MakerID)
	assert.Equal(t, "C", txn.CheckerID)
	assert.Equal(t, model.BankEffectCredit, txn.BankEffect)
	assert.Equal(t, []string{txn.ReferenceID}, result.Pending.SettlementRefs)

	assert.True(t, f.capitalBalance(t).IsZero())
	assert.True(t, f.customerBalance(t, "cust_m").Equal(dec("500")))
	assert.True(t, f.bank(t, bank.BankAccountID).Balance.Equal(dec("500")))
	f.assertConserved(t)
}

func TestDeposit_AutoApprovesWhenFunded(t *testing.T) {
	f := newFixture(t)
	f.enableAutoApproval()
	f.fundCapital(t, "1000")
	bank := f.openBank(t, "cust_auto", "", "0")

	pending, err := f.CreatePendingTransaction(context.Background(), PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("400"),
		Target:  model.PendingTarget{BankAccountID: bank.BankAccountID},
		MakerID: "maker",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PendingStatusApproved, pending.Status)
	assert.Empty(t, pending.CheckerID)
	assert.NotNil(t, pending.VerifiedAt)
	assert.Len(t, pending.SettlementRefs, 1)
	assert.True(t, f.bank(t, bank.BankAccountID).Balance.Equal(dec("400")))

	require.Len(t, f.queue.settlements, 2)
	event := f.queue.settlements[1]
	assert.Equal(t, pending.PendingID, event.PendingID)
	assert.True(t, event.AutoApproved)
	assert.Equal(t, TaskSettlementCompleted, event.Event)
}

func TestDeposit_AutoApprovalDisabled(t *testing.T) {
	f := newFixture(t)
	f.fundCapital(t, "1000")

	pending, err := f.CreatePendingTransaction(context.Background(), PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("400"),
		Target:  model.PendingTarget{CustomerID: "cust_manual"},
		MakerID: "maker",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, pending.Status)
	assert.True(t, f.capitalBalance(t).Equal(dec("1000")))
}

func TestApprove_SettlesOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundCapital(t, "1000")

	pending, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("100"),
		Target:  model.PendingTarget{CustomerID: "cust_once"},
		MakerID: "maker",
	})
	require.NoError(t, err)

	_, err = f.Approve(ctx, pending.PendingID, "checker")
	require.NoError(t, err)
	_, err = f.Approve(ctx, pending.PendingID, "checker")
	assert.True(t, apierror.Is(err, apierror.ErrStateConflict), "got %v", err)
	_, err = f.Reject(ctx, pending.PendingID, "checker", "too late")
	assert.True(t, apierror.Is(err, apierror.ErrStateConflict), "got %v", err)

	assert.True(t, f.customerBalance(t, "cust_once").Equal(dec("100")))
	assert.True(t, f.capitalBalance(t).Equal(dec("900")))
}

func TestApprove_AfterRejectFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundCapital(t, "1000")

	pending, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("100"),
		Target:  model.PendingTarget{CustomerID: "cust_rej"},
		MakerID: "maker",
	})
	require.NoError(t, err)
	_, err = f.Reject(ctx, pending.PendingID, "checker", "duplicate request")
	require.NoError(t, err)

	_, err = f.Approve(ctx, pending.PendingID, "checker")
	assert.True(t, apierror.Is(err, apierror.ErrStateConflict), "got %v", err)
	assert.True(t, f.customerBalance(t, "cust_rej").IsZero())
}

func TestApprove_EnforcesTwoPersonRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	capital, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingCoreCapitalDeposit,
		Amount:  dec("5000"),
		MakerID: "admin",
	})
	require.NoError(t, err)

	_, err = f.Approve(ctx, capital.PendingID, "admin")
	assert.True(t, apierror.Is(err, apierror.ErrAuthorizationViolation), "got %v", err)
	_, err = f.Approve(ctx, capital.PendingID, "operator")
	assert.True(t, apierror.Is(err, apierror.ErrAuthorizationViolation), "got %v", err)
	_, err = f.Approve(ctx, capital.PendingID, "")
	assert.True(t, apierror.Is(err, apierror.ErrValidation), "got %v", err)

	stored, err := f.GetPendingTransaction(ctx, capital.PendingID)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusPending, stored.Status)
	assert.True(t, f.capitalBalance(t).IsZero())

	_, err = f.Approve(ctx, capital.PendingID, "super")
	require.NoError(t, err)
	assert.True(t, f.capitalBalance(t).Equal(dec("5000")))

	deposit, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("10"),
		Target:  model.PendingTarget{CustomerID: "cust_self"},
		MakerID: "maker",
	})
	require.NoError(t, err)
	_, err = f.Approve(ctx, deposit.PendingID, "maker")
	assert.True(t, apierror.Is(err, apierror.ErrAuthorizationViolation), "got %v", err)
	_, err = f.Reject(ctx, deposit.PendingID, "maker", "self")
	assert.True(t, apierror.Is(err, apierror.ErrAuthorizationViolation), "got %v", err)
}

func TestReject_WithdrawalWithoutHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundCapital(t, "1000")
	f.approved(t, PendingRequest{Type: model.PendingDeposit, Amount: dec("250"), Target: model.PendingTarget{CustomerID: "cust_w"}, MakerID: "maker"})

	pending, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingWithdrawal,
		Amount:  dec("100"),
		Target:  model.PendingTarget{CustomerID: "cust_w"},
		MakerID: "maker",
	})
	require.NoError(t, err)
	assert.Empty(t, pending.LienID)

	reason := "Customer called to cancel; see ticket #42"
	rejected, err := f.Reject(ctx, pending.PendingID, "checker", reason)
	require.NoError(t, err)
	assert.Equal(t, model.PendingStatusRejected, rejected.Status)
	assert.Equal(t, reason, rejected.RejectionReason)
	assert.Equal(t, "checker", rejected.CheckerID)
	assert.NotNil(t, rejected.VerifiedAt)

	assert.True(t, f.customerBalance(t, "cust_w").Equal(dec("250")))
	assert.True(t, f.capitalBalance(t).Equal(dec("750")))
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("1"),
		Target:  model.PendingTarget{CustomerID: "cust_r"},
		MakerID: "maker",
	})
	require.NoError(t, err)

	_, err = f.Reject(ctx, pending.PendingID, "checker", "  ")
	assert.True(t, apierror.Is(err, apierror.ErrValidation), "got %v", err)
}

func TestWithdrawal_HoldLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.openBank(t, "cust_h", "", "1000")

	pending, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingWithdrawal,
		Amount:  dec("300"),
		Target:  model.PendingTarget{BankAccountID: bank.BankAccountID},
		MakerID: "maker",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pending.LienID)
	assert.True(t, f.bank(t, bank.BankAccountID).HeldBalance.Equal(dec("300")))
	f.assertHoldsConsistent(t, bank.BankAccountID)

	_, err = f.Reject(ctx, pending.PendingID, "checker", "wrong amount")
	require.NoError(t, err)

	after := f.bank(t, bank.BankAccountID)
	assert.True(t, after.HeldBalance.IsZero())
	assert.True(t, after.Balance.Equal(dec("1000")))
	lien, err := f.GetLien(ctx, pending.LienID)
	require.NoError(t, err)
	assert.Equal(t, model.LienCancelled, lien.Status)
	f.assertHoldsConsistent(t, bank.BankAccountID)
}

func TestWithdrawal_ApprovalDebitsBank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.openBank(t, "cust_wd", "", "1000")

	result := f.approved(t, PendingRequest{
		Type:    model.PendingWithdrawal,
		Amount:  dec("300"),
		Target:  model.PendingTarget{BankAccountID: bank.BankAccountID},
		MakerID: "maker",
	})
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, model.BankEffectDebit, result.Transactions[0].BankEffect)

	after := f.bank(t, bank.BankAccountID)
	assert.True(t, after.Balance.Equal(dec("700")))
	assert.True(t, after.HeldBalance.IsZero())
	assert.True(t, f.capitalBalance(t).Equal(dec("300")))
	assert.True(t, f.customerBalance(t, "cust_wd").Equal(dec("700")))

	lien, err := f.GetLien(ctx, result.Pending.LienID)
	require.NoError(t, err)
	assert.Equal(t, model.LienReleased, lien.Status)
	f.assertHoldsConsistent(t, bank.BankAccountID)
	f.assertConserved(t)
}

func TestWithdrawal_InsufficientFundsCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.openBank(t, "cust_poor", "", "100")

	_, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingWithdrawal,
		Amount:  dec("500"),
		Target:  model.PendingTarget{BankAccountID: bank.BankAccountID},
		MakerID: "maker",
	})
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)

	_, err = f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingWithdrawal,
		Amount:  dec("50"),
		Target:  model.PendingTarget{CustomerID: "cust_nobody"},
		MakerID: "maker",
	})
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)

	pending, err := f.ListPendingTransactions(ctx, model.PendingStatusPending, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.True(t, f.bank(t, bank.BankAccountID).HeldBalance.IsZero())
	liens, err := f.GetActiveLiens(ctx, bank.BankAccountID)
	require.NoError(t, err)
	assert.Empty(t, liens)
}

func TestCapitalWithdrawal_ChecksBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundCapital(t, "100")

	_, err := f.CreatePendingTransaction(ctx, PendingRequest{Type: model.PendingCoreCapitalWithdrawal, Amount: dec("150"), MakerID: "maker"})
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)

	first, err := f.CreatePendingTransaction(ctx, PendingRequest{Type: model.PendingCoreCapitalWithdrawal, Amount: dec("80"), MakerID: "maker"})
	require.NoError(t, err)
	second, err := f.CreatePendingTransaction(ctx, PendingRequest{Type: model.PendingCoreCapitalWithdrawal, Amount: dec("80"), MakerID: "maker"})
	require.NoError(t, err)

	_, err = f.Approve(ctx, first.PendingID, "admin")
	require.NoError(t, err)
	_, err = f.Approve(ctx, second.PendingID, "admin")
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)
	assert.True(t, f.capitalBalance(t).Equal(dec("20")))
	assert.True(t, f.balanceOf(t, model.ClassOffice, model.OfficeCash.Name).Equal(dec("-20")))
}

func TestDeposit_FundedByInvestor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	capital, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingCoreCapitalDeposit,
		Amount:  dec("800"),
		Target:  model.PendingTarget{InvestorID: "inv_1"},
		MakerID: "maker",
	})
	require.NoError(t, err)
	_, err = f.Approve(ctx, capital.PendingID, "admin")
	require.NoError(t, err)

	bank := f.openBank(t, "cust_inv", "inv_1", "0")
	f.approved(t, PendingRequest{Type: model.PendingDeposit, Amount: dec("300"), Target: model.PendingTarget{BankAccountID: bank.BankAccountID}, MakerID: "maker"})

	assert.True(t, f.balanceOf(t, model.ClassInvestorLedger, "inv_1").Equal(dec("500")))
	assert.True(t, f.capitalBalance(t).IsZero())
	assert.True(t, f.customerBalance(t, "cust_inv").Equal(dec("300")))
}

func TestCapitalMovement_NamedLedgerAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundCapital(t, "100")
	capital, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingCoreCapitalDeposit,
		Amount:  dec("400"),
		Target:  model.PendingTarget{InvestorID: "inv_2"},
		MakerID: "maker",
	})
	require.NoError(t, err)
	_, err = f.Approve(ctx, capital.PendingID, "admin")
	require.NoError(t, err)

	investors, err := f.ListLedgerAccounts(ctx, model.ClassInvestorLedger, 10, 0)
	require.NoError(t, err)
	require.Len(t, investors, 1)
	investorLedger := investors[0].AccountID

	withdrawal, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingCoreCapitalWithdrawal,
		Amount:  dec("150"),
		Target:  model.PendingTarget{LedgerAccountID: investorLedger},
		MakerID: "maker",
	})
	require.NoError(t, err)
	assert.Equal(t, investorLedger, withdrawal.LedgerAccountID)
	result, err := f.Approve(ctx, withdrawal.PendingID, "admin")
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, investorLedger, result.Transactions[0].DebitAccountID)
	assert.True(t, f.balanceOf(t, model.ClassInvestorLedger, "inv_2").Equal(dec("250")))
	assert.True(t, f.capitalBalance(t).Equal(dec("100")))

	_, err = f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingCoreCapitalWithdrawal,
		Amount:  dec("300"),
		Target:  model.PendingTarget{LedgerAccountID: investorLedger},
		MakerID: "maker",
	})
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientAvailableBalance), "got %v", err)

	f.approved(t, PendingRequest{Type: model.PendingDeposit, Amount: dec("10"), Target: model.PendingTarget{CustomerID: "cust_named"}, MakerID: "maker"})
	customerLedger, err := f.FindCustomerLedger(ctx, "cust_named")
	require.NoError(t, err)
	for _, target := range []model.PendingTarget{
		{LedgerAccountID: customerLedger.AccountID},
		{LedgerAccountID: investorLedger, InvestorID: "inv_other"},
	} {
		_, err = f.CreatePendingTransaction(ctx, PendingRequest{Type: model.PendingCoreCapitalDeposit, Amount: dec("1"), Target: target, MakerID: "maker"})
		assert.True(t, apierror.Is(err, apierror.ErrValidation), "got %v", err)
	}
	_, err = f.CreatePendingTransaction(ctx, PendingRequest{Type: model.PendingCoreCapitalDeposit, Amount: dec("1"), Target: model.PendingTarget{LedgerAccountID: "la_missing"}, MakerID: "maker"})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound), "got %v", err)
	f.assertConserved(t)
}

func TestCreatePending_RejectsMismatchedCustomer(t *testing.T) {
	f := newFixture(t)
	bank := f.openBank(t, "cust_a", "", "10")

	_, err := f.CreatePendingTransaction(context.Background(), PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("5"),
		Target:  model.PendingTarget{BankAccountID: bank.BankAccountID, CustomerID: "cust_b"},
		MakerID: "maker",
	})
	assert.True(t, apierror.Is(err, apierror.ErrValidation), "got %v", err)
}

func TestApprove_EnqueueFailureKeepsSettlement(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("queue down")
	f.fundCapital(t, "100")
	assert.True(t, f.capitalBalance(t).Equal(dec("100")))
	assert.Empty(t, f.queue.settlements)
}

func TestApprove_RedisLockHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.redis = client
	f.fundCapital(t, "100")

	pending, err := f.CreatePendingTransaction(ctx, PendingRequest{
		Type:    model.PendingDeposit,
		Amount:  dec("10"),
		Target:  model.PendingTarget{CustomerID: "cust_lock"},
		MakerID: "maker",
	})
	require.NoError(t, err)

	key := redlock.PendingKey(pending.PendingID)
	require.NoError(t, mr.Set(key, "another-process"))
	_, err = f.Approve(ctx, pending.PendingID, "checker")
	assert.True(t, apierror.Is(err, apierror.ErrStateConflict), "got %v", err)
	assert.True(t, f.customerBalance(t, "cust_lock").IsZero())

	mr.Del(key)
	_, err = f.Approve(ctx, pending.PendingID, "checker")
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))
	assert.True(t, f.customerBalance(t, "cust_lock").Equal(dec("10")))
}

func TestListPendingTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.advance(1)
		_, err := f.CreatePendingTransaction(ctx, PendingRequest{
			Type:    model.PendingDeposit,
			Amount:  dec("1"),
			Target:  model.PendingTarget{CustomerID: "cust_list"},
			MakerID: "maker",
		})
		require.NoError(t, err)
	}

	pending, err := f.ListPendingTransactions(ctx, model.PendingStatusPending, 2, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.True(t, pending[0].CreatedAt.After(pending[1].CreatedAt))

	approved, err := f.ListPendingTransactions(ctx, model.PendingStatusApproved, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, approved)
}
