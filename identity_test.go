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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/tally/database/mocks"
	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

func TestNewStaticIdentity(t *testing.T) {
	identity := NewStaticIdentity(map[string]string{"amy": "admin", "sam": " SuperAdmin ", "op": "clerk"})
	ctx := context.Background()

	for user, want := range map[string]model.Role{
		"amy":     model.RoleAdmin,
		"sam":     model.RoleSuperAdmin,
		"op":      model.RoleOperator,
		"unknown": model.RoleOperator,
	} {
		role, err := identity.RoleOf(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, want, role, user)
	}
}

func TestAuthorizeChecker(t *testing.T) {
	tl := &Tally{identity: StaticIdentity{"admin": model.RoleAdmin}}
	deposit := &model.PendingTransaction{PendingID: "p1", Type: model.PendingDeposit, MakerID: "maker"}
	capital := &model.PendingTransaction{PendingID: "p2", Type: model.PendingCoreCapitalDeposit, MakerID: "maker"}

	tests := []struct {
		name    string
		pending *model.PendingTransaction
		checker string
		code    apierror.ErrorCode
	}{
		{"missing checker", deposit, "", apierror.ErrValidation},
		{"maker checks own request", deposit, "maker", apierror.ErrAuthorizationViolation},
		{"operator checks deposit", deposit, "clerk", ""},
		{"operator checks capital", capital, "clerk", apierror.ErrAuthorizationViolation},
		{"admin checks capital", capital, "admin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tl.authorizeChecker(context.Background(), tt.pending, tt.checker)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apierror.Is(err, tt.code), "got %v", err)
		})
	}
}

func newMockedTally(ds *mocks.MockDataSource) *Tally {
	return &Tally{
		datasource: ds,
		identity:   StaticIdentity{},
		now:        func() time.Time { return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func TestRejectSurfacesStoreFailure(t *testing.T) {
	ds := new(mocks.MockDataSource)
	pending := &model.PendingTransaction{PendingID: "pnd_1", Type: model.PendingDeposit, Status: model.PendingStatusPending, MakerID: "maker"}

	ds.On("WithTx", mock.Anything).Return(nil)
	ds.On("LockPendingTransaction", mock.Anything, "pnd_1").Return(pending, nil)
	ds.On("UpdatePendingTransaction", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	_, err := newMockedTally(ds).Reject(context.Background(), "pnd_1", "checker", "duplicate")
	assert.EqualError(t, err, "connection reset")
	ds.AssertExpectations(t)
}

func TestApproveStopsWhenPendingCannotBeLocked(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("WithTx", mock.Anything).Return(nil)
	ds.On("LockPendingTransaction", mock.Anything, "pnd_1").Return(nil, apierror.NotFound("pending transaction %s not found", "pnd_1"))

	_, err := newMockedTally(ds).Approve(context.Background(), "pnd_1", "checker")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	ds.AssertNotCalled(t, "UpdatePendingTransaction", mock.Anything, mock.Anything)
	ds.AssertExpectations(t)
}

func TestUnitSkipsHooksWhenTransactionFails(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("WithTx", mock.Anything).Return(errors.New("serialization failure"))

	ran := false
	err := newMockedTally(ds).inUnit(context.Background(), func(ctx context.Context, u *unit) error {
		u.afterCommit(func(context.Context) { ran = true })
		return nil
	})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestAutoApproveLocksFundingAndCustomerTogether(t *testing.T) {
	ds := new(mocks.MockDataSource)
	capital := &model.LedgerAccount{AccountID: "la_core", Name: model.CoreCapital.Name, Balance: dec("10")}
	customer := &model.LedgerAccount{AccountID: "la_cust", Name: "Customer Ledger cust_1"}

	ds.On("FindSystemAccount", mock.Anything, model.CoreCapital.Name).Return(capital, nil)
	ds.On("FindOwnedAccount", mock.Anything, model.ClassCustomerLedger, "cust_1").Return(customer, nil)
	ds.On("LockLedgerAccounts", mock.Anything, []string{"la_core", "la_cust"}).
		Return(map[string]*model.LedgerAccount{"la_core": capital, "la_cust": customer}, nil)

	tl := newMockedTally(ds)
	u := &unit{Tally: tl, ds: ds, now: tl.now()}
	p := &model.PendingTransaction{PendingID: "pnd_1", Type: model.PendingDeposit, Amount: dec("50"), CustomerID: "cust_1", Status: model.PendingStatusPending}

	// capital does not cover the deposit, so it is left for a checker
	require.NoError(t, u.autoApprove(context.Background(), p))
	assert.Equal(t, model.PendingStatusPending, p.Status)
	ds.AssertNumberOfCalls(t, "LockLedgerAccounts", 1)
	ds.AssertNotCalled(t, "RecordLedgerTransaction", mock.Anything, mock.Anything)
	ds.AssertExpectations(t)
}
