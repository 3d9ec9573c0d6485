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

	"github.com/blnkfinance/tally/internal/apierror"
	"github.com/blnkfinance/tally/model"
)

// IdentityResolver maps a maker or checker id to a role.
type IdentityResolver interface {
	RoleOf(ctx context.Context, userID string) (model.Role, error)
}

// StaticIdentity resolves roles from configuration. Users it does not know
// are operators.
type StaticIdentity map[string]model.Role

func NewStaticIdentity(roles map[string]string) StaticIdentity {
	identity := make(StaticIdentity, len(roles))
	for user, role := range roles {
		identity[user] = model.ParseRole(role)
	}
	return identity
}

func (s StaticIdentity) RoleOf(_ context.Context, userID string) (model.Role, error) {
	if role, ok := s[userID]; ok {
		return role, nil
	}
	return model.RoleOperator, nil
}

// authorizeChecker enforces the two-person rule. The checker must differ
// from the maker, and capital movements need an administrator.
func (t *Tally) authorizeChecker(ctx context.Context, pending *model.PendingTransaction, checkerID string) error {
	if checkerID == "" {
		return apierror.Validation("checker is required")
	}
	if checkerID == pending.MakerID {
		return apierror.Unauthorized("%s cannot check pending transaction %s they created", checkerID, pending.PendingID)
	}
	if !pending.Type.CapitalClass() {
		return nil
	}
	return t.requireAdministrator(ctx, checkerID)
}

func (t *Tally) requireAdministrator(ctx context.Context, userID string) error {
	if userID == "" {
		return apierror.Validation("actor is required")
	}
	role, err := t.identity.RoleOf(ctx, userID)
	if err != nil {
		return err
	}
	if !role.Administrator() {
		return apierror.Unauthorized("%s has role %s, ADMIN or SUPERADMIN required", userID, role)
	}
	return nil
}
