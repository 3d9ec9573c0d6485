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

import "strings"

type Role string

const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleOperator   Role = "OPERATOR"
)

// ParseRole normalises a role name. Unknown names map to OPERATOR.
func ParseRole(name string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(name))) {
	case RoleSuperAdmin:
		return RoleSuperAdmin
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleOperator
	}
}

// Administrator reports whether the role may check capital transactions and manage liens.
func (r Role) Administrator() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}
