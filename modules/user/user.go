/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package user wires the generic repository and service for User.
package user

import (
	"github.com/samber/lo"
	"github.com/uptrace/bun"

	"github.com/tomoncle/crud/database"
	"github.com/tomoncle/crud/entity"
	"github.com/tomoncle/crud/types"
)

func init() {
	database.RegisterModel((*User)(nil), 10)
}

// User is an application account. FullName is only filled by statements
// that select usr_full_name.
type User struct {
	bun.BaseModel `bun:"table:t_user,alias:usr"`
	Base          entity.Base `bun:"embed:usr_" json:"base"`

	FirstName string               `bun:"usr_first_name,notnull" json:"firstName"`
	LastName  string               `bun:"usr_last_name" json:"lastName"`
	Email     string               `bun:"usr_email,notnull,unique" json:"email"`
	Password  string               `bun:"usr_password" json:"-"`
	Roles     types.JSON[[]string] `bun:"usr_roles,type:json" json:"roles"`

	FullName string `bun:"-" ext:"usr_full_name" json:"fullName,omitempty"`
}

// HasRole reports whether role is one of the user's roles.
func (u *User) HasRole(role string) bool {
	return lo.Contains(u.Roles.V, role)
}
