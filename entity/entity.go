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

// Package entity holds the identity and audit fields shared by every model.
package entity

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Base is embedded as a named field with a per-table column prefix:
//
//	type User struct {
//		bun.BaseModel `bun:"table:t_user,alias:usr"`
//		Base          entity.Base `bun:"embed:usr_" json:"base"`
//	}
//
// Bun only applies the prefix to named fields; an anonymous Base maps to the
// bare id and *_date columns. Repositories assign ID, CreationDate and
// UpdateDate on write. DeletionDate is the soft delete marker: bun turns
// deletes into updates of this column and hides marked rows from selects.
type Base struct {
	ID           string     `bun:"id,pk,type:varchar(36)" json:"id"`
	CreationDate time.Time  `bun:"creation_date,nullzero,notnull,default:current_timestamp" json:"creationDate"`
	UpdateDate   time.Time  `bun:"update_date,nullzero,notnull,default:current_timestamp" json:"updateDate"`
	DeletionDate *time.Time `bun:"deletion_date,soft_delete,nullzero" json:"deletionDate,omitempty"`
}

func (b *Base) IsDeleted() bool { return b.DeletionDate != nil && !b.DeletionDate.IsZero() }

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current time truncated to microseconds, the finest
// precision every supported database keeps.
func Now() time.Time {
	return time.Now().Truncate(time.Microsecond)
}

// Name returns the Go type name of an entity value, pointer or type.
func Name(v interface{}) string {
	var t reflect.Type
	switch x := v.(type) {
	case reflect.Type:
		t = x
	default:
		t = reflect.TypeOf(v)
	}
	if t == nil {
		return "Unknown"
	}
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Unknown"
	}
	return t.Name()
}
