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

package types

import (
	"fmt"
	"sort"
	"strings"
)

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// Criteria maps a column (or Go field) name to the value it must equal.
// A slice value matches any of its elements and nil matches NULL.
type Criteria map[string]interface{}

// Keys returns the criteria keys in a stable order.
func (c Criteria) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c Criteria) String() string {
	parts := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FindOptions narrows a select. The zero value selects every active row.
type FindOptions struct {
	Where  Criteria
	Filter *QueryFilter
	// Orders holds order expressions such as "usr_email ASC".
	Orders []string
	Limit  int
	Offset int
	// Relations lists bun relations to join into the result.
	Relations []string
	// WithDeleted includes soft-deleted rows.
	WithDeleted bool
}

// Where builds FindOptions from alternating key/value pairs.
func Where(kv ...interface{}) *FindOptions {
	c := make(Criteria, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		c[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return &FindOptions{Where: c}
}

// GetOptions controls lookups that may come back empty.
type GetOptions struct {
	MustExist bool
}
