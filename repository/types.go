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

package repository

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/crud/types"
)

// FindRepository defines the read side. Soft-deleted rows are skipped unless
// FindOptions.WithDeleted is set.
type FindRepository[T any] interface {
	// FindOne returns the first match, or nil when nothing matches.
	FindOne(ctx context.Context, opts *types.FindOptions) (*T, error)

	FindByID(ctx context.Context, id string) (*T, error)

	Search(ctx context.Context, opts *types.FindOptions) ([]*T, error)

	FindAndCount(ctx context.Context, opts *types.FindOptions) ([]*T, int, error)

	Count(ctx context.Context, opts *types.FindOptions) (int, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// WriteRepository defines inserts, partial updates and deletes. Updates and
// deletes load the affected rows first and return them with the change
// applied; they fail with ErrNotFound when nothing matches.
type WriteRepository[T any] interface {
	Create(ctx context.Context, entity *T) (*T, error)

	CreateEach(ctx context.Context, entities []*T) ([]*T, error)

	UpdateByID(ctx context.Context, id string, partial map[string]interface{}) (*T, error)

	UpdateByIDs(ctx context.Context, ids []string, partial map[string]interface{}) ([]*T, error)

	// UpdateByCriteria returns an empty slice instead of ErrNotFound when
	// opts.MustExist is false.
	UpdateByCriteria(ctx context.Context, where types.Criteria, partial map[string]interface{}, opts types.GetOptions) ([]*T, error)

	// DeleteByCriteria soft deletes the matching rows, or removes them when
	// hard is set.
	DeleteByCriteria(ctx context.Context, where types.Criteria, hard bool) ([]*T, error)

	DeleteByIDs(ctx context.Context, ids []string, hard bool) ([]*T, error)

	DeleteByID(ctx context.Context, id string, hard bool) (*T, error)

	// SaveOrIgnore inserts the entities that do not exist yet. Existence is
	// checked on fieldsToCheck, or on the id when none are given.
	SaveOrIgnore(ctx context.Context, entities []*T, fieldsToCheck ...string) (saved []*T, ignored []*T, err error)
}

// QueryRepository runs the queries loaded from the entity's query directory.
type QueryRepository[T any] interface {
	// Exec runs a .sql query with positional arguments and returns raw rows.
	Exec(ctx context.Context, name string, args ...interface{}) ([]map[string]interface{}, error)

	// Statement renders an XML mapped statement and maps the rows onto T.
	Statement(ctx context.Context, name string, params map[string]interface{}) ([]*T, error)

	// Queries returns the loaded query names in sorted order.
	Queries() []string
}

// Repository combines the entity operations and exposes Bun query builders
// for advanced use cases.
type Repository[T any] interface {
	FindRepository[T]
	PageQueryRepository[T]
	WriteRepository[T]
	QueryRepository[T]

	// Populate loads the association field of every entity in collection.
	Populate(ctx context.Context, collection []*T, association string, opts *types.FindOptions) error

	// SanitizeInput keeps the updatable columns of input, keyed by column name.
	SanitizeInput(input map[string]interface{}) map[string]interface{}

	// MapRows maps raw result rows onto new entities.
	MapRows(rows []map[string]interface{}) ([]*T, error)

	EntityName() string
	// ID returns the primary key of e as a string.
	ID(e *T) string
	Table() *schema.Table
	DB() bun.IDB
	// WithTx returns a copy of the repository bound to tx.
	WithTx(tx bun.Tx) Repository[T]

	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
