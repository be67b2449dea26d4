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

package user

import (
	"embed"

	"github.com/uptrace/bun"

	"github.com/tomoncle/crud/repository"
)

//go:embed sql
var queries embed.FS

// QueryOptions returns the repository options loading the embedded queries.
func QueryOptions() []repository.Option {
	return []repository.Option{repository.WithQueryFS(queries, "sql")}
}

// NewRepository returns the User repository over db with the embedded
// queries: findByEmail, countActive and searchByName.
func NewRepository(db bun.IDB, opts ...repository.Option) (repository.Repository[User], error) {
	return repository.NewRepository[User](db, append(QueryOptions(), opts...)...)
}
