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

package crud

import (
	"github.com/cockroachdb/errors"

	"github.com/tomoncle/crud/database"
	"github.com/tomoncle/crud/exception"
	"github.com/tomoncle/crud/repository"
)

// Translate maps repository and driver errors onto the HTTP taxonomy.
func (s *BaseService[T]) Translate(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *exception.HTTPException
	if errors.As(err, &httpErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return exception.NotFound(err.Error()).WithCause(err)
	case errors.Is(err, repository.ErrUnknownColumn), errors.Is(err, repository.ErrAssociationNotFound):
		return exception.BadRequest(err.Error()).WithCause(err)
	}
	if ok, kind := database.IsSqlError(err); ok {
		switch kind {
		case database.DuplicateKeyErr:
			return exception.Conflict(nil).WithCause(err)
		case database.NotNullViolationErr,
			database.ForeignKeyViolationErr,
			database.CheckConstraintViolationErr,
			database.DataTruncatedErr,
			database.InvalidTypeCastErr:
			return exception.BadRequest(nil).WithCause(err)
		}
	}
	return errors.Wrap(err, s.ServiceName())
}
