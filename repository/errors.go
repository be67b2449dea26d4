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
	"github.com/cockroachdb/errors"
)

// Sentinel errors. Returned errors carry a descriptive message and are
// marked with one of these, so test them with errors.Is.
var (
	ErrNotFound            = errors.New("entity not found")
	ErrQueryNotFound       = errors.New("query not found")
	ErrAssociationNotFound = errors.New("association model not found")
	ErrUnknownColumn       = errors.New("unknown column")
)

func notFound(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}
