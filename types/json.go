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
	"database/sql/driver"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
)

// JSON stores V in a JSON column. Drivers hand JSON back either as []byte
// (mysql, postgres) or as string (sqlite); both are accepted.
type JSON[T any] struct {
	V T
}

// NewJSON wraps v for storage in a JSON column.
func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{V: v}
}

// Value implements driver.Valuer.
func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSON[T]) Scan(value interface{}) error {
	var zero T
	switch v := value.(type) {
	case nil:
		j.V = zero
		return nil
	case []byte:
		return j.unmarshal(v)
	case string:
		return j.unmarshal([]byte(v))
	default:
		return errors.Newf("types: cannot scan %T into JSON column", value)
	}
}

func (j *JSON[T]) unmarshal(b []byte) error {
	var v T
	if len(b) > 0 {
		if err := json.Unmarshal(b, &v); err != nil {
			return errors.Wrap(err, "types: decode JSON column")
		}
	}
	j.V = v
	return nil
}

// MarshalJSON encodes the wrapped value directly.
func (j JSON[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

// UnmarshalJSON decodes into the wrapped value.
func (j *JSON[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.V)
}
