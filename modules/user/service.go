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
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/tomoncle/crud"
)

// Service is the User service: the generic operations plus lookups backed
// by the embedded queries.
type Service struct {
	*crud.BaseService[User]
}

var _ crud.Service[User] = (*Service)(nil)

// NewService returns a User service. The embedded queries are always
// loaded; opts are applied after them.
func NewService(opts ...crud.Option) *Service {
	opts = append([]crud.Option{crud.WithRepositoryOptions(QueryOptions()...)}, opts...)
	return &Service{BaseService: crud.NewService[User](opts...)}
}

// FindByEmail returns the active user registered with email, or nil.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	rows, err := repo.Exec(ctx, "findByEmail", email)
	if err != nil {
		return nil, s.Translate(err)
	}
	found, err := repo.MapRows(rows)
	if err != nil {
		return nil, s.Translate(err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// SearchByName returns the active users whose first or last name contains
// name, with FullName filled. An empty name matches everyone; limit <= 0
// disables the limit.
func (s *Service) SearchByName(ctx context.Context, name string, limit int) ([]*User, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	params := map[string]interface{}{}
	if name != "" {
		params["name"] = "%" + name + "%"
	}
	if limit > 0 {
		params["limit"] = limit
	}
	found, err := repo.Statement(ctx, "searchByName", params)
	return found, s.Translate(err)
}

// CountActive returns the number of users that are not soft deleted.
func (s *Service) CountActive(ctx context.Context) (int, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	rows, err := repo.Exec(ctx, "countActive")
	if err != nil {
		return 0, s.Translate(err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt(rows[0]["total"])
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case []byte:
		return strconv.Atoi(string(n))
	default:
		i, err := strconv.Atoi(fmt.Sprint(n))
		if err != nil {
			return 0, errors.Wrapf(err, "count is %T", v)
		}
		return i, nil
	}
}
