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
	"net/http"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/crud"
	"github.com/tomoncle/crud/cache"
	"github.com/tomoncle/crud/database"
	"github.com/tomoncle/crud/exception"
	"github.com/tomoncle/crud/types"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.MaxIdleConns = 1
	cfg.ConnectionConfig.HealthCheckInterval = 0

	ctx := context.Background()
	m := database.NewDatabaseManager(cfg)
	require.NoError(t, m.Connect(ctx))
	t.Cleanup(func() { _ = m.Disconnect() })
	require.NoError(t, m.RunMigrations(ctx))
	return m.GetDB()
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(crud.WithDB(newTestDB(t)))
}

func seedUsers(t *testing.T, s *Service) []*User {
	t.Helper()
	users, err := s.CreateEach(context.Background(), []*User{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "secret", Roles: types.NewJSON([]string{"admin", "user"})},
		{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Roles: types.NewJSON([]string{"user"})},
		{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"},
	})
	require.NoError(t, err)
	return users
}

func TestUserRegistered(t *testing.T) {
	var found bool
	for _, m := range database.GetRegisteredModels() {
		if _, ok := m.Instance().(*User); ok {
			found = true
			assert.Equal(t, 10, m.Priority())
		}
	}
	assert.True(t, found)
}

func TestEmbeddedQueries(t *testing.T) {
	repo, err := NewRepository(newTestDB(t))
	require.NoError(t, err)
	assert.Equal(t, "User", repo.EntityName())
	assert.Equal(t, []string{"countActive", "findByEmail", "searchByName"}, repo.Queries())
}

func TestUserColumns(t *testing.T) {
	repo, err := NewRepository(newTestDB(t))
	require.NoError(t, err)

	names := lo.Map(repo.Table().Fields, func(f *schema.Field, _ int) string { return f.Name })
	assert.Equal(t, []string{
		"usr_id", "usr_creation_date", "usr_update_date", "usr_deletion_date",
		"usr_first_name", "usr_last_name", "usr_email", "usr_password", "usr_roles",
	}, names)
	assert.Equal(t, "usr_id", repo.Table().PKs[0].Name)
	assert.Equal(t, "usr_deletion_date", repo.Table().SoftDeleteField.Name)
}

// redisStub is an in-memory stand-in for the go-redis client.
type redisStub map[string]string

func (r redisStub) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := r[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (r redisStub) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	r[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (r redisStub) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(r, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestCachedUserKeepsPassword(t *testing.T) {
	db := newTestDB(t)
	store := redisStub{}
	s := NewService(crud.WithDB(db), crud.WithCache(cache.NewRedisCache(store, "crud", time.Minute)))
	ctx := context.Background()
	seeded := seedUsers(t, s)
	id := seeded[0].Base.ID

	first, err := s.GetByID(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, "secret", first.Password)
	require.Contains(t, store, cache.Key("crud", "User", id))

	_, err = db.NewUpdate().Table("t_user").Set("usr_first_name = ?", "Changed").Where("usr_id = ?", id).Exec(ctx)
	require.NoError(t, err)

	cached, err := s.GetByID(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, "Ada", cached.FirstName)
	assert.Equal(t, "secret", cached.Password)
	assert.Equal(t, []string{"admin", "user"}, cached.Roles.V)
	assert.True(t, first.Base.CreationDate.Equal(cached.Base.CreationDate))
	assert.Nil(t, cached.Base.DeletionDate)
}

func TestServiceNames(t *testing.T) {
	s := NewService()
	assert.Equal(t, "User", s.EntityName())
	assert.Equal(t, "UserService", s.ServiceName())
}

func TestFindByEmail(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seeded := seedUsers(t, s)

	u, err := s.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, seeded[0].Base.ID, u.Base.ID)
	assert.Equal(t, "Lovelace", u.LastName)
	assert.Equal(t, []string{"admin", "user"}, u.Roles.V)
	assert.True(t, u.HasRole("admin"))
	assert.Empty(t, u.Password)
	assert.False(t, u.Base.CreationDate.IsZero())

	missing, err := s.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.DeleteByID(ctx, seeded[0].Base.ID, false)
	require.NoError(t, err)
	gone, err := s.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSearchByName(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedUsers(t, s)

	found, err := s.SearchByName(ctx, "Al", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Alan Turing", found[0].FullName)
	assert.Equal(t, []string{"user"}, found[0].Roles.V)

	all, err := s.SearchByName(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Ada", all[0].FirstName)
	assert.Equal(t, "Grace Hopper", all[2].FullName)

	limited, err := s.SearchByName(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	byLast, err := s.SearchByName(ctx, "hopp", 0)
	require.NoError(t, err)
	require.Len(t, byLast, 1)
	assert.Equal(t, "Grace", byLast[0].FirstName)
}

func TestCountActive(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seeded := seedUsers(t, s)

	n, err := s.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.DeleteByID(ctx, seeded[1].Base.ID, false)
	require.NoError(t, err)
	n, err = s.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	total, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestGenericOperations(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seeded := seedUsers(t, s)

	_, err := s.Create(ctx, &User{FirstName: "Dup", Email: "ada@example.com"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, exception.Status(err))

	updated, err := s.UpdateByID(ctx, seeded[2].Base.ID, map[string]interface{}{"LastName": "Murray Hopper"})
	require.NoError(t, err)
	assert.Equal(t, "Murray Hopper", updated.LastName)

	_, err = s.GetByID(ctx, uuid.NewString(), true)
	assert.Equal(t, http.StatusNotFound, exception.Status(err))

	got, err := s.FindOne(ctx, types.Where("Email", "grace@example.com"), types.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Murray Hopper", got.LastName)
}

func TestPasswordNotSerialized(t *testing.T) {
	b, err := json.Marshal(&User{FirstName: "Ada", Email: "ada@example.com", Password: "secret", Roles: types.NewJSON([]string{"admin"})})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.Contains(t, string(b), `"roles":["admin"]`)
	assert.Contains(t, string(b), `"email":"ada@example.com"`)
	assert.NotContains(t, string(b), "deletionDate")
}
