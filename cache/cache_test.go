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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	data map[string]string
	ttls map[string]time.Duration
	fail error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.fail != nil {
		return redis.NewStringResult("", m.fail)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = string(value.([]byte))
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type item struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

func TestRedisCacheRoundTrip(t *testing.T) {
	store := newMemoryStore()
	c := NewRedisCache(store, "crud", time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key("User", "1"), &item{ID: "1", Tags: []string{"a"}}))
	assert.Contains(t, store.data, "crud:User:1")
	assert.Equal(t, time.Minute, store.ttls["crud:User:1"])

	var got item
	ok, err := c.Get(ctx, Key("User", "1"), &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, item{ID: "1", Tags: []string{"a"}}, got)

	require.NoError(t, c.Delete(ctx, Key("User", "1"), Key("User", "2")))
	ok, err = c.Get(ctx, Key("User", "1"), &got)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.Delete(ctx))
}

type account struct {
	Email    string    `json:"email"`
	Password string    `json:"-"`
	Created  time.Time `json:"created"`
}

func TestRedisCacheKeepsFieldsHiddenFromJSON(t *testing.T) {
	store := newMemoryStore()
	c := NewRedisCache(store, "crud", 0)
	ctx := context.Background()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, c.Set(ctx, Key("User", "1"), &account{Email: "ada@example.com", Password: "secret", Created: created}))

	var got account
	ok, err := c.Get(ctx, Key("User", "1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "secret", got.Password)
	assert.True(t, created.Equal(got.Created))
}

func TestRedisCacheErrors(t *testing.T) {
	store := newMemoryStore()
	c := NewRedisCache(store, "", 0)
	ctx := context.Background()

	store.data["bad"] = "\xc1"
	var got item
	_, err := c.Get(ctx, "bad", &got)
	assert.ErrorContains(t, err, "cache decode bad")

	store.fail = errors.New("connection refused")
	_, err = c.Get(ctx, "bad", &got)
	assert.ErrorContains(t, err, "connection refused")
}
