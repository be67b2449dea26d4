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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asString(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func TestQueriesLoaded(t *testing.T) {
	repo, _ := newAuthorRepo(t)
	assert.Equal(t, []string{"byIds", "countActive", "findByEmail", "searchByName"}, repo.Queries())
}

func TestExec(t *testing.T) {
	repo, _ := newAuthorRepo(t)
	ctx := context.Background()
	seeded := seedAuthors(t, repo, "alice", "bob")

	rows, err := repo.Exec(ctx, "findByEmail", "bob@example.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, seeded[1].Base.ID, asString(rows[0]["aut_id"]))
	assert.Equal(t, "bob", asString(rows[0]["aut_name"]))

	rows, err = repo.Exec(ctx, "countActive")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0]["total"])

	_, err = repo.Exec(ctx, "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryNotFound))
	assert.Equal(t, `Query "nope" not found`, err.Error())

	_, err = repo.Exec(ctx, "searchByName")
	assert.Error(t, err)
}

func TestStatement(t *testing.T) {
	repo, db := newAuthorRepo(t)
	ctx := context.Background()
	seeded := seedAuthors(t, repo, "alice", "albert", "bob")

	books, err := NewRepository[book](db, WithQueriesRoot(t.TempDir()))
	require.NoError(t, err)
	seedBooks(t, books, seeded[0].Base.ID, "Go")

	found, err := repo.Statement(ctx, "searchByName", map[string]interface{}{"name": "al%"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "albert", found[0].Name)
	assert.Equal(t, 0, found[0].BookCount)
	assert.Equal(t, "alice", found[1].Name)
	assert.Equal(t, 1, found[1].BookCount)
	assert.Equal(t, 20, found[1].Age)
	assert.Equal(t, seeded[0].Base.ID, found[1].Base.ID)

	all, err := repo.Statement(ctx, "searchByName", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byIDs, err := repo.Statement(ctx, "byIds", map[string]interface{}{
		"ids":    []string{seeded[0].Base.ID, seeded[2].Base.ID},
		"minAge": 20,
	})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
	assert.Equal(t, "bob", byIDs[0].Name)
	assert.False(t, byIDs[0].Base.CreationDate.IsZero())

	_, err = repo.Statement(ctx, "byIds", map[string]interface{}{"ids": []string{"x"}})
	assert.ErrorContains(t, err, "missing parameters minAge")

	_, err = repo.Statement(ctx, "findByEmail", nil)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	set, err := loadQueries(testQueries(), "author/sql", testEntry())
	require.NoError(t, err)
	q, err := set.get("byIds")
	require.NoError(t, err)

	text, args, err := q.render(map[string]interface{}{"ids": []string{"a", "b"}, "minAge": 30})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t_author WHERE aut_id IN (?) AND aut_age > 30", text)
	require.Len(t, args, 1)
	_, isSlice := args[0].([]string)
	assert.False(t, isSlice, "list parameters are expanded with bun.In")

	text, args, err = q.render(map[string]interface{}{"ids": "a", "minAge": "1 OR 1=1"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t_author WHERE aut_id IN (?) AND aut_age > 1 OR 1=1", text)
	assert.Equal(t, []interface{}{"a"}, args)
}

func TestLookupParam(t *testing.T) {
	params := map[string]interface{}{"user": map[string]interface{}{"name": "x"}}
	v, ok := lookupParam(params, "user.name")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = lookupParam(params, "user.age")
	assert.False(t, ok)
}

func TestQueryName(t *testing.T) {
	assert.Equal(t, "findByEmail", queryName("sql/find-by-email.sql"))
	assert.Equal(t, "countActive", queryName("count_active.sql"))
	assert.Equal(t, "report", queryName("a/b/report.v2.sql"))
}

func TestBadMapper(t *testing.T) {
	fsys := fstest.MapFS{"q/bad.xml": {Data: []byte(`<mapper><select>SELECT 1</select></mapper>`)}}
	_, err := loadQueries(fsys, "q", testEntry())
	assert.ErrorContains(t, err, "without id")

	fsys = fstest.MapFS{"q/bad.xml": {Data: []byte(`<mapper><select id="x">{{if}}</select></mapper>`)}}
	_, err = loadQueries(fsys, "q", testEntry())
	assert.Error(t, err)
}

func TestQueriesRoot(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "author", "sql")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "list-all.sql"), []byte("SELECT * FROM t_author"), 0o644))

	db := newTestDB(t)
	repo, err := NewRepository[author](db, WithQueriesRoot(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"listAll"}, repo.Queries())

	repo, err = NewRepository[author](db, WithQueriesRoot(t.TempDir()))
	require.NoError(t, err)
	assert.Empty(t, repo.Queries())
}
