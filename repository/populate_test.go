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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/crud/types"
)

func seedBooks(t *testing.T, repo Repository[book], authorID string, titles ...string) {
	t.Helper()
	for _, title := range titles {
		_, err := repo.Create(context.Background(), &book{Title: title, AuthorID: authorID})
		require.NoError(t, err)
	}
}

func TestPopulateOneToMany(t *testing.T) {
	authors, db := newAuthorRepo(t)
	books, err := NewRepository[book](db, WithQueriesRoot(t.TempDir()))
	require.NoError(t, err)
	ctx := context.Background()

	seeded := seedAuthors(t, authors, "alice", "bob", "carol")
	seedBooks(t, books, seeded[0].Base.ID, "A1", "A2")
	seedBooks(t, books, seeded[1].Base.ID, "B1")

	list, err := authors.Search(ctx, &types.FindOptions{Orders: []string{"aut_name"}})
	require.NoError(t, err)
	require.NoError(t, authors.Populate(ctx, list, "Books", nil))

	assert.Len(t, list[0].Books, 2)
	assert.Len(t, list[1].Books, 1)
	assert.Equal(t, "B1", list[1].Books[0].Title)
	assert.NotNil(t, list[2].Books)
	assert.Empty(t, list[2].Books)

	require.NoError(t, authors.Populate(ctx, list, "Books", types.Where("Title", "A2")))
	require.Len(t, list[0].Books, 1)
	assert.Equal(t, "A2", list[0].Books[0].Title)
}

func TestPopulateManyToOne(t *testing.T) {
	authors, db := newAuthorRepo(t)
	books, err := NewRepository[book](db, WithQueriesRoot(t.TempDir()))
	require.NoError(t, err)
	ctx := context.Background()

	seeded := seedAuthors(t, authors, "alice", "bob")
	seedBooks(t, books, seeded[0].Base.ID, "A1")
	seedBooks(t, books, seeded[1].Base.ID, "B1")
	seedBooks(t, books, "", "orphan")

	list, err := books.Search(ctx, &types.FindOptions{Orders: []string{"bok_title"}})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.NoError(t, books.Populate(ctx, list, "Author", nil))

	require.NotNil(t, list[0].Author)
	assert.Equal(t, "alice", list[0].Author.Name)
	require.NotNil(t, list[1].Author)
	assert.Equal(t, "bob", list[1].Author.Name)
	assert.Nil(t, list[2].Author)
}

func TestPopulateErrors(t *testing.T) {
	authors, _ := newAuthorRepo(t)
	ctx := context.Background()

	assert.NoError(t, authors.Populate(ctx, nil, "Unknown", nil))

	list := []*author{{Name: "x"}}
	err := authors.Populate(ctx, list, "Unknown", nil)
	assert.True(t, errors.Is(err, ErrAssociationNotFound))

	err = authors.Populate(ctx, list, "Name", nil)
	assert.True(t, errors.Is(err, ErrAssociationNotFound))
}
