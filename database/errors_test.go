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

package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		err  error
		is   bool
		kind SQLError
	}{
		{nil, false, UnknownErr},
		{errors.New("boom"), false, UnknownErr},
		{sql.ErrNoRows, true, NoRowsErr},
		{errors.Wrap(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, "insert"), true, DuplicateKeyErr},
		{&mysql.MySQLError{Number: 1452}, true, ForeignKeyViolationErr},
		{&mysql.MySQLError{Number: 2000}, true, UnknownErr},
		{errors.New(`pq: duplicate key value violates unique constraint "t_user_usr_email_key"`), true, DuplicateKeyErr},
		{errors.New("ERROR: null value in column (SQLSTATE 23502)"), true, NotNullViolationErr},
		{errors.New("NOT NULL constraint failed: t_user.usr_email"), true, NotNullViolationErr},
		{errors.New("FOREIGN KEY constraint failed"), true, ForeignKeyViolationErr},
		{errors.New("no such table: t_user"), true, NoTableErr},
		{errors.New("table t_user already exists"), true, ExistTableErr},
		{errors.New("index idx_a already exists"), true, ExistIndexErr},
	}
	for _, c := range cases {
		is, kind := IsSqlError(c.err)
		assert.Equal(t, c.is, is, "%v", c.err)
		assert.Equal(t, c.kind, kind, "%v", c.err)
	}
}

func TestIsSqlErrorSqlite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	createWidgets(t, db)

	_, err := db.NewInsert().Model(&widget{Name: "a"}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&widget{Name: "a"}).Exec(ctx)
	require.Error(t, err)

	is, kind := IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)
}
