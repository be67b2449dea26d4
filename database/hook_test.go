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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/crud/utils"
)

func TestCompactQuery(t *testing.T) {
	cases := map[string]string{
		`SELECT "wdg"."wdg_id", "wdg"."wdg_name" FROM "t_widget" AS "wdg" WHERE (wdg_name = 'a')`: `SELECT * FROM t_widget WHERE (wdg_name = 'a')`,
		"select id from `t_user` where id = 1":                                                   "SELECT * FROM t_user WHERE id = 1",
		`SELECT count(*) FROM "t_widget"`:                                                         `SELECT count(*) FROM "t_widget"`,
		`UPDATE "t_widget" SET wdg_name = 'b' WHERE wdg_id = 1`:                                  `UPDATE "t_widget" SET wdg_name = 'b' WHERE wdg_id = 1`,
	}
	for in, want := range cases {
		assert.Equal(t, want, CompactQuery(in), in)
	}
}

func TestQueryLogHook(t *testing.T) {
	ctx := utils.WithRequestID(context.Background(), "rid-7")
	db := newTestDB(t)
	createWidgets(t, db)

	logger, hook := logtest.NewNullLogger()
	db.AddQueryHook(NewQueryLogHook(logger, time.Hour))

	var widgets []widget
	require.NoError(t, db.NewSelect().Model(&widgets).Where("wdg_name = ?", "a").Scan(ctx))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, LabelQuery, entry.Data[utils.FieldLabel])
	assert.Equal(t, "rid-7", entry.Data[utils.FieldRequestID])
	assert.Equal(t, "SELECT * FROM t_widget WHERE (wdg_name = 'a')", entry.Message)

	_, err := db.ExecContext(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)
	entry = hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, LabelQueryError, entry.Data[utils.FieldLabel])
	assert.Contains(t, entry.Message, "ERROR DB QUERY: SELECT * FROM missing_table")
}

func TestQueryLogHookSlowQuery(t *testing.T) {
	db := newTestDB(t)
	logger, hook := logtest.NewNullLogger()
	db.AddQueryHook(NewQueryLogHook(logger, time.Nanosecond))

	_, err := db.ExecContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "SELECT 1")
	assert.Contains(t, entry.Data, "duration")
}

func TestMetricsHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewMetricsHook(reg)
	require.NoError(t, err)
	again, err := NewMetricsHook(reg)
	require.NoError(t, err)
	assert.Same(t, h.queries, again.queries)

	db := newTestDB(t)
	db.AddQueryHook(h)
	ctx := context.Background()

	_, err = db.ExecContext(ctx, "SELECT 1")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.queries.WithLabelValues("select", statusOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.queries.WithLabelValues("select", statusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(h.duration))
}
