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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/tomoncle/crud/utils"
)

// Log labels used by QueryLogHook.
const (
	LabelQuery      = "db-query"
	LabelQueryError = "db-query-error"
)

var (
	slowMarker   = color.New(color.FgYellow, color.BlinkSlow).Sprint("[SLOW]")
	whereKeyword = regexp.MustCompile(`(?i)\sWHERE\s`)
	fromTable    = regexp.MustCompile("(?i)\\bFROM\\s+[\"`]?([\\w.]+)[\"`]?")
)

// QueryLogHook writes every statement to a logrus logger. Failed statements
// go to the db-query-error label, statements slower than slowTime are
// logged as warnings.
type QueryLogHook struct {
	logger   *logrus.Logger
	slowTime time.Duration
}

var _ bun.QueryHook = (*QueryLogHook)(nil)

func NewQueryLogHook(logger *logrus.Logger, slowTime time.Duration) *QueryLogHook {
	if logger == nil {
		logger = utils.GetLogger(loggerName)
	}
	return &QueryLogHook{logger: logger, slowTime: slowTime}
}

func (h *QueryLogHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	dur := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) && !errors.Is(event.Err, sql.ErrTxDone):
		utils.Entry(ctx, h.logger, LabelQueryError).
			WithField("duration", dur.Round(time.Microsecond).String()).
			Errorf("ERROR DB QUERY: %s - error: %v", event.Query, event.Err)
	case h.slowTime > 0 && dur > h.slowTime:
		utils.Entry(ctx, h.logger, LabelQuery).
			WithField("duration", dur.Round(time.Microsecond).String()).
			Warnf("%s %s", slowMarker, CompactQuery(event.Query))
	default:
		utils.Entry(ctx, h.logger, LabelQuery).Info(CompactQuery(event.Query))
	}
}

// CompactQuery shortens a SELECT with a WHERE clause to
// "SELECT * FROM <table> WHERE <condition>". Other statements are returned
// unchanged.
func CompactQuery(query string) string {
	head := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(head), "SELECT") {
		return query
	}
	loc := whereKeyword.FindStringIndex(head)
	if loc == nil {
		return query
	}
	m := fromTable.FindStringSubmatch(head[:loc[0]])
	if m == nil {
		return query
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", m[1], strings.TrimSpace(head[loc[1]:]))
}
