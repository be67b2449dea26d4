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

package utils

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(msg string, data logrus.Fields) *logrus.Entry {
	return &logrus.Entry{
		Logger:  logrus.New(),
		Data:    data,
		Time:    time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: msg,
	}
}

func TestConsoleFormatter(t *testing.T) {
	color.NoColor = true

	f := &ConsoleFormatter{LoggerName: "APP"}
	b, err := f.Format(newTestEntry("User created successfully - 1", logrus.Fields{
		FieldLabel:     "UserService",
		FieldRequestID: "req-1",
		FieldDetails:   map[string]string{"id": "1"},
		"extra":        7,
	}))
	require.NoError(t, err)
	assert.Equal(t,
		"[2025-03-04 05:06:07] info [req-1] UserService : User created successfully - 1 {\"id\":\"1\"} extra=7\n",
		string(b))
}

func TestConsoleFormatterDefaultsToLoggerName(t *testing.T) {
	color.NoColor = true

	f := &ConsoleFormatter{LoggerName: "DATABASE"}
	b, err := f.Format(newTestEntry("connected", logrus.Fields{}))
	require.NoError(t, err)
	assert.Equal(t, "[2025-03-04 05:06:07] info [] DATABASE : connected\n", string(b))
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "APP"}
	b, err := f.Format(newTestEntry("failed", logrus.Fields{
		FieldLabel: "db-query-error",
		"error":    errors.New("boom"),
	}))
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, "db-query-error", rec["label"])
	assert.Equal(t, "failed", rec["message"])
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, map[string]interface{}{"error": "boom"}, rec["fields"])
}

func TestEntryCarriesRequestID(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	l := NewLogger("ENTRY_TEST")
	l.SetOutput(&buf)
	l.SetFormatter(&ConsoleFormatter{LoggerName: "ENTRY_TEST"})

	ctx := WithRequestID(context.Background(), "abc")
	Entry(ctx, l, "UserService").Info("hello")

	assert.Contains(t, buf.String(), "[abc] UserService : hello")
	assert.Equal(t, "abc", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("verbose"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("WARNING"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("nope"))
}

func TestSetLoggerLevel(t *testing.T) {
	l := NewLogger("LEVEL_TEST")
	assert.True(t, SetLoggerLevel("LEVEL_TEST", "error"))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("MISSING_LOGGER", "error"))
	assert.Same(t, l, GetLogger("LEVEL_TEST"))
}
