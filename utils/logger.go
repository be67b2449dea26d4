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
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

// Well-known entry fields understood by the formatters.
const (
	FieldLabel     = "label"
	FieldRequestID = "request_id"
	FieldDetails   = "details"
)

const defaultTimestampFormat = "2006-01-02 15:04:05"

var (
	defaultLevel      = logrus.DebugLevel
	loggerRegistryMu  sync.RWMutex
	loggerRegistry    = map[string]*logrus.Logger{}
	consoleLogFormat  = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	consoleLogWriter  io.Writer = os.Stdout
	consoleLogWriteMu sync.RWMutex
)

// ConfigureConsoleLogFormat switches newly created loggers between the
// coloured text layout and one JSON object per line.
func ConfigureConsoleLogFormat(format string) {
	s := strings.ToLower(strings.TrimSpace(format))
	if s == "json" {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// ConfigureOutput redirects every registered logger, and loggers created
// afterwards, to w.
func ConfigureOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	consoleLogWriteMu.Lock()
	consoleLogWriter = w
	consoleLogWriteMu.Unlock()

	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "silly":
		return logrus.TraceLevel
	case "debug", "verbose":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

// GetLogger returns the registered logger with the given name, creating it
// on first use.
func GetLogger(name string) *logrus.Logger {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if ok {
		return lg
	}
	return NewLogger(name)
}

func SetLoggerLevel(name string, lvlStr string) bool {
	lvl := ParseLogLevel(lvlStr)
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(lvl)
	return true
}

// ConfigureLogLevel sets the level of every registered logger and the
// default for loggers created later.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	defaultLevel = lvl
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	loggerRegistryMu.RUnlock()
	logrus.SetLevel(lvl)
}

// NewLogger creates and registers a logrus logger. The name is used as the
// default label when an entry carries none.
func NewLogger(name string) *logrus.Logger {
	l := logrus.New()
	consoleLogWriteMu.RLock()
	l.SetOutput(consoleLogWriter)
	consoleLogWriteMu.RUnlock()
	l.SetLevel(defaultLevel)
	if consoleLogFormat == "json" {
		l.SetFormatter(&JSONLogFormatter{LoggerName: name})
	} else {
		l.SetFormatter(&ConsoleFormatter{LoggerName: name})
	}
	RegisterLogger(name, l)
	return l
}

// ConsoleFormatter renders entries as
//
//	[2006-01-02 15:04:05] info [<request id>] <label> : <message> <details>
type ConsoleFormatter struct {
	LoggerName      string
	TimestampFormat string
}

var levelColors = map[logrus.Level]*color.Color{
	logrus.PanicLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.InfoLevel:  color.New(color.FgCyan),
	logrus.DebugLevel: color.New(color.FgGreen),
	logrus.TraceLevel: color.New(color.FgMagenta),
}

var (
	timestampColor = color.New(color.FgYellow)
	messageColor   = color.New(color.FgGreen)
)

func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	ts := timestampColor.Sprintf("[%s]", entry.Time.Format(tsFormat))

	lvl := entry.Level.String()
	if c, ok := levelColors[entry.Level]; ok {
		lvl = c.Sprint(lvl)
	}

	label := f.LoggerName
	if v, ok := entry.Data[FieldLabel]; ok {
		label = fmt.Sprint(v)
	}

	var b strings.Builder
	b.WriteString(entry.Message)
	if v, ok := entry.Data[FieldDetails]; ok {
		b.WriteString(" ")
		b.WriteString(FormatObject(v))
	}
	for _, k := range extraKeys(entry.Data) {
		fmt.Fprintf(&b, " %s=%s", k, FormatObject(entry.Data[k]))
	}

	line := fmt.Sprintf("%s %s [%s] %s : %s\n", ts, lvl, entryRequestID(entry), label, messageColor.Sprint(b.String()))
	return []byte(line), nil
}

// JSONLogFormatter renders one JSON object per entry.
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}

	type jsonLogRecord struct {
		Time      string                 `json:"time"`
		Level     string                 `json:"level"`
		Label     string                 `json:"label"`
		RequestID string                 `json:"request_id,omitempty"`
		Message   string                 `json:"message"`
		Details   interface{}            `json:"details,omitempty"`
		Fields    map[string]interface{} `json:"fields,omitempty"`
	}

	rec := jsonLogRecord{
		Time:      entry.Time.Format(tsFormat),
		Level:     entry.Level.String(),
		Label:     f.LoggerName,
		RequestID: entryRequestID(entry),
		Message:   entry.Message,
		Details:   entry.Data[FieldDetails],
	}
	if v, ok := entry.Data[FieldLabel]; ok {
		rec.Label = fmt.Sprint(v)
	}
	if keys := extraKeys(entry.Data); len(keys) > 0 {
		rec.Fields = make(map[string]interface{}, len(keys))
		for _, k := range keys {
			v := entry.Data[k]
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// FormatObject renders structured values as JSON and everything else with
// fmt, so that entities and maps read naturally in a text log line.
func FormatObject(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case error:
		return t.Error()
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

func entryRequestID(entry *logrus.Entry) string {
	if v, ok := entry.Data[FieldRequestID]; ok {
		return fmt.Sprint(v)
	}
	if entry.Context != nil {
		return RequestID(entry.Context)
	}
	return ""
}

func extraKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		switch k {
		case FieldLabel, FieldRequestID, FieldDetails:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
