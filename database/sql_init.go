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
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"
)

const commonEnvironment = "common"

var fileOrder = regexp.MustCompile(`^(\d+)_`)

// SQLInitManager executes seed files laid out as
//
//	common/NNN_name.sql
//	environments/<env>/NNN_name.sql
//
// Common files run first, each group ordered by its numeric prefix. File
// bodies are Go templates over the process environment plus ENVIRONMENT and
// TIMESTAMP.
type SQLInitManager struct {
	db          bun.IDB
	environment string
	fsys        fs.FS
	logger      Logger
}

// SQLFileInfo describes a SQL file to be executed during initialization.
type SQLFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

// ExecutionResult is the outcome of executing a single SQL file.
type ExecutionResult struct {
	File         string
	Duration     time.Duration
	RowsAffected int64
	Err          error
}

// NewSQLInitManager reads seed files from DefaultSQLRootPath until SetFS
// or SetSQLRootPath is called.
func NewSQLInitManager(db bun.IDB, environment string) *SQLInitManager {
	return &SQLInitManager{
		db:          db,
		environment: environment,
		fsys:        os.DirFS(DefaultSQLRootPath),
		logger:      GetLogger(),
	}
}

func (s *SQLInitManager) SetSQLRootPath(root string) {
	s.fsys = os.DirFS(root)
}

func (s *SQLInitManager) SetFS(fsys fs.FS) {
	s.fsys = fsys
}

// ExecuteInitialization runs every discovered file, each in its own
// transaction, and stops at the first failure.
func (s *SQLInitManager) ExecuteInitialization(ctx context.Context) ([]ExecutionResult, error) {
	s.logger.Info("Starting SQL initialization", "environment", s.environment)

	files, err := s.GetSQLFiles()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get SQL files")
	}
	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute", "environment", s.environment)
		return nil, nil
	}

	results := make([]ExecutionResult, 0, len(files))
	for _, file := range files {
		result := s.executeFile(ctx, file)
		results = append(results, result)
		if result.Err != nil {
			s.logger.Error("SQL file execution failed", "file", result.File, "error", result.Err)
			return results, errors.Wrapf(result.Err, "SQL file execution failed %s", result.File)
		}
		s.logger.Info("SQL file executed successfully",
			"file", result.File,
			"duration", result.Duration.String(),
			"rows_affected", result.RowsAffected,
		)
	}

	s.logger.Info("SQL initialization completed", "total_files", len(results), "environment", s.environment)
	return results, nil
}

// GetSQLFiles returns the common files followed by the environment's files.
func (s *SQLInitManager) GetSQLFiles() ([]SQLFileInfo, error) {
	common, err := s.filesIn(commonEnvironment, commonEnvironment)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get common SQL files")
	}
	env, err := s.filesIn(path.Join("environments", s.environment), s.environment)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get environment SQL files")
	}
	return append(common, env...), nil
}

func (s *SQLInitManager) filesIn(dir, environment string) ([]SQLFileInfo, error) {
	if _, err := fs.Stat(s.fsys, dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var files []SQLFileInfo
	err := fs.WalkDir(s.fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		files = append(files, SQLFileInfo{
			Path:        p,
			Name:        d.Name(),
			Order:       parseFileOrder(d.Name()),
			Environment: environment,
		})
		return nil
	})
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, err
}

// parseFileOrder returns the numeric prefix of "NNN_name.sql", 999 without one.
func parseFileOrder(filename string) int {
	if m := fileOrder.FindStringSubmatch(filename); m != nil {
		if order, err := strconv.Atoi(m[1]); err == nil {
			return order
		}
	}
	return 999
}

func (s *SQLInitManager) executeFile(ctx context.Context, file SQLFileInfo) (result ExecutionResult) {
	start := time.Now()
	result.File = file.Path
	defer func() { result.Duration = time.Since(start) }()

	content, err := fs.ReadFile(s.fsys, file.Path)
	if err != nil {
		result.Err = errors.Wrap(err, "failed to read file")
		return result
	}
	rendered, err := s.replaceEnvVariables(file.Path, string(content))
	if err != nil {
		result.Err = err
		return result
	}
	statements := splitSQLStatements(rendered)
	if len(statements) == 0 {
		return result
	}

	result.Err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return errors.Wrapf(err, "failed to execute SQL statement: %s", stmt)
			}
			n, _ := res.RowsAffected()
			result.RowsAffected += n
		}
		return nil
	})
	return result
}

func (s *SQLInitManager) replaceEnvVariables(name, content string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	vars := make(map[string]string)
	for _, env := range os.Environ() {
		if k, v, ok := strings.Cut(env, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}
	return buf.String(), nil
}

// splitSQLStatements splits on lines ending with ";" and drops blank and
// "--" comment lines.
func splitSQLStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			flush()
		}
	}
	flush()
	return statements
}
