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
	"bytes"
	"encoding/xml"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/tomoncle/crud/utils"
)

type queryKind int

const (
	sqlQuery queryKind = iota
	xmlStatement
)

type namedQuery struct {
	kind queryKind
	// text is the raw SQL of a .sql query.
	text string
	// tmpl holds every statement of the XML file the statement came from.
	tmpl *template.Template
	id   string
	file string
}

type querySet struct {
	queries map[string]*namedQuery
}

// xmlMapper is the document shape of an XML query file:
//
//	<mapper namespace="user">
//	  <sql id="columns">usr_id, usr_email</sql>
//	  <select id="search-by-name">
//	    SELECT {{template "columns" .}} FROM t_user
//	    {{if .name}}WHERE usr_first_name LIKE #{name}{{end}}
//	  </select>
//	</mapper>
type xmlMapper struct {
	XMLName    xml.Name  `xml:"mapper"`
	Namespace  string    `xml:"namespace,attr"`
	Statements []xmlStmt `xml:",any"`
}

type xmlStmt struct {
	XMLName xml.Name
	ID      string `xml:"id,attr"`
	Body    string `xml:",chardata"`
}

var statementKinds = map[string]bool{"select": true, "insert": true, "update": true, "delete": true}

// loadQueries walks dir in fsys. A missing directory leaves the set empty.
func loadQueries(fsys fs.FS, dir string, entry *logrus.Entry) (*querySet, error) {
	set := &querySet{queries: map[string]*namedQuery{}}
	if fsys == nil {
		return set, nil
	}
	var sqlFiles, xmlFiles []string
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch path.Ext(p) {
		case ".sql":
			sqlFiles = append(sqlFiles, p)
		case ".xml":
			xmlFiles = append(xmlFiles, p)
		}
		return nil
	})
	if err != nil {
		entry.Debugf("Cannot find folder %s in order to assign queries", dir)
		return set, nil
	}

	if len(sqlFiles) == 0 {
		entry.Debugf("No SQL files found in the folder %s", dir)
	}
	for _, p := range sqlFiles {
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		set.add(entry, queryName(p), &namedQuery{kind: sqlQuery, text: string(b), file: p})
	}

	if len(xmlFiles) == 0 {
		entry.Debugf("No XML files found in the folder %s", dir)
	}
	for _, p := range xmlFiles {
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		if err := set.addMapper(entry, p, b); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (s *querySet) addMapper(entry *logrus.Entry, file string, b []byte) error {
	var doc xmlMapper
	if err := xml.Unmarshal(b, &doc); err != nil {
		return errors.Wrapf(err, "parse %s", file)
	}
	tmpl := template.New(path.Base(file)).Option("missingkey=zero")
	for _, st := range doc.Statements {
		if st.ID == "" {
			return errors.Newf("%s: <%s> without id", file, st.XMLName.Local)
		}
		if _, err := tmpl.New(st.ID).Parse(st.Body); err != nil {
			return errors.Wrapf(err, "%s: statement %s", file, st.ID)
		}
	}
	for _, st := range doc.Statements {
		if !statementKinds[st.XMLName.Local] {
			continue
		}
		s.add(entry, utils.Camel(st.ID), &namedQuery{kind: xmlStatement, tmpl: tmpl, id: st.ID, file: file})
	}
	return nil
}

func (s *querySet) add(entry *logrus.Entry, name string, q *namedQuery) {
	if prev, ok := s.queries[name]; ok {
		entry.Warnf("Query %q from %s replaces the one from %s", name, q.file, prev.file)
	}
	s.queries[name] = q
}

func (s *querySet) get(name string) (*namedQuery, error) {
	q, ok := s.queries[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("Query %q not found", name), ErrQueryNotFound)
	}
	return q, nil
}

func (s *querySet) names() []string {
	names := lo.Keys(s.queries)
	sort.Strings(names)
	return names
}

// queryName turns "sql/find-by-email.sql" into "findByEmail". Everything
// after the first dot of the base name is dropped.
func queryName(p string) string {
	base := path.Base(p)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return utils.Camel(base)
}

var paramPattern = regexp.MustCompile(`([#$])\{\s*([\w.]+)\s*\}`)

// render executes the statement template with params, then binds #{name}
// as a query argument and substitutes ${name} verbatim.
func (q *namedQuery) render(params map[string]interface{}) (string, []interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	var buf bytes.Buffer
	if err := q.tmpl.ExecuteTemplate(&buf, q.id, params); err != nil {
		return "", nil, errors.Wrapf(err, "render %s", q.id)
	}

	var args []interface{}
	var missing []string
	query := paramPattern.ReplaceAllStringFunc(buf.String(), func(m string) string {
		sub := paramPattern.FindStringSubmatch(m)
		v, ok := lookupParam(params, sub[2])
		if !ok {
			missing = append(missing, sub[2])
			return m
		}
		if sub[1] == "$" {
			return fmt.Sprint(v)
		}
		if isList(v) {
			v = bun.In(v)
		}
		args = append(args, v)
		return "?"
	})
	if len(missing) > 0 {
		return "", nil, errors.Newf("statement %s: missing parameters %s", q.id, strings.Join(lo.Uniq(missing), ", "))
	}
	return strings.TrimSpace(query), args, nil
}

// lookupParam resolves dotted names through nested maps.
func lookupParam(params map[string]interface{}, name string) (interface{}, bool) {
	var cur interface{} = params
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
