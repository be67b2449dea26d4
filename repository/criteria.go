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
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/crud/types"
)

// entityMeta indexes the Bun table of an entity by column and Go field name.
type entityMeta struct {
	table      *schema.Table
	typ        reflect.Type
	fields     map[string]*schema.Field
	pk         *schema.Field
	softDelete *schema.Field
	// extensions maps extension column names to struct field indexes.
	extensions map[string][]int

	// audit columns, nil when the entity has none
	creationDate *schema.Field
	updateDate   *schema.Field
}

func newEntityMeta(table *schema.Table, typ reflect.Type) (*entityMeta, error) {
	if len(table.PKs) == 0 {
		return nil, errors.Newf("repository: %s has no primary key", typ.Name())
	}
	m := &entityMeta{
		table:      table,
		typ:        typ,
		fields:     make(map[string]*schema.Field, 2*len(table.Fields)),
		pk:         table.PKs[0],
		softDelete: table.SoftDeleteField,
		extensions: map[string][]int{},
	}
	for _, f := range table.Fields {
		m.fields[f.Name] = f
		if _, taken := m.fields[f.GoName]; !taken {
			m.fields[f.GoName] = f
		}
		switch f.GoName {
		case "CreationDate":
			m.creationDate = f
		case "UpdateDate":
			m.updateDate = f
		}
	}
	collectExtensions(typ, nil, m.extensions)
	return m, nil
}

func collectExtensions(typ reflect.Type, index []int, out map[string][]int) {
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		idx := append(append([]int{}, index...), i)
		if col, ok := sf.Tag.Lookup("ext"); ok && col != "" {
			out[col] = idx
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			collectExtensions(sf.Type, idx, out)
		}
	}
}

// field resolves a column name or a Go field name.
func (m *entityMeta) field(key string) (*schema.Field, error) {
	if f, ok := m.fields[key]; ok {
		return f, nil
	}
	return nil, errors.Mark(errors.Newf("%s has no column %q", m.typ.Name(), key), ErrUnknownColumn)
}

func (m *entityMeta) fieldType(f *schema.Field) reflect.Type {
	return m.typ.FieldByIndex(f.Index).Type
}

func fieldOf(strct reflect.Value, f *schema.Field) reflect.Value {
	return strct.FieldByIndex(f.Index)
}

// applyFindOptions narrows q by opts. Criteria keys are resolved against m.
func applyFindOptions(q *bun.SelectQuery, m *entityMeta, opts *types.FindOptions) (*bun.SelectQuery, error) {
	if opts == nil {
		return q, nil
	}
	if opts.WithDeleted {
		q = q.WhereAllWithDeleted()
	}
	for _, key := range opts.Where.Keys() {
		f, err := m.field(key)
		if err != nil {
			return nil, err
		}
		q = whereEquals(q, f.Name, opts.Where[key])
	}
	if opts.Filter != nil && strings.TrimSpace(opts.Filter.Schema) != "" {
		q = q.Where(opts.Filter.Schema, opts.Filter.Args...)
	}
	for _, rel := range opts.Relations {
		q = q.Relation(rel)
	}
	if len(opts.Orders) > 0 {
		q = q.Order(opts.Orders...)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q, nil
}

func whereEquals(q *bun.SelectQuery, column string, value interface{}) *bun.SelectQuery {
	if isNil(value) {
		return q.Where("?TableAlias.? IS NULL", bun.Ident(column))
	}
	if isList(value) {
		if reflect.ValueOf(value).Len() == 0 {
			return q.Where("1 = 0")
		}
		return q.Where("?TableAlias.? IN (?)", bun.Ident(column), bun.In(value))
	}
	return q.Where("?TableAlias.? = ?", bun.Ident(column), value)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// isList reports whether v is a slice or array other than []byte.
func isList(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}
