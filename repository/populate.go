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
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/crud/types"
	"github.com/tomoncle/crud/utils"
)

// Populate fills the association field of every entity in collection with
// a single query. The field must be a bun relation ("rel:" tag):
//
//   - a slice field is one-to-many: children are matched on their
//     <Entity>ID field against the parent primary key;
//   - a pointer field is many-to-one: the parent's <Association>ID field is
//     matched against the child primary key.
//
// opts adds criteria, ordering or limits to the child query.
func (r *baseRepositoryImpl[T]) Populate(ctx context.Context, collection []*T, association string, opts *types.FindOptions) error {
	if len(collection) == 0 {
		return nil
	}
	sf, ok := r.meta.typ.FieldByName(association)
	if !ok || !strings.HasPrefix(sf.Tag.Get("bun"), "rel:") {
		return errors.Mark(errors.Newf("%s has no association %q", r.name, association), ErrAssociationNotFound)
	}

	switch {
	case sf.Type.Kind() == reflect.Slice && sf.Type.Elem().Kind() == reflect.Ptr && sf.Type.Elem().Elem().Kind() == reflect.Struct:
		r.entry(ctx).Debugf("Populate one to many association %s", association)
		return r.populateMany(ctx, collection, sf, opts)
	case sf.Type.Kind() == reflect.Ptr && sf.Type.Elem().Kind() == reflect.Struct:
		r.entry(ctx).Debugf("Populate many to one association %s", association)
		return r.populateOne(ctx, collection, sf, opts)
	}
	return errors.Mark(errors.Newf("%s.%s is neither a slice nor a pointer of structs", r.name, association), ErrAssociationNotFound)
}

func (r *baseRepositoryImpl[T]) populateMany(ctx context.Context, collection []*T, sf reflect.StructField, opts *types.FindOptions) error {
	childType := sf.Type.Elem().Elem()
	child, err := newEntityMeta(r.db.Dialect().Tables().Get(childType), childType)
	if err != nil {
		return err
	}
	fk := foreignKey(child.table, r.name)
	if fk == nil {
		return errors.Mark(errors.Newf("%s has no %sID field", childType.Name(), r.name), ErrAssociationNotFound)
	}

	parentIDs := lo.Filter(r.ids(collection), func(id string, _ int) bool { return id != "" })
	children, err := r.loadChildren(ctx, child, fk.Name, parentIDs, opts)
	if err != nil {
		return err
	}

	byParent := lo.GroupBy(children, func(c reflect.Value) string {
		return keyString(fieldOf(c.Elem(), fk))
	})
	for _, e := range collection {
		strct := reflect.ValueOf(e).Elem()
		list := reflect.MakeSlice(sf.Type, 0, 0)
		for _, c := range byParent[keyString(fieldOf(strct, r.meta.pk))] {
			list = reflect.Append(list, c)
		}
		strct.FieldByIndex(sf.Index).Set(list)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) populateOne(ctx context.Context, collection []*T, sf reflect.StructField, opts *types.FindOptions) error {
	childType := sf.Type.Elem()
	child, err := newEntityMeta(r.db.Dialect().Tables().Get(childType), childType)
	if err != nil {
		return err
	}
	keyField, ok := r.meta.typ.FieldByName(sf.Name + "ID")
	if !ok {
		return errors.Mark(errors.Newf("%s has no %sID field", r.name, sf.Name), ErrAssociationNotFound)
	}

	keys := lo.Uniq(lo.FilterMap(collection, func(e *T, _ int) (string, bool) {
		k := keyString(reflect.ValueOf(e).Elem().FieldByIndex(keyField.Index))
		return k, k != ""
	}))
	r.entry(ctx).Debugf("list_ids %v", keys)
	children, err := r.loadChildren(ctx, child, child.pk.Name, keys, opts)
	if err != nil {
		return err
	}

	byID := lo.KeyBy(children, func(c reflect.Value) string {
		return keyString(fieldOf(c.Elem(), child.pk))
	})
	for _, e := range collection {
		strct := reflect.ValueOf(e).Elem()
		if c, ok := byID[keyString(strct.FieldByIndex(keyField.Index))]; ok {
			strct.FieldByIndex(sf.Index).Set(c)
		}
	}
	return nil
}

// loadChildren selects the rows of child whose column is one of keys, with
// opts applied on top.
func (r *baseRepositoryImpl[T]) loadChildren(ctx context.Context, child *entityMeta, column string, keys []string, opts *types.FindOptions) ([]reflect.Value, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	find := types.FindOptions{}
	if opts != nil {
		find = *opts
	}
	where := types.Criteria{}
	for k, v := range find.Where {
		where[k] = v
	}
	where[column] = keys
	find.Where = where

	slice := reflect.New(reflect.SliceOf(reflect.PointerTo(child.typ)))
	q, err := applyFindOptions(r.db.NewSelect().Model(slice.Interface()), child, &find)
	if err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrapf(err, "populate %s", child.typ.Name())
	}
	out := make([]reflect.Value, slice.Elem().Len())
	for i := range out {
		out[i] = slice.Elem().Index(i)
	}
	return out, nil
}

// foreignKey finds the field of child referencing a parent named parent:
// Go field <Parent>ID, or a column ending in <parent>_id.
func foreignKey(child *schema.Table, parent string) *schema.Field {
	goName := parent + "ID"
	suffix := utils.Snake(parent) + "_id"
	for _, f := range child.Fields {
		if strings.EqualFold(f.GoName, goName) {
			return f
		}
	}
	for _, f := range child.Fields {
		if f.Name == suffix || strings.HasSuffix(f.Name, "_"+suffix) {
			return f
		}
	}
	return nil
}

// keyString renders a key value for matching; nil pointers are "".
func keyString(v reflect.Value) string {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.String {
		return v.String()
	}
	return fmt.Sprint(v.Interface())
}
