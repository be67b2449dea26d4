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
	"database/sql"
	"io/fs"
	"os"
	"path"
	"reflect"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"

	"github.com/tomoncle/crud/entity"
	"github.com/tomoncle/crud/types"
	"github.com/tomoncle/crud/utils"
)

// DefaultQueriesRoot is the directory holding one query folder per entity.
const DefaultQueriesRoot = "models"

type options struct {
	fsys   fs.FS
	dir    string
	root   string
	logger *logrus.Logger
}

type Option func(*options)

// WithQueryFS loads queries from dir inside fsys instead of the queries root.
func WithQueryFS(fsys fs.FS, dir string) Option {
	return func(o *options) {
		o.fsys = fsys
		o.dir = dir
	}
}

// WithQueriesRoot changes the directory searched for <kebab-entity>/sql.
func WithQueriesRoot(root string) Option {
	return func(o *options) { o.root = root }
}

func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

type baseRepositoryImpl[T any] struct {
	db      bun.IDB
	name    string
	meta    *entityMeta
	queries *querySet
	log     *logrus.Logger
}

// NewRepository returns a generic repository backed by the provided Bun DB.
// Queries are loaded from <root>/<kebab-entity-name>/sql once, here.
func NewRepository[T any](db bun.IDB, opts ...Option) (Repository[T], error) {
	o := &options{root: DefaultQueriesRoot}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = utils.GetLogger("REPOSITORY")
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, errors.Newf("repository: %s is not a struct", typ)
	}
	name := entity.Name(typ)
	meta, err := newEntityMeta(db.Dialect().Tables().Get(typ), typ)
	if err != nil {
		return nil, err
	}

	r := &baseRepositoryImpl[T]{db: db, name: name, meta: meta, log: o.logger}
	if o.fsys == nil {
		o.fsys = os.DirFS(o.root)
		o.dir = path.Join(utils.Kebab(name), "sql")
	}
	if r.queries, err = loadQueries(o.fsys, o.dir, r.entry(context.Background())); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRepository is NewRepository for package level wiring; it panics on
// error.
func MustNewRepository[T any](db bun.IDB, opts ...Option) Repository[T] {
	r, err := NewRepository[T](db, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *baseRepositoryImpl[T]) entry(ctx context.Context) *logrus.Entry {
	return utils.Entry(ctx, r.log, r.name+"-Repository")
}

func (r *baseRepositoryImpl[T]) EntityName() string { return r.name }

func (r *baseRepositoryImpl[T]) Table() *schema.Table { return r.meta.table }

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

func (r *baseRepositoryImpl[T]) WithTx(tx bun.Tx) Repository[T] {
	cp := *r
	cp.db = tx
	return &cp
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, opts *types.FindOptions) (*T, error) {
	e := new(T)
	q, err := applyFindOptions(r.db.NewSelect().Model(e), r.meta, opts)
	if err != nil {
		return nil, err
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "find %s", r.name)
	}
	return e, nil
}

func (r *baseRepositoryImpl[T]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.FindOne(ctx, &types.FindOptions{Where: types.Criteria{r.meta.pk.Name: id}})
}

func (r *baseRepositoryImpl[T]) Search(ctx context.Context, opts *types.FindOptions) ([]*T, error) {
	entities := make([]*T, 0)
	q, err := applyFindOptions(r.db.NewSelect().Model(&entities), r.meta, opts)
	if err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrapf(err, "search %s", r.name)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) FindAndCount(ctx context.Context, opts *types.FindOptions) ([]*T, int, error) {
	entities := make([]*T, 0)
	q, err := applyFindOptions(r.db.NewSelect().Model(&entities), r.meta, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "find and count %s", r.name)
	}
	return entities, total, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, opts *types.FindOptions) (int, error) {
	q, err := applyFindOptions(r.db.NewSelect().Model(new(T)), r.meta, opts)
	if err != nil {
		return 0, err
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", r.name)
	}
	return n, nil
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = &types.PageRequest{}
	}
	entities := make([]*T, 0)
	where := *pageRequest.GetOptions()
	where.Limit, where.Offset = 0, 0
	query, err := applyFindOptions(r.db.NewSelect().Model(&entities), r.meta, &where)
	if err != nil {
		return nil, err
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "page %s", r.name)
	}
	if total == 0 {
		return pagination, nil
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "page %s", r.name)
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, e *T) (*T, error) {
	if e == nil {
		return nil, errors.Newf("create %s: nil entity", r.name)
	}
	if err := r.stamp(e, entity.Now()); err != nil {
		return nil, err
	}
	if _, err := r.db.NewInsert().Model(e).Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "create %s", r.name)
	}
	return e, nil
}

func (r *baseRepositoryImpl[T]) CreateEach(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return []*T{}, nil
	}
	now := entity.Now()
	for _, e := range entities {
		if err := r.stamp(e, now); err != nil {
			return nil, err
		}
	}
	if _, err := r.db.NewInsert().Model(&entities).Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "create %s", r.name)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) UpdateByID(ctx context.Context, id string, partial map[string]interface{}) (*T, error) {
	e, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, notFound("%s with ID %s not found", r.name, id)
	}
	updated, err := r.update(ctx, []*T{e}, partial)
	if err != nil {
		return nil, err
	}
	return updated[0], nil
}

func (r *baseRepositoryImpl[T]) UpdateByIDs(ctx context.Context, ids []string, partial map[string]interface{}) ([]*T, error) {
	found, err := r.Search(ctx, &types.FindOptions{Where: types.Criteria{r.meta.pk.Name: ids}})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, notFound("%s not found with ids: %v", r.name, ids)
	}
	return r.update(ctx, found, partial)
}

func (r *baseRepositoryImpl[T]) UpdateByCriteria(ctx context.Context, where types.Criteria, partial map[string]interface{}, opts types.GetOptions) ([]*T, error) {
	found, err := r.Search(ctx, &types.FindOptions{Where: where})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		if opts.MustExist {
			return nil, notFound("%s not found with criteria: %s", r.name, where)
		}
		return []*T{}, nil
	}
	return r.update(ctx, found, partial)
}

// update writes the sanitized partial to the rows of found and returns them
// with the new values applied.
func (r *baseRepositoryImpl[T]) update(ctx context.Context, found []*T, partial map[string]interface{}) ([]*T, error) {
	values, err := r.typedValues(r.SanitizeInput(partial))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return found, nil
	}
	if f := r.meta.updateDate; f != nil {
		if _, set := values[f.Name]; !set {
			values[f.Name] = reflect.ValueOf(entity.Now())
		}
	}

	q := r.db.NewUpdate().Model(new(T))
	columns := lo.Keys(values)
	sort.Strings(columns)
	for _, col := range columns {
		q = q.Set("? = ?", bun.Ident(col), values[col].Interface())
	}
	if _, err := q.Where("? IN (?)", bun.Ident(r.meta.pk.Name), bun.In(r.ids(found))).Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "update %s", r.name)
	}

	for _, e := range found {
		strct := reflect.ValueOf(e).Elem()
		for col, v := range values {
			fv := fieldOf(strct, r.meta.fields[col])
			if v.Type().AssignableTo(fv.Type()) {
				fv.Set(v)
			} else if err := assign(fv, v.Interface()); err != nil {
				return nil, err
			}
		}
	}
	return found, nil
}

// typedValues converts every sanitized value to the Go type of its column.
func (r *baseRepositoryImpl[T]) typedValues(input map[string]interface{}) (map[string]reflect.Value, error) {
	out := make(map[string]reflect.Value, len(input))
	for col, v := range input {
		f := r.meta.fields[col]
		dst := reflect.New(r.meta.fieldType(f)).Elem()
		if err := assign(dst, v); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", r.name, col)
		}
		out[col] = dst
	}
	return out, nil
}

func (r *baseRepositoryImpl[T]) SanitizeInput(input map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(input))
	for key, v := range input {
		f, ok := r.meta.fields[key]
		if !ok || f == r.meta.pk || f == r.meta.softDelete {
			continue
		}
		clean[f.Name] = v
	}
	return clean
}

func (r *baseRepositoryImpl[T]) DeleteByCriteria(ctx context.Context, where types.Criteria, hard bool) ([]*T, error) {
	found, err := r.Search(ctx, &types.FindOptions{Where: where, WithDeleted: hard})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, notFound("%s not found with criteria: %s", r.name, where)
	}
	ids := r.ids(found)

	if hard || r.meta.softDelete == nil {
		_, err := r.db.NewDelete().
			Model(new(T)).
			Where("? IN (?)", bun.Ident(r.meta.pk.Name), bun.In(ids)).
			ForceDelete().
			Exec(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "delete %s", r.name)
		}
		return found, nil
	}

	now := entity.Now()
	marked := []*schema.Field{r.meta.softDelete}
	if r.meta.updateDate != nil {
		marked = append(marked, r.meta.updateDate)
	}
	q := r.db.NewUpdate().Model(new(T))
	for _, f := range marked {
		q = q.Set("? = ?", bun.Ident(f.Name), now)
	}
	_, err = q.Where("? IN (?)", bun.Ident(r.meta.pk.Name), bun.In(ids)).Exec(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "soft delete %s", r.name)
	}
	for _, e := range found {
		strct := reflect.ValueOf(e).Elem()
		for _, f := range marked {
			if err := assign(fieldOf(strct, f), now); err != nil {
				return nil, err
			}
		}
	}
	return found, nil
}

func (r *baseRepositoryImpl[T]) DeleteByIDs(ctx context.Context, ids []string, hard bool) ([]*T, error) {
	return r.DeleteByCriteria(ctx, types.Criteria{r.meta.pk.Name: ids}, hard)
}

func (r *baseRepositoryImpl[T]) DeleteByID(ctx context.Context, id string, hard bool) (*T, error) {
	deleted, err := r.DeleteByIDs(ctx, []string{id}, hard)
	if err != nil {
		return nil, err
	}
	return deleted[0], nil
}

func (r *baseRepositoryImpl[T]) SaveOrIgnore(ctx context.Context, entities []*T, fieldsToCheck ...string) ([]*T, []*T, error) {
	checks := make([]*schema.Field, 0, len(fieldsToCheck))
	for _, name := range fieldsToCheck {
		f, err := r.meta.field(name)
		if err != nil {
			return nil, nil, err
		}
		checks = append(checks, f)
	}
	if len(checks) == 0 {
		checks = append(checks, r.meta.pk)
	}

	results := make([]*T, len(entities))
	existed := make([]bool, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entities {
		g.Go(func() error {
			strct := reflect.ValueOf(e).Elem()
			criteria := types.Criteria{}
			for _, f := range checks {
				criteria[f.Name] = fieldOf(strct, f).Interface()
			}
			existing, err := r.FindOne(gctx, &types.FindOptions{Where: criteria})
			if err != nil {
				return err
			}
			if existing != nil {
				r.entry(gctx).
					WithField(utils.FieldDetails, criteria).
					Errorf("Entity already exists with this criteria %s", criteria)
				results[i], existed[i] = existing, true
				return nil
			}
			created, err := r.Create(gctx, e)
			if err != nil {
				return err
			}
			results[i] = created
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	saved := lo.Filter(results, func(_ *T, i int) bool { return !existed[i] })
	ignored := lo.Filter(results, func(_ *T, i int) bool { return existed[i] })
	return saved, ignored, nil
}

// stamp fills an empty string primary key with a new id and sets the audit
// timestamps of an entity about to be inserted.
func (r *baseRepositoryImpl[T]) stamp(e *T, now time.Time) error {
	strct := reflect.ValueOf(e).Elem()
	if pk := fieldOf(strct, r.meta.pk); pk.Kind() == reflect.String && pk.String() == "" {
		pk.SetString(entity.NewID())
	}
	if f := r.meta.creationDate; f != nil {
		if fv := fieldOf(strct, f); fv.IsZero() {
			if err := assign(fv, now); err != nil {
				return errors.Wrapf(err, "%s.%s", r.name, f.Name)
			}
		}
	}
	if f := r.meta.updateDate; f != nil {
		if err := assign(fieldOf(strct, f), now); err != nil {
			return errors.Wrapf(err, "%s.%s", r.name, f.Name)
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) ID(e *T) string {
	if e == nil {
		return ""
	}
	return keyString(fieldOf(reflect.ValueOf(e).Elem(), r.meta.pk))
}

func (r *baseRepositoryImpl[T]) ids(entities []*T) []string {
	return lo.Map(entities, func(e *T, _ int) string { return r.ID(e) })
}

func (r *baseRepositoryImpl[T]) Exec(ctx context.Context, name string, args ...interface{}) ([]map[string]interface{}, error) {
	q, err := r.queries.get(name)
	if err != nil {
		return nil, err
	}
	if q.kind != sqlQuery {
		return nil, errors.Newf("query %q is an XML statement, use Statement", name)
	}
	r.entry(ctx).Debug(q.text)
	return r.raw(ctx, q.text, args...)
}

func (r *baseRepositoryImpl[T]) Statement(ctx context.Context, name string, params map[string]interface{}) ([]*T, error) {
	q, err := r.queries.get(name)
	if err != nil {
		return nil, err
	}
	if q.kind != xmlStatement {
		return nil, errors.Newf("query %q is a SQL file, use Exec", name)
	}
	text, args, err := q.render(params)
	if err != nil {
		return nil, err
	}
	r.entry(ctx).WithField(utils.FieldDetails, args).Debug(text)
	rows, err := r.raw(ctx, text, args...)
	if err != nil {
		return nil, err
	}
	return r.MapRows(rows)
}

func (r *baseRepositoryImpl[T]) raw(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0)
	if err := r.db.NewRaw(query, args...).Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(err, "%s query", r.name)
	}
	return rows, nil
}

func (r *baseRepositoryImpl[T]) Queries() []string { return r.queries.names() }

func (r *baseRepositoryImpl[T]) MapRows(rows []map[string]interface{}) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		v, err := r.meta.mapRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "map %s", r.name)
		}
		out = append(out, v.Interface().(*T))
	}
	return out, nil
}
