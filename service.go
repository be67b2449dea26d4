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

package crud

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/tomoncle/crud/cache"
	"github.com/tomoncle/crud/database"
	"github.com/tomoncle/crud/entity"
	"github.com/tomoncle/crud/events"
	"github.com/tomoncle/crud/exception"
	"github.com/tomoncle/crud/repository"
	"github.com/tomoncle/crud/types"
	"github.com/tomoncle/crud/utils"
)

// Service is the business layer over a Repository. Errors it returns are
// *exception.HTTPException for not found, conflicts and invalid input.
type Service[T any] interface {
	EntityName() string
	ServiceName() string

	// FindOne returns nil when nothing matches, unless opts.MustExist is set
	// in which case a NotFound exception is returned.
	FindOne(ctx context.Context, criteria *types.FindOptions, opts types.GetOptions) (*T, error)

	GetByID(ctx context.Context, id string, mustExist bool) (*T, error)

	Search(ctx context.Context, criteria *types.FindOptions) ([]*T, error)

	FindAndCount(ctx context.Context, criteria *types.FindOptions) ([]*T, int, error)

	Count(ctx context.Context, criteria *types.FindOptions) (int, error)

	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	Create(ctx context.Context, model *T) (*T, error)

	CreateEach(ctx context.Context, models []*T) ([]*T, error)

	// UpdateByCriteria fails with NotFound when nothing matches unless
	// opts is given with MustExist false.
	UpdateByCriteria(ctx context.Context, where types.Criteria, partial map[string]interface{}, opts ...types.GetOptions) ([]*T, error)

	UpdateByIDs(ctx context.Context, ids []string, partial map[string]interface{}) ([]*T, error)

	UpdateByID(ctx context.Context, id string, partial map[string]interface{}) (*T, error)

	DeleteByCriteria(ctx context.Context, where types.Criteria, hard bool) ([]*T, error)

	DeleteByIDs(ctx context.Context, ids []string, hard bool) ([]*T, error)

	DeleteByID(ctx context.Context, id string, hard bool) (*T, error)

	SaveOrIgnore(ctx context.Context, models []*T, fieldsToCheck ...string) (saved []*T, ignored []*T, err error)

	Populate(ctx context.Context, collection []*T, association string, criteria *types.FindOptions) error

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery

	// InsertBuilder returns a Bun insert query builder for the entity.
	InsertBuilder() *bun.InsertQuery

	// UpdateBuilder returns a Bun update query builder for the entity.
	UpdateBuilder() *bun.UpdateQuery

	// DeleteBuilder returns a Bun delete query builder for the entity.
	DeleteBuilder() *bun.DeleteQuery
}

// BaseService implements Service. Embed it to add entity specific methods.
type BaseService[T any] struct {
	opts *serviceOptions
	repo repository.Repository[T]
	mu   sync.Mutex
}

var _ Service[struct{}] = (*BaseService[struct{}])(nil)

// NewService returns a Service. Without WithRepository the repository is
// built on first use over WithDB, or over the global database connection.
// It panics when WithRepository holds a repository of another entity.
func NewService[T any](opts ...Option) *BaseService[T] {
	o := &serviceOptions{publisher: events.NopPublisher{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = utils.GetLogger("SERVICE")
	}
	s := &BaseService[T]{opts: o}
	if o.repo != nil {
		repo, ok := o.repo.(repository.Repository[T])
		if !ok {
			panic("crud: WithRepository holds a repository of another entity than " + entity.Name((*T)(nil)))
		}
		s.repo = repo
	}
	return s
}

// Repository returns the underlying repository, building it on first use.
func (s *BaseService[T]) Repository() (repository.Repository[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		return s.repo, nil
	}
	db := s.opts.db
	if db == nil {
		global := database.GetDB()
		if global == nil {
			return nil, errors.Newf("%s: database not initialized", s.ServiceName())
		}
		db = global
	}
	repo, err := repository.NewRepository[T](db, s.opts.repoOpts...)
	if err != nil {
		return nil, err
	}
	s.repo = repo
	return repo, nil
}

func (s *BaseService[T]) mustRepo() repository.Repository[T] {
	repo, err := s.Repository()
	if err != nil {
		panic(err)
	}
	return repo
}

// WithTx returns a service whose repository runs inside tx.
func (s *BaseService[T]) WithTx(tx bun.Tx) (*BaseService[T], error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return &BaseService[T]{opts: s.opts, repo: repo.WithTx(tx)}, nil
}

func (s *BaseService[T]) EntityName() string {
	return entity.Name((*T)(nil))
}

func (s *BaseService[T]) ServiceName() string {
	if s.opts.name != "" {
		return s.opts.name
	}
	return s.EntityName() + "Service"
}

func (s *BaseService[T]) entry(ctx context.Context) *logrus.Entry {
	return utils.Entry(ctx, s.opts.logger, s.ServiceName())
}

func (s *BaseService[T]) FindOne(ctx context.Context, criteria *types.FindOptions, opts types.GetOptions) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	found, err := repo.FindOne(ctx, criteria)
	if err != nil {
		return nil, s.Translate(err)
	}
	if found == nil && opts.MustExist {
		s.entry(ctx).Errorf("Could not find %s", s.EntityName())
		return nil, exception.NotFound(s.EntityName() + " not found")
	}
	return found, nil
}

func (s *BaseService[T]) GetByID(ctx context.Context, id string, mustExist bool) (*T, error) {
	key := cache.Key(s.EntityName(), id)
	if c := s.opts.cache; c != nil {
		cached := new(T)
		hit, err := c.Get(ctx, key, cached)
		if err != nil {
			s.entry(ctx).WithError(err).Warn("Cache lookup failed")
		} else if hit {
			return cached, nil
		}
	}

	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	found, err := s.FindOne(ctx, &types.FindOptions{Where: types.Criteria{repo.Table().PKs[0].Name: id}}, types.GetOptions{MustExist: mustExist})
	if err != nil || found == nil {
		return found, err
	}
	if c := s.opts.cache; c != nil {
		if err := c.Set(ctx, key, found); err != nil {
			s.entry(ctx).WithError(err).Warn("Cache store failed")
		}
	}
	return found, nil
}

func (s *BaseService[T]) Search(ctx context.Context, criteria *types.FindOptions) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	found, err := repo.Search(ctx, criteria)
	return found, s.Translate(err)
}

func (s *BaseService[T]) FindAndCount(ctx context.Context, criteria *types.FindOptions) ([]*T, int, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, 0, err
	}
	found, total, err := repo.FindAndCount(ctx, criteria)
	return found, total, s.Translate(err)
}

func (s *BaseService[T]) Count(ctx context.Context, criteria *types.FindOptions) (int, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	n, err := repo.Count(ctx, criteria)
	return n, s.Translate(err)
}

func (s *BaseService[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	p, err := repo.Page(ctx, page)
	return p, s.Translate(err)
}

func (s *BaseService[T]) Create(ctx context.Context, model *T) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	saved, err := repo.Create(ctx, model)
	if err != nil {
		return nil, s.Translate(err)
	}
	s.entry(ctx).
		WithField(utils.FieldDetails, saved).
		Infof("%s created successfully - %s", s.EntityName(), repo.ID(saved))
	s.publish(ctx, events.Created, []*T{saved})
	return saved, nil
}

func (s *BaseService[T]) CreateEach(ctx context.Context, models []*T) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	saved, err := repo.CreateEach(ctx, models)
	if err != nil {
		return nil, s.Translate(err)
	}
	s.entry(ctx).
		WithField(utils.FieldDetails, saved).
		Infof("%s created successfully - %d records", s.EntityName(), len(saved))
	s.publish(ctx, events.Created, saved)
	return saved, nil
}

func (s *BaseService[T]) UpdateByCriteria(ctx context.Context, where types.Criteria, partial map[string]interface{}, opts ...types.GetOptions) ([]*T, error) {
	get := types.GetOptions{MustExist: true}
	if len(opts) > 0 {
		get = opts[0]
	}
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	updated, err := repo.UpdateByCriteria(ctx, where, partial, get)
	return s.afterWrite(ctx, events.Updated, updated, err)
}

func (s *BaseService[T]) UpdateByIDs(ctx context.Context, ids []string, partial map[string]interface{}) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	updated, err := repo.UpdateByIDs(ctx, ids, partial)
	return s.afterWrite(ctx, events.Updated, updated, err)
}

func (s *BaseService[T]) UpdateByID(ctx context.Context, id string, partial map[string]interface{}) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	updated, err := repo.UpdateByID(ctx, id, partial)
	if _, err := s.afterWrite(ctx, events.Updated, []*T{updated}, err); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *BaseService[T]) DeleteByCriteria(ctx context.Context, where types.Criteria, hard bool) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	deleted, err := repo.DeleteByCriteria(ctx, where, hard)
	return s.afterWrite(ctx, events.Deleted, deleted, err)
}

func (s *BaseService[T]) DeleteByIDs(ctx context.Context, ids []string, hard bool) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	deleted, err := repo.DeleteByIDs(ctx, ids, hard)
	return s.afterWrite(ctx, events.Deleted, deleted, err)
}

func (s *BaseService[T]) DeleteByID(ctx context.Context, id string, hard bool) (*T, error) {
	deleted, err := s.DeleteByIDs(ctx, []string{id}, hard)
	if err != nil {
		return nil, err
	}
	return deleted[0], nil
}

func (s *BaseService[T]) SaveOrIgnore(ctx context.Context, models []*T, fieldsToCheck ...string) ([]*T, []*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, nil, err
	}
	saved, ignored, err := repo.SaveOrIgnore(ctx, models, fieldsToCheck...)
	if err != nil {
		return nil, nil, s.Translate(err)
	}
	s.publish(ctx, events.Created, saved)
	return saved, ignored, nil
}

func (s *BaseService[T]) Populate(ctx context.Context, collection []*T, association string, criteria *types.FindOptions) error {
	repo, err := s.Repository()
	if err != nil {
		return err
	}
	return s.Translate(repo.Populate(ctx, collection, association, criteria))
}

func (s *BaseService[T]) SelectBuilder() *bun.SelectQuery {
	return s.mustRepo().NewSelect()
}

func (s *BaseService[T]) InsertBuilder() *bun.InsertQuery {
	return s.mustRepo().NewInsert()
}

func (s *BaseService[T]) UpdateBuilder() *bun.UpdateQuery {
	return s.mustRepo().NewUpdate()
}

func (s *BaseService[T]) DeleteBuilder() *bun.DeleteQuery {
	return s.mustRepo().NewDelete()
}

// afterWrite translates err, or drops the cached copies of changed and
// publishes one event per entity.
func (s *BaseService[T]) afterWrite(ctx context.Context, action events.Action, changed []*T, err error) ([]*T, error) {
	if err != nil {
		return nil, s.Translate(err)
	}
	if c := s.opts.cache; c != nil && len(changed) > 0 {
		keys := make([]string, 0, len(changed))
		for _, e := range changed {
			keys = append(keys, cache.Key(s.EntityName(), s.idOf(e)))
		}
		if err := c.Delete(ctx, keys...); err != nil {
			s.entry(ctx).WithError(err).Warn("Cache invalidation failed")
		}
	}
	s.publish(ctx, action, changed)
	return changed, nil
}

// publish logs publishing failures instead of returning them.
func (s *BaseService[T]) publish(ctx context.Context, action events.Action, changed []*T) {
	if len(changed) == 0 {
		return
	}
	evts := make([]events.Event, 0, len(changed))
	for _, e := range changed {
		evts = append(evts, events.New(ctx, s.EntityName(), action, s.idOf(e), e))
	}
	if err := s.opts.publisher.Publish(ctx, evts...); err != nil {
		s.entry(ctx).WithError(err).Errorf("Could not publish %s %s events", s.EntityName(), action)
	}
}

func (s *BaseService[T]) idOf(e *T) string {
	repo, err := s.Repository()
	if err != nil {
		return ""
	}
	return repo.ID(e)
}
