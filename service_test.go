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
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tomoncle/crud/cache"
	"github.com/tomoncle/crud/entity"
	"github.com/tomoncle/crud/events"
	"github.com/tomoncle/crud/exception"
	"github.com/tomoncle/crud/repository"
	"github.com/tomoncle/crud/types"
)

type gadget struct {
	bun.BaseModel `bun:"table:t_gadget,alias:gad"`
	Base          entity.Base `bun:"embed:gad_" json:"base"`

	Name   string `bun:"gad_name,unique" json:"name"`
	Price  int    `bun:"gad_price" json:"price"`
	Secret string `bun:"gad_secret" json:"-"`
}

type part struct {
	bun.BaseModel `bun:"table:t_part,alias:prt"`
	Base          entity.Base `bun:"embed:prt_" json:"base"`
}

type memoryCache struct {
	items   map[string][]byte
	sets    int
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	b, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, msgpack.Unmarshal(b, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}) error {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = b
	c.sets++
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.items, k)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...events.Event) error {
	p.events = append(p.events, evts...)
	return p.err
}

func (p *recordingPublisher) actions() []events.Action {
	out := make([]events.Action, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.NewCreateTable().Model((*gadget)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

func newGadgetService(t *testing.T, opts ...Option) (*BaseService[gadget], *bun.DB) {
	t.Helper()
	db := newTestDB(t)
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithDB(db), WithLogger(logger)}, opts...)
	return NewService[gadget](opts...), db
}

func TestServiceNames(t *testing.T) {
	s := NewService[gadget]()
	assert.Equal(t, "gadget", s.EntityName())
	assert.Equal(t, "gadgetService", s.ServiceName())
	assert.Equal(t, "Gadgets", NewService[gadget](WithName("Gadgets")).ServiceName())
}

func TestDatabaseNotInitialized(t *testing.T) {
	s := NewService[gadget]()
	_, err := s.Search(context.Background(), nil)
	assert.ErrorContains(t, err, "gadgetService: database not initialized")
	assert.Panics(t, func() { s.SelectBuilder() })
}

func TestWithRepositoryOfAnotherEntity(t *testing.T) {
	repo, err := repository.NewRepository[part](newTestDB(t))
	require.NoError(t, err)
	assert.Panics(t, func() { NewService[gadget](WithRepository[part](repo)) })
}

func TestFindOne(t *testing.T) {
	s, _ := newGadgetService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &gadget{Name: "lamp", Price: 10})
	require.NoError(t, err)

	found, err := s.FindOne(ctx, types.Where("Name", "lamp"), types.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.Base.ID, found.Base.ID)

	none, err := s.FindOne(ctx, types.Where("Name", "desk"), types.GetOptions{})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.FindOne(ctx, types.Where("Name", "desk"), types.GetOptions{MustExist: true})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, exception.Status(err))
	assert.Equal(t, "gadget not found", exception.From(err).Data)

	got, err := s.GetByID(ctx, uuid.NewString(), false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestErrorTranslation(t *testing.T) {
	s, _ := newGadgetService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, &gadget{Name: "lamp"})
	require.NoError(t, err)
	_, err = s.Create(ctx, &gadget{Name: "lamp"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, exception.Status(err))

	_, err = s.Search(ctx, types.Where("color", "red"))
	assert.Equal(t, http.StatusBadRequest, exception.Status(err))
	assert.True(t, errors.Is(err, repository.ErrUnknownColumn))

	_, err = s.DeleteByID(ctx, uuid.NewString(), false)
	assert.Equal(t, http.StatusNotFound, exception.Status(err))
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestUpdateByCriteriaMustExist(t *testing.T) {
	s, _ := newGadgetService(t)
	ctx := context.Background()
	where := types.Criteria{"Name": "ghost"}
	partial := map[string]interface{}{"Price": 1}

	_, err := s.UpdateByCriteria(ctx, where, partial)
	assert.Equal(t, http.StatusNotFound, exception.Status(err))

	updated, err := s.UpdateByCriteria(ctx, where, partial, types.GetOptions{MustExist: false})
	require.NoError(t, err)
	assert.Empty(t, updated)
}

func TestCacheAndEvents(t *testing.T) {
	c := newMemoryCache()
	pub := &recordingPublisher{}
	s, db := newGadgetService(t, WithCache(c), WithPublisher(pub))
	ctx := context.Background()

	created, err := s.Create(ctx, &gadget{Name: "lamp", Price: 10, Secret: "s3"})
	require.NoError(t, err)
	key := cache.Key("gadget", created.Base.ID)

	first, err := s.GetByID(ctx, created.Base.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 10, first.Price)
	assert.Equal(t, 1, c.sets)
	assert.Contains(t, c.items, key)

	_, err = db.NewUpdate().Table("t_gadget").
		Set("gad_price = ?", 99).
		Where("gad_id = ?", created.Base.ID).
		Exec(ctx)
	require.NoError(t, err)
	cached, err := s.GetByID(ctx, created.Base.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 10, cached.Price)
	assert.Equal(t, "s3", cached.Secret)
	assert.Equal(t, created.Base.ID, cached.Base.ID)

	_, err = s.UpdateByID(ctx, created.Base.ID, map[string]interface{}{"Name": "lantern"})
	require.NoError(t, err)
	assert.Equal(t, []string{key}, c.deleted)
	assert.NotContains(t, c.items, key)

	fresh, err := s.GetByID(ctx, created.Base.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "lantern", fresh.Name)
	assert.Equal(t, 99, fresh.Price)

	_, err = s.DeleteByID(ctx, created.Base.ID, false)
	require.NoError(t, err)

	assert.Equal(t, []events.Action{events.Created, events.Updated, events.Deleted}, pub.actions())
	for _, e := range pub.events {
		assert.Equal(t, "gadget", e.Entity)
		assert.Equal(t, created.Base.ID, e.EntityID)
	}
}

func TestPublishFailureIsLogged(t *testing.T) {
	db := newTestDB(t)
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := NewService[gadget](WithDB(db), WithLogger(logger), WithPublisher(pub))

	created, err := s.Create(context.Background(), &gadget{Name: "lamp"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Base.ID)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Could not publish gadget created events", entry.Message)
	assert.Len(t, pub.events, 1)
}

func TestSaveOrIgnore(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newGadgetService(t, WithPublisher(pub))
	ctx := context.Background()

	_, err := s.Create(ctx, &gadget{Name: "lamp"})
	require.NoError(t, err)

	saved, ignored, err := s.SaveOrIgnore(ctx, []*gadget{{Name: "lamp"}, {Name: "desk"}}, "Name")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "desk", saved[0].Name)
	assert.Len(t, ignored, 1)
	assert.Len(t, pub.events, 2)
}

func TestWithTx(t *testing.T) {
	s, db := newGadgetService(t)
	ctx := context.Background()

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txs, err := s.WithTx(tx)
		if err != nil {
			return err
		}
		if _, err := txs.Create(ctx, &gadget{Name: "lamp"}); err != nil {
			return err
		}
		return errors.New("rollback")
	})
	require.EqualError(t, err, "rollback")

	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildersAndPage(t *testing.T) {
	s, _ := newGadgetService(t)
	ctx := context.Background()

	_, err := s.CreateEach(ctx, []*gadget{{Name: "a", Price: 1}, {Name: "b", Price: 2}, {Name: "c", Price: 3}})
	require.NoError(t, err)

	var names []string
	err = s.SelectBuilder().Model((*gadget)(nil)).Column("gad_name").Where("gad_price > ?", 1).Order("gad_name").Scan(ctx, &names)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names)

	items, total, err := s.FindAndCount(ctx, &types.FindOptions{Orders: []string{"gad_name"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Name)
}
