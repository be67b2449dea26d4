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
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/tomoncle/crud/cache"
	"github.com/tomoncle/crud/events"
	"github.com/tomoncle/crud/repository"
)

type serviceOptions struct {
	repo      interface{}
	db        bun.IDB
	repoOpts  []repository.Option
	name      string
	cache     cache.Cache
	publisher events.Publisher
	logger    *logrus.Logger
}

type Option func(*serviceOptions)

// WithRepository uses repo instead of building one.
func WithRepository[T any](repo repository.Repository[T]) Option {
	return func(o *serviceOptions) { o.repo = repo }
}

// WithDB builds the repository over db with the given repository options.
func WithDB(db bun.IDB, opts ...repository.Option) Option {
	return func(o *serviceOptions) {
		o.db = db
		o.repoOpts = append(o.repoOpts, opts...)
	}
}

// WithRepositoryOptions adds options used when the repository is built.
func WithRepositoryOptions(opts ...repository.Option) Option {
	return func(o *serviceOptions) { o.repoOpts = append(o.repoOpts, opts...) }
}

// WithName overrides the service name used as log label.
func WithName(name string) Option {
	return func(o *serviceOptions) { o.name = name }
}

// WithCache enables read-through caching of GetByID.
func WithCache(c cache.Cache) Option {
	return func(o *serviceOptions) { o.cache = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(o *serviceOptions) {
		if p != nil {
			o.publisher = p
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}
