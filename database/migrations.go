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
	"context"
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/uptrace/bun"
)

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version with up/down functions.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// MigrationManager coordinates schema migrations and seed data.
type MigrationManager struct {
	db          *bun.DB
	logger      Logger
	registry    ModelRegistry
	environment string
	sqlRootPath string
	seed        bool
	extra       []MigrationItem
}

// NewMigrationManager returns a manager over the default model registry and
// the "prod" seed environment.
func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{
		db:          db,
		logger:      logger,
		registry:    defaultRegistry,
		environment: DefaultEnvironment,
		sqlRootPath: DefaultSQLRootPath,
	}
}

// SetEnvironment sets the environment used when seeding from SQL files.
func (mm *MigrationManager) SetEnvironment(env string) {
	mm.environment = env
}

// SetSQLRootPath sets the directory holding common/ and environments/.
func (mm *MigrationManager) SetSQLRootPath(path string) {
	mm.sqlRootPath = path
}

// SetRegistry replaces the model registry used to create tables.
func (mm *MigrationManager) SetRegistry(r ModelRegistry) {
	mm.registry = r
}

// SeedOnMigration adds the seed step to RunMigrations.
func (mm *MigrationManager) SeedOnMigration(on bool) {
	mm.seed = on
}

// Add appends application migrations. They run after the built-in ones,
// ordered by version.
func (mm *MigrationManager) Add(items ...MigrationItem) {
	mm.extra = append(mm.extra, items...)
}

// RunMigrations creates the tracking table if needed and applies every
// migration not recorded yet, each in its own transaction.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return errNotConnected
	}
	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}

	for _, migration := range mm.migrations() {
		if err := mm.runMigration(ctx, migration); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", migration.Version)
		}
	}
	mm.logger.Info("Database migrations completed!")
	return nil
}

func (mm *MigrationManager) migrations() []MigrationItem {
	items := []MigrationItem{{
		Version:     "000",
		Name:        "create_base_tables",
		Description: "Create tables of registered models",
		Up:          mm.createBaseTables,
		Down:        mm.dropBaseTables,
	}}
	extra := append([]MigrationItem(nil), mm.extra...)
	sort.SliceStable(extra, func(i, j int) bool { return extra[i].Version < extra[j].Version })
	items = append(items, extra...)
	if mm.seed {
		items = append(items, MigrationItem{
			Version:     "999_" + mm.environment,
			Name:        "seed_initial_data",
			Description: "Seed initial data",
			Up:          mm.seedInitialData,
		})
	}
	return items
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		mm.logger.Debug("Migration already applied", "version", migration.Version)
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

func (mm *MigrationManager) createBaseTables(ctx context.Context, db bun.IDB) error {
	for _, model := range mm.registry.Instances() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "failed to create table %T", model)
		}
	}
	return nil
}

func (mm *MigrationManager) dropBaseTables(ctx context.Context, db bun.IDB) error {
	models := mm.registry.Instances()
	for i := len(models) - 1; i >= 0; i-- {
		model := models[i]
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "failed to drop table %T", model)
		}
	}
	return nil
}

func (mm *MigrationManager) seedInitialData(ctx context.Context, db bun.IDB) error {
	_, err := mm.newSQLInitManager(db).ExecuteInitialization(ctx)
	return err
}

// InitData executes the seed files of the configured environment outside of
// the migration history.
func (mm *MigrationManager) InitData(ctx context.Context) error {
	if mm.db == nil {
		return errNotConnected
	}
	_, err := mm.newSQLInitManager(mm.db).ExecuteInitialization(ctx)
	return err
}

func (mm *MigrationManager) newSQLInitManager(db bun.IDB) *SQLInitManager {
	s := NewSQLInitManager(db, mm.environment)
	s.SetFS(os.DirFS(mm.sqlRootPath))
	s.logger = mm.logger
	return s
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

// RollbackMigration runs the Down step of an applied migration and removes
// its record.
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	item, ok := lo.Find(mm.migrations(), func(m MigrationItem) bool { return m.Version == version })
	if !ok {
		return errors.Newf("unknown migration %s", version)
	}
	if item.Down == nil {
		return errors.Newf("migration %s cannot be rolled back", version)
	}
	err := mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := item.Down(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*Migration)(nil)).Where("version = ?", version).Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to roll back migration %s", version)
	}
	mm.logger.Info("Migration rolled back", "version", version, "name", item.Name)
	return nil
}
