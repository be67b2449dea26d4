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

package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/tomoncle/crud/database"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the registered tables and apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			if err := database.RunMigrations(ctx); err != nil {
				return err
			}
			log.Info("Migrations applied")
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Execute the SQL seed files of an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			if err := database.InitData(ctx, env); err != nil {
				return err
			}
			log.Infof("Seed data loaded from %s", a.cfg.Database.DataInitConfig.Filepath)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "seed environment (defaults to the configured one)")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			status := database.GetHealthStatus(ctx)
			if err := a.print(status); err != nil {
				return err
			}
			if !status.Healthy {
				return errors.Newf("database unhealthy: %s", status.LastError)
			}
			return nil
		},
	}
}
