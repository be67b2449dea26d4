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

// Command crudctl runs database maintenance and user lookups against the
// configured database.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tomoncle/crud/config"
	"github.com/tomoncle/crud/database"
	"github.com/tomoncle/crud/utils"
)

var log = utils.GetLogger("CRUDCTL")

type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "crudctl",
		Short:         "Manage the CRUD database and inspect users",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if err := database.CloseDB(); err != nil {
				log.WithError(err).Warn("Could not close database")
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "configs/config.yaml", "path of the YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(a.migrateCmd(), a.seedCmd(), a.healthCmd(), a.userCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = logrus.DebugLevel.String()
	}
	cfg.ApplyLogging()
	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	return nil
}

// connect initialises the global database without the startup migrations;
// migrate runs them explicitly.
func (a *app) connect(ctx context.Context) error {
	_, err := database.InitDatabaseWithOptions(ctx, &a.cfg.Database, false)
	return err
}

func (a *app) print(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode output")
	}
	_, err = a.out.Write(append(b, '\n'))
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
