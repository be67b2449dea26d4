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
	"io"

	"github.com/spf13/cobra"

	"github.com/tomoncle/crud"
	"github.com/tomoncle/crud/modules/user"
)

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect and delete users",
	}
	cmd.AddCommand(a.userGetCmd(), a.userDeleteCmd())
	return cmd
}

// userService builds a User service over the global database with the
// configured cache and publisher. The returned func releases the publisher.
func (a *app) userService(cmd *cobra.Command) (*user.Service, func(), error) {
	ctx := cmd.Context()
	if err := a.connect(ctx); err != nil {
		return nil, nil, err
	}
	opts := []crud.Option{crud.WithRepositoryOptions(a.cfg.RepositoryOptions()...)}
	c, err := a.cfg.NewCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	if c != nil {
		opts = append(opts, crud.WithCache(c))
	}
	pub := a.cfg.NewPublisher()
	opts = append(opts, crud.WithPublisher(pub))

	release := func() {
		if closer, ok := pub.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.WithError(err).Warn("Could not close publisher")
			}
		}
	}
	return user.NewService(opts...), release, nil
}

func (a *app) userGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.userService(cmd)
			if err != nil {
				return err
			}
			defer release()
			u, err := svc.GetByID(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			return a.print(u)
		},
	}
}

func (a *app) userDeleteCmd() *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft delete a user, or remove it with --hard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.userService(cmd)
			if err != nil {
				return err
			}
			defer release()
			u, err := svc.DeleteByID(cmd.Context(), args[0], hard)
			if err != nil {
				return err
			}
			return a.print(u)
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "delete the row instead of marking it deleted")
	return cmd
}
