// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/kitchenspark/kitchenspark/internal/auth"
	"github.com/kitchenspark/kitchenspark/internal/auth/postgres"
	"github.com/kitchenspark/kitchenspark/internal/store"
)

// NewAccountCmd creates the account subcommand. Deactivation has no API
// endpoint; operators manage it here.
func NewAccountCmd() *cobra.Command {
	return newAccountCmdWithDeps(nil)
}

func newAccountCmdWithDeps(deps *CommonDeps) *cobra.Command {
	if deps == nil {
		deps = &CommonDeps{}
	}
	deps.applyDefaults()

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate EMAIL",
		Short: "Deactivate an account; it can no longer log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetActive(cmd, deps, args[0], false)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "activate EMAIL",
		Short: "Reactivate a deactivated account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetActive(cmd, deps, args[0], true)
		},
	})
	return cmd
}

func runSetActive(cmd *cobra.Command, deps *CommonDeps, email string, active bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url, err := getDatabaseURL(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := deps.DatabaseFactory(ctx, store.PoolConfig{
		URL:             url,
		MaxConns:        cfg.Database.MaxConns,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	repo := postgres.NewAccountRepository(db)
	account, err := repo.GetByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return oops.With("operation", "find account").Wrap(err)
	}
	if err := repo.SetActive(ctx, account.ID, active); err != nil {
		return oops.With("operation", "set account active").Wrap(err)
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	cmd.Printf("Account %s (%s) %s\n", account.Email, account.ID, state)
	return nil
}
