// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/kitchenspark/kitchenspark/internal/config"
	"github.com/kitchenspark/kitchenspark/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the KitchenSpark CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kitchenspark",
		Short: "KitchenSpark - account and authentication service",
		Long: `KitchenSpark manages recipe-platform accounts: registration, login,
profile updates, password changes and an append-only activity log,
served over a JSON REST API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAccountCmd())

	return cmd
}

// loadConfig reads configuration for cmd from the config file, the
// environment and any flags set on the command line. Without --config,
// $XDG_CONFIG_HOME/kitchenspark/config.yaml is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, ok, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "locate config file").Wrap(err)
		}
		if ok {
			path = found
		}
	}
	return config.Load(path, cmd.Flags()) //nolint:wrapcheck // already coded CONFIG_LOAD_FAILED
}
