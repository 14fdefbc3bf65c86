// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Taskweave CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskweave",
		Short: "Taskweave - a multi-user task tracker",
		Long: `Taskweave is a multi-user task tracker. The server handles
registration, login, and cookie-backed sessions in front of the
task pages.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
