// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the file, SERIAMP_* environment
variables and flags, as YAML.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if f := cfg.File(); f != "" {
			fmt.Fprintf(out, "# %s\n", f)
		} else {
			fmt.Fprintln(out, "# no configuration file, defaults")
		}
		b, err := cfg.Dump()
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
