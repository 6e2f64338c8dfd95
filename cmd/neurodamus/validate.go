package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neurosimlabs/neurodamus/node"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Parse a configuration and check cross references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := node.LoadConfig(args[0], format)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := cfg.ParseRun(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
