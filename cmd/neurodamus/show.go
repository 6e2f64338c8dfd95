package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/neurosimlabs/neurodamus/node"
)

var showOutput string

// show loads a configuration in either format and prints the canonical
// BlueConfig rendition, so SONATA configs can be inspected after
// translation.
var showCmd = &cobra.Command{
	Use:   "show <config>",
	Short: "Print a configuration as BlueConfig text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := node.LoadConfig(args[0], format)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if showOutput != "" {
			f, err := os.Create(showOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return cfg.Write(out)
	},
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(showCmd)
}
