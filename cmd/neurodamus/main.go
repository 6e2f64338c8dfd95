// neurodamus is the command line front end of the simulation setup
// toolkit: it validates and converts circuit configurations, resolves
// them into simulation plans and serves them over HTTP.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	format  string
	verbose bool
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:          "neurodamus",
	Short:        "Neural circuit simulation setup toolkit",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case debug:
			logrus.SetLevel(logrus.DebugLevel)
		case verbose:
			logrus.SetLevel(logrus.InfoLevel)
		default:
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&format, "format", "auto",
		"config format: blueconfig, sonata or auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable info logging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
