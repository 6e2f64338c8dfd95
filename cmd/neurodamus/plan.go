package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/neurosimlabs/neurodamus/node"
)

var (
	planRanks       int
	planOutput      string
	planWriteSpikes bool
)

var planCmd = &cobra.Command{
	Use:   "plan <config>",
	Short: "Resolve a configuration into a simulation plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := node.LoadConfig(args[0], format)
		if err != nil {
			return err
		}
		n, err := node.New(cfg, planRanks)
		if err != nil {
			return err
		}
		n.SetBaseDir(filepath.Dir(args[0]))

		plan, err := n.Setup()
		if err != nil {
			return err
		}
		if planWriteSpikes {
			path, err := n.WriteSpikes()
			if err != nil {
				return err
			}
			logrus.Infof("wrote replay spikes to %s", path)
		}

		out := cmd.OutOrStdout()
		if planOutput != "" {
			f, err := os.Create(planOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	},
}

func init() {
	planCmd.Flags().IntVar(&planRanks, "ranks", 1, "number of ranks to partition cells across")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "write plan to file instead of stdout")
	planCmd.Flags().BoolVar(&planWriteSpikes, "write-spikes", false, "also write replay spikes as out.dat under the output root")
	rootCmd.AddCommand(planCmd)
}
