package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/neurosimlabs/neurodamus/stimulus"
)

var spikesOutput string

// spikes merges replay spike files and rewrites them in canonical
// out.dat order, sorted by time then gid.
var spikesCmd = &cobra.Command{
	Use:   "spikes <file>...",
	Short: "Merge and normalise replay spike files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		merged := stimulus.SpikeMap{}
		for _, path := range args {
			spikes, err := stimulus.ReadSpikeFile(path)
			if err != nil {
				return err
			}
			merged.Merge(spikes)
		}

		out := cmd.OutOrStdout()
		if spikesOutput != "" {
			f, err := os.Create(spikesOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return merged.Write(out)
	},
}

func init() {
	spikesCmd.Flags().StringVarP(&spikesOutput, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(spikesCmd)
}
