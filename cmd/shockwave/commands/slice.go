package commands

import (
	"errors"
	"fmt"

	"github.com/chazu/shockwave/pkg/pipeline"
	"github.com/chazu/shockwave/pkg/slicer"
	"github.com/spf13/cobra"
)

func newSliceCommand() *cobra.Command {
	var (
		outDir string
		drop   bool
	)

	cmd := &cobra.Command{
		Use:   "slice <model>",
		Short: "Slice a model into non-planar pieces",
		Long: `Slice loads an STL mesh or a .swm model script, clips it to the
build volume and carves it into slices. Each slice is written as an STL
volume plus the STL of its top surface, together with summary.json and a
G-code prologue.

A run that stops early still writes every slice emitted before it stopped.`,
		Example: `  # Slice with the default printer
  shockwave slice part.stl --out ./slices

  # Use a printer file and rest the model on the bed
  shockwave slice -c printer.yaml --drop bracket.swm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []pipeline.Option
			if drop {
				opts = append(opts, pipeline.WithDropToBed())
			}
			p, log, done, err := setup(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			defer done()

			sum, err := p.Slice(cmd.Context(), args[0], outDir)
			if sum != nil {
				printSummary(cmd, sum)
			}
			var terr *slicer.TerminalError
			if errors.As(err, &terr) {
				log.Error().Err(terr.Reason).Int("slices", terr.Index).Msg("Slicing failed")
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "slices", "output directory")
	cmd.Flags().BoolVar(&drop, "drop", false, "move the model down onto the bed first")

	return cmd
}

func printSummary(cmd *cobra.Command, sum *pipeline.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s after %d iterations, %d slices, %.1f%% printed\n",
		sum.Model, sum.Status, sum.Iterations, len(sum.Slices), sum.Progress*100)
	if sum.Reason != "" {
		fmt.Fprintf(out, "  reason: %s\n", sum.Reason)
	}
	for _, s := range sum.Slices {
		fmt.Fprintf(out, "  %3d  %10.2f mm³  %5d faces  %s\n", s.Index, s.VolumeMM3, s.SurfaceFaces, s.VolumeFile)
	}
}
