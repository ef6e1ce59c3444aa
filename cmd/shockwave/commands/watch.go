package commands

import (
	"context"

	"github.com/chazu/shockwave/pkg/pipeline"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		outDir string
		drop   bool
	)

	cmd := &cobra.Command{
		Use:   "watch <model>",
		Short: "Re-slice a model every time it changes",
		Long: `Watch slices the model once, then again after each save until
interrupted. Failed runs are logged and watching continues.`,
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

			run := func(ctx context.Context) error {
				sum, err := p.Slice(ctx, args[0], outDir)
				if sum != nil {
					printSummary(cmd, sum)
				}
				return err
			}
			if err := run(cmd.Context()); err != nil {
				log.Error().Err(err).Msg("Initial slice failed")
			}
			return pipeline.Watch(cmd.Context(), args[0], run, log)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "slices", "output directory")
	cmd.Flags().BoolVar(&drop, "drop", false, "move the model down onto the bed first")

	return cmd
}
