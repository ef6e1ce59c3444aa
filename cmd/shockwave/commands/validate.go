package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [model]",
		Short: "Validate the configuration and optionally a model",
		Long: `Validate checks the printer and slicer configuration. Given a model,
it also loads it, checks that the assembled solid is watertight and reports
how much of it fits in the build volume.`,
		Example: `  # Check a printer file
  shockwave validate -c printer.yaml

  # Check a model script against it
  shockwave validate -c printer.yaml bracket.swm`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, log, done, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration: ok")
			if len(args) == 0 {
				return nil
			}

			model, err := p.LoadModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			clipped, _, err := p.Prepare(model)
			if err != nil {
				return err
			}
			k := p.Kernel()
			total, inside := k.Volume(model), k.Volume(clipped)
			log.Info().Str("model", args[0]).Float64("volume", total).Float64("printable", inside).Msg("Model validated")
			fmt.Fprintf(out, "%s: ok, %.2f mm³, %.2f mm³ inside the build volume\n", args[0], total, inside)
			return nil
		},
	}
	return cmd
}
