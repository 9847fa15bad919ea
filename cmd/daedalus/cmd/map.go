package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/script"
	"github.com/wehubfusion/Daedalus/pkg/takeput"
)

func newMapCmd(state *app) *cobra.Command {
	var (
		source  string
		indices []int
	)

	mapCmd := &cobra.Command{
		Use:   "map [values...]",
		Short: "Apply a JavaScript function to a list of JSON values",
		Long: `Apply a JavaScript function to selected elements of a list, in parallel.

Each argument is parsed as JSON; arguments that are not valid JSON are taken
as strings. Elements not selected with --index are left unchanged.

Example:
  daedalus map --script 'x => x + 1' --index 1,3,5 0 1 2 3 4 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.Compile(source)
			if err != nil {
				return err
			}

			seq := takeput.NewSequence(parseValues(args))
			seq.Logger = state.logger

			pairs := seq.AllIndicesInOut()
			if len(indices) > 0 {
				pairs = takeput.Pairs(indices...)
			}

			report, err := takeput.Dispatch(cmd.Context(), state.dispatcher, seq, pairs, script.Processor[any, any](s))
			if err != nil {
				return err
			}

			state.logger.Debug("Map finished",
				zap.String("dispatch_id", report.DispatchID),
				zap.Int("reinserted", report.Reinserted),
			)

			out, err := json.Marshal(seq.Items)
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	mapCmd.Flags().StringVarP(&source, "script", "s", "x => x", "JavaScript function applied to every selected element")
	mapCmd.Flags().IntSliceVarP(&indices, "index", "i", nil, "positions to process (default all)")

	return mapCmd
}

// parseValues decodes every argument as JSON, falling back to the raw string.
func parseValues(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		values[i] = v
	}
	return values
}
