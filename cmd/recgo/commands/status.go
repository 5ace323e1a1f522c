package commands

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of the saved model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		model, _, err := openModel(ctx, cfg)
		if err != nil {
			return err
		}

		if err := model.Load(ctx, cfg.Storage.Folder); err != nil {
			return err
		}

		st := model.Status()

		return printOutput(cmd.OutOrStdout(), st, func(w io.Writer) {
			fmt.Fprintf(w, "Folder:     %s\n", cfg.Storage.Folder)
			fmt.Fprintf(w, "Artists:    %d\n", st.Artists)
			fmt.Fprintf(w, "Playlists:  %d\n", st.Playlists)
			fmt.Fprintf(w, "Factors:    %d (%s)\n", st.Engine.Factors, st.Engine.Precision)

			for _, name := range slices.Sorted(maps.Keys(st.Engine.Indexes)) {
				fmt.Fprintf(w, "Index %-22s %d nodes\n", name+":", st.Engine.Indexes[name].Nodes)
			}
		})
	},
}

// printOutput writes v as JSON with --json, otherwise calls text.
func printOutput(w io.Writer, v any, text func(io.Writer)) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	}

	text(w)

	return nil
}
