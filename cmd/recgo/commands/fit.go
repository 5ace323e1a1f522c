package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/recgo"
	"github.com/hupe1980/recgo/internal/dataset"
)

var (
	fitInput  string
	fitNoBM25 bool
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a model from a play-count export and save it",
	Long: `Fit a model from a tab-separated play-count export and save it into the
snapshot folder, replacing what was there.

Input format, one line per pair (a header line is allowed):
  playlist_id<TAB>artist_name<TAB>plays

Example:
  recgo fit -i plays.tsv --folder models/2024-06`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if fitInput == "" {
			return fmt.Errorf("input file is required, use -i flag (- for stdin)")
		}

		var r io.Reader = cmd.InOrStdin()
		if fitInput != "-" {
			f, err := os.Open(fitInput)
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer f.Close()

			r = f
		}

		plays, err := dataset.Read(r)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		model, _, err := openModel(ctx, cfg)
		if err != nil {
			return err
		}

		var fitOpts []recgo.FitOption
		if fitNoBM25 {
			fitOpts = append(fitOpts, recgo.WithoutBM25())
		} else {
			fitOpts = append(fitOpts, recgo.WithBM25(cfg.Model.BM25K1, cfg.Model.BM25B))
		}

		if err := model.Fit(ctx, plays.Matrix, plays.PlaylistIDs, plays.ArtistNames, fitOpts...); err != nil {
			return err
		}

		if err := model.Save(ctx, cfg.Storage.Folder); err != nil {
			return err
		}

		return printOutput(cmd.OutOrStdout(), model.Status(), func(w io.Writer) {
			fmt.Fprintf(w, "Fitted %d playlists x %d artists, saved to %s\n",
				len(plays.PlaylistIDs), len(plays.ArtistNames), cfg.Storage.Folder)
		})
	},
}

func init() {
	fitCmd.Flags().StringVarP(&fitInput, "input", "i", "", "play-count export (- for stdin)")
	fitCmd.Flags().BoolVar(&fitNoBM25, "no-bm25", false, "fit raw play counts without BM25 weighting")
}
