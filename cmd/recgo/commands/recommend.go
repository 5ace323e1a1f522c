package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/recgo"
)

var (
	recPlaylist    string
	recLimit       int
	recNoUpdate    bool
	recNoRecommend bool
	recSave        bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <artist>...",
	Short: "Recommend artists and similar playlists",
	Long: `Recommend artists and similar playlists for a list of artist names.

Artist names are matched case-insensitively; unknown names are ignored.
With --playlist, an unknown playlist is registered in the model; --save
writes it back to the snapshot folder.

Example:
  recgo recommend --playlist my-mix --limit 5 "dEUS" "Spinal Tap"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		model, _, err := openModel(ctx, cfg)
		if err != nil {
			return err
		}

		if err := model.Load(ctx, cfg.Storage.Folder); err != nil {
			return err
		}

		optFns := []recgo.ProcessOption{recgo.WithLimit(recLimit)}
		if recNoUpdate {
			optFns = append(optFns, recgo.WithoutUpdate())
		}

		if recNoRecommend {
			optFns = append(optFns, recgo.WithoutRecommend())
		}

		res, err := model.ProcessArtists(ctx, args, recPlaylist, optFns...)
		if err != nil {
			return err
		}

		if recSave && model.DirtyPlaylists() {
			if err := model.Save(ctx, cfg.Storage.Folder); err != nil {
				return err
			}
		}

		return printOutput(cmd.OutOrStdout(), res, func(w io.Writer) {
			if len(res.Artists) == 0 && len(res.Playlists) == 0 {
				fmt.Fprintln(w, "No known artists.")
				return
			}

			if len(res.Artists) > 0 {
				fmt.Fprintln(w, "Artists:")
				for _, a := range res.Artists {
					fmt.Fprintf(w, "  %-40s %8.4f\n", a.Name, a.Score)
				}
			}

			fmt.Fprintln(w, "Playlists:")
			for _, p := range res.Playlists {
				fmt.Fprintf(w, "  %-40s %8.4f\n", p.ID, p.Score)
			}
		})
	},
}

func init() {
	recommendCmd.Flags().StringVar(&recPlaylist, "playlist", "", "playlist id to register and exclude")
	recommendCmd.Flags().IntVarP(&recLimit, "limit", "k", recgo.DefaultLimit, "number of artists and playlists")
	recommendCmd.Flags().BoolVar(&recNoUpdate, "no-update", false, "register an unknown playlist as a zero vector")
	recommendCmd.Flags().BoolVar(&recNoRecommend, "no-recommend", false, "skip artist recommendations")
	recommendCmd.Flags().BoolVar(&recSave, "save", false, "save the model when a playlist was registered")
}
