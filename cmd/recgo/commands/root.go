package commands

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/recgo/internal/config"
)

var (
	// Global flags
	cfgFile    string
	folderFlag string
	outputJSON bool
	verbose    bool

	// Loaded before every command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "recgo",
	Short: "Hybrid ALS + HNSW playlist/artist recommender",
	Long: `recgo factorizes playlist/artist play counts with alternating least
squares and answers "similar to" and "recommend for" queries with HNSW
approximate nearest-neighbour indexes.

Examples:
  # Fit from a tab-separated export (playlist, artist, plays) and save
  recgo fit -i plays.tsv

  # Recommend for a few artists and register the playlist
  recgo recommend --playlist my-mix "dEUS" "Anvil" --save

  # Serve the HTTP API
  recgo serve
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if folderFlag != "" {
			loaded.Storage.Folder = folderFlag
		}

		if verbose {
			loaded.Logging.Level = "debug"
		}

		cfg = loaded

		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is recgo.yaml or $RECGO_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&folderFlag, "folder", "", "snapshot folder (overrides storage.folder)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(statusCmd)
}
