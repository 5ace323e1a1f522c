// Command recgo fits, queries and serves a playlist/artist recommender.
//
// Usage:
//
//	recgo [flags] <command> [args]
//
// Commands:
//
//	serve      - HTTP API over a model snapshot
//	fit        - fit a model from a play-count export and save it
//	recommend  - recommend artists and playlists for a list of artists
//	status     - print the status of a saved model
//
// Configuration:
//
//	Defaults, then recgo.yaml (or --config), then RECGO_* environment
//	variables. See internal/config.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/recgo/cmd/recgo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
