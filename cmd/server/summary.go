package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"agridash/internal/engine"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Load the dataset and print an overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, stats, err := engine.Load(cmd.Context(), cfg.Data.Path, engine.LoadOptions{
			Sheet:        cfg.Data.Sheet,
			Workers:      cfg.Data.Workers,
			DistributeEU: cfg.Data.DistributeEU,
		})
		if err != nil {
			return err
		}

		out := struct {
			Path        string   `json:"path"`
			Invalid     int      `json:"dropped_invalid"`
			Duplicates  int      `json:"dropped_duplicates"`
			Distributed int      `json:"distributed_eu_rows,omitempty"`
			Rows        int      `json:"rows"`
			FirstYear   int      `json:"first_year,omitempty"`
			LastYear    int      `json:"last_year,omitempty"`
			Countries   int      `json:"countries"`
			Measures    int      `json:"measures"`
			Nutrients   []string `json:"nutrients"`
		}{
			Path:        cfg.Data.Path,
			Invalid:     stats.Invalid,
			Duplicates:  stats.Duplicates,
			Distributed: stats.Distributed,
			Rows:        stats.Kept,
			Countries:   len(store.Countries()),
			Measures:    len(store.Measures()),
			Nutrients:   store.Nutrients(),
		}
		if years := store.Years(); len(years) > 0 {
			out.FirstYear, out.LastYear = years[0], years[len(years)-1]
		}

		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
