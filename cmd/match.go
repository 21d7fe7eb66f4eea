package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/theyagu56/pathways-agent/internal/model"
)

var (
	matchZip       string
	matchInsurance string
)

var matchCmd = &cobra.Command{
	Use:   "match <injury description>",
	Short: "Rank providers for a single injury description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		intake, err := env.Pipeline.Match(ctx, model.MatchRequest{
			InjuryDescription: args[0],
			ZipCode:           matchZip,
			Insurance:         matchInsurance,
		})
		if err != nil {
			return err
		}

		result := intake.Result
		fmt.Printf("Recommended specialties: %v\n\n", result.RecommendedSpecialties)

		if len(result.Matches) == 0 {
			fmt.Println("No providers matched.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tPROVIDER\tSPECIALTY\tZIP\tSCORE\tREASON")
		for i, m := range result.Matches {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.3f\t%s\n",
				i+1, m.Provider.Name, m.Provider.Specialty, m.Provider.ZipCode,
				m.Score, m.RankingReason)
		}
		return w.Flush()
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchZip, "zip", "", "patient zip code")
	matchCmd.Flags().StringVar(&matchInsurance, "insurance", "", "patient insurance")
	rootCmd.AddCommand(matchCmd)
}
