package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/theyagu56/pathways-agent/internal/model"
	"github.com/theyagu56/pathways-agent/internal/store"
)

var (
	intakesStatus string
	intakesSource string
	intakesLimit  int
)

var intakesCmd = &cobra.Command{
	Use:   "intakes",
	Short: "Inspect processed intake history",
}

var intakesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent intakes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		intakes, err := st.ListIntakes(ctx, store.IntakeFilter{
			Status: model.IntakeStatus(intakesStatus),
			Source: model.IntakeSource(intakesSource),
			Limit:  intakesLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tMATCHES\tCREATED\tTEXT")
		for _, in := range intakes {
			matches := "-"
			if in.Result != nil {
				matches = fmt.Sprintf("%d", in.Result.TotalMatched)
			}
			text := in.RawText
			if len(text) > 48 {
				text = text[:45] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				in.ID, in.Source, in.Status, matches,
				in.CreatedAt.Format("2006-01-02 15:04"), text)
		}
		return w.Flush()
	},
}

var intakesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one intake with its full result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		intake, err := st.GetIntake(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(intake)
	},
}

func init() {
	intakesListCmd.Flags().StringVar(&intakesStatus, "status", "", "filter by status (received|processing|complete|failed)")
	intakesListCmd.Flags().StringVar(&intakesSource, "source", "", "filter by source (text|voice|form)")
	intakesListCmd.Flags().IntVar(&intakesLimit, "limit", 20, "max intakes to list")

	intakesCmd.AddCommand(intakesListCmd, intakesShowCmd)
	rootCmd.AddCommand(intakesCmd)
}
