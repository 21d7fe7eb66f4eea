package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/directory"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Inspect and manage the provider directory",
}

var directoryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the provider directory file",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := directory.Load(cfg.Directory.Path)
		if err != nil {
			return err
		}
		snapshot := dir.Snapshot()
		fmt.Printf("%s: %d providers, %d specialties, %d insurances\n",
			cfg.Directory.Path, snapshot.Len(),
			len(snapshot.Specialties()), len(snapshot.Insurances()))
		return nil
	},
}

var directoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers in the directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := directory.Load(cfg.Directory.Path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSPECIALTY\tZIP\tRATING\tAVAILABLE")
		for _, p := range dir.Snapshot().All() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
				p.ID, p.Name, p.Specialty, p.ZipCode, p.Rating, p.NextAvailability)
		}
		return w.Flush()
	},
}

var (
	importSource string
	importOut    string
)

var directoryImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a provider roster spreadsheet into the directory format",
	Long:  "Reads an XLSX roster from a local path, HTTP(S) URL, or FTP URL, normalizes the records, and writes the directory JSON file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dest := filepath.Join(os.TempDir(), "provider-roster.xlsx")
		local, err := directory.FetchSource(ctx, importSource, dest)
		if err != nil {
			return eris.Wrap(err, "fetch roster")
		}

		providers, result, err := directory.ImportXLSX(local)
		if err != nil {
			return eris.Wrap(err, "import roster")
		}
		for _, problem := range result.Problems {
			zap.L().Warn("skipped roster row", zap.String("problem", problem))
		}

		out := importOut
		if out == "" {
			out = cfg.Directory.Path
		}
		if err := directory.WriteProvidersFile(out, providers); err != nil {
			return err
		}

		zap.L().Info("roster imported",
			zap.Int("imported", result.Imported),
			zap.Int("skipped", result.Skipped),
			zap.String("output", out))
		return nil
	},
}

func init() {
	directoryImportCmd.Flags().StringVar(&importSource, "source", "", "roster XLSX path or URL (required)")
	directoryImportCmd.Flags().StringVar(&importOut, "out", "", "output JSON path (default directory.path from config)")
	_ = directoryImportCmd.MarkFlagRequired("source")

	directoryCmd.AddCommand(directoryValidateCmd, directoryListCmd, directoryImportCmd)
	rootCmd.AddCommand(directoryCmd)
}
