package main

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theyagu56/pathways-agent/internal/model"
)

var (
	batchCSVPath string
	batchOutPath string
	batchLimit   int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Rank providers for a CSV of intake requests",
	Long:  "Reads rows of injury_description,zip_code,insurance and writes one ranked result set per row.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		requests, err := readBatchCSV(batchCSVPath, batchLimit)
		if err != nil {
			return err
		}
		zap.L().Info("starting batch match",
			zap.Int("requests", len(requests)),
			zap.Int("concurrency", cfg.Batch.MaxConcurrentRequests))

		results := make([]*model.IntakeResult, len(requests))
		var failures atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrentRequests)
		for i, req := range requests {
			g.Go(func() error {
				intake, err := env.Pipeline.Match(gctx, req)
				if err != nil {
					failures.Add(1)
					zap.L().Error("batch row failed",
						zap.Int("row", i+1),
						zap.String("injury", req.InjuryDescription),
						zap.Error(err))
					return nil
				}
				results[i] = intake.Result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if err := writeBatchResults(batchOutPath, requests, results); err != nil {
			return err
		}
		zap.L().Info("batch match complete",
			zap.Int("processed", len(requests)),
			zap.Int64("failed", failures.Load()),
			zap.String("output", batchOutPath))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchCSVPath, "csv", "", "path to CSV file (required)")
	batchCmd.Flags().StringVar(&batchOutPath, "out", "batch-results.json", "path to write JSON results")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max rows to process (0 = all)")
	_ = batchCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(batchCmd)
}

// readBatchCSV parses rows of injury_description,zip_code,insurance. A
// header row is detected and skipped.
func readBatchCSV(path string, limit int) ([]model.MatchRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open csv %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var requests []model.MatchRequest
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read csv row")
		}
		if len(row) == 0 || row[0] == "" || row[0] == "injury_description" {
			continue
		}
		req := model.MatchRequest{InjuryDescription: row[0]}
		if len(row) > 1 {
			req.ZipCode = row[1]
		}
		if len(row) > 2 {
			req.Insurance = row[2]
		}
		requests = append(requests, req)
		if limit > 0 && len(requests) >= limit {
			break
		}
	}
	return requests, nil
}

type batchRow struct {
	Request model.MatchRequest  `json:"request"`
	Result  *model.IntakeResult `json:"result,omitempty"`
	Failed  bool                `json:"failed,omitempty"`
}

func writeBatchResults(path string, requests []model.MatchRequest, results []*model.IntakeResult) error {
	rows := make([]batchRow, len(requests))
	for i := range requests {
		rows[i] = batchRow{
			Request: requests[i],
			Result:  results[i],
			Failed:  results[i] == nil,
		}
	}

	payload, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return eris.Wrap(err, "batch: encode results")
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return eris.Wrapf(err, "batch: write output %s", path)
	}
	return nil
}
