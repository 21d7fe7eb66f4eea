package directory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/theyagu56/pathways-agent/internal/fetcher"
	"github.com/theyagu56/pathways-agent/internal/model"
)

// titleCaser normalizes specialty and insurer names from messy roster
// exports ("blue cross" -> "Blue Cross").
var titleCaser = cases.Title(language.AmericanEnglish)

// NormalizeName trims and title-cases a roster cell, preserving names that
// are already fully capitalized (acronyms like ENT).
func NormalizeName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	// Short all-caps names are acronyms (ENT), leave them alone.
	if len(s) <= 4 && s == strings.ToUpper(s) {
		return s
	}
	return titleCaser.String(strings.ToLower(s))
}

// ImportResult summarizes a roster import.
type ImportResult struct {
	Imported int
	Skipped  int
	Problems []string
}

// xlsxColumns maps the expected roster sheet layout:
// id, name, specialty, zip, insurances (semicolon-separated), rating, availability.
const xlsxColumnCount = 7

// ImportXLSX parses an insurer roster workbook into provider records.
// Rows that fail validation are skipped and reported, not fatal: roster
// exports are messy and a partial import is reviewed before activation.
func ImportXLSX(path string) ([]model.ProviderRecord, *ImportResult, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: 1})
	if err != nil {
		return nil, nil, err
	}

	res := &ImportResult{}
	var providers []model.ProviderRecord
	for i, row := range rows {
		rec, err := recordFromRow(row)
		if err != nil {
			res.Skipped++
			res.Problems = append(res.Problems, eris.Wrapf(err, "row %d", i+2).Error())
			continue
		}
		providers = append(providers, rec)
		res.Imported++
	}

	zap.L().Info("directory: xlsx import complete",
		zap.String("path", path),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
	)
	return providers, res, nil
}

func recordFromRow(row []string) (model.ProviderRecord, error) {
	if len(row) < xlsxColumnCount {
		return model.ProviderRecord{}, eris.Errorf("expected %d columns, got %d", xlsxColumnCount, len(row))
	}

	rating, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
	if err != nil {
		return model.ProviderRecord{}, eris.Wrapf(err, "parse rating %q", row[5])
	}
	avail, err := time.Parse("2006-01-02", strings.TrimSpace(row[6]))
	if err != nil {
		return model.ProviderRecord{}, eris.Wrapf(err, "parse availability %q", row[6])
	}

	var insurances []string
	for _, ins := range strings.Split(row[4], ";") {
		if ins = NormalizeName(ins); ins != "" {
			insurances = append(insurances, ins)
		}
	}

	rec := model.ProviderRecord{
		ID:                strings.TrimSpace(row[0]),
		Name:              strings.Join(strings.Fields(row[1]), " "),
		Specialty:         NormalizeName(row[2]),
		ZipCode:           strings.TrimSpace(row[3]),
		AcceptedInsurance: insurances,
		Rating:            rating,
		NextAvailability:  model.NewDate(avail.Year(), avail.Month(), avail.Day()),
	}
	if err := rec.Validate(); err != nil {
		return model.ProviderRecord{}, err
	}
	return rec, nil
}

// FetchSource downloads a roster from an http(s) or ftp URL into destPath.
// Plain filesystem paths are returned unchanged.
func FetchSource(ctx context.Context, source, destPath string) (string, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
		if _, err := f.DownloadToFile(ctx, source, destPath); err != nil {
			return "", eris.Wrapf(err, "directory: fetch %s", source)
		}
		return destPath, nil
	case strings.HasPrefix(source, "ftp://"):
		f := fetcher.NewFTPFetcher(fetcher.FTPOptions{})
		if _, err := f.DownloadToFile(ctx, source, destPath); err != nil {
			return "", eris.Wrapf(err, "directory: fetch %s", source)
		}
		return destPath, nil
	default:
		return source, nil
	}
}

// WriteProviders serializes records to the directory JSON format.
func WriteProviders(w io.Writer, providers []model.ProviderRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(providers); err != nil {
		return eris.Wrap(err, "directory: encode providers")
	}
	return nil
}

// WriteProvidersFile writes records to a JSON file at path.
func WriteProvidersFile(path string, providers []model.ProviderRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "directory: create %s", path)
	}
	defer f.Close() //nolint:errcheck
	return WriteProviders(f, providers)
}
