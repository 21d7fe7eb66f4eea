// Package directory loads and serves the provider directory: a read-only
// snapshot of provider records loaded at startup and swapped atomically on
// reload.
package directory

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/fetcher"
	"github.com/theyagu56/pathways-agent/internal/model"
)

// Snapshot is an immutable view of the provider directory. Callers must not
// mutate the returned slices.
type Snapshot struct {
	providers   []model.ProviderRecord
	specialties []string
	insurances  []string
}

// All returns the providers in source order.
func (s *Snapshot) All() []model.ProviderRecord {
	return s.providers
}

// Specialties returns the sorted distinct specialties in the directory.
func (s *Snapshot) Specialties() []string {
	return s.specialties
}

// Insurances returns the sorted distinct insurers accepted by any provider.
func (s *Snapshot) Insurances() []string {
	return s.insurances
}

// Len returns the number of providers.
func (s *Snapshot) Len() int {
	return len(s.providers)
}

// Directory holds the current provider snapshot and knows how to reload it
// from its source path. Reads never block reloads.
type Directory struct {
	path    string
	current atomic.Pointer[Snapshot]
}

// Load reads the provider directory from a JSON file and validates every
// record. Any read, parse, or validation failure is an error: the caller must
// treat it as fatal at startup rather than serve a partial directory.
func Load(path string) (*Directory, error) {
	d := &Directory{path: path}
	snap, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	d.current.Store(snap)
	zap.L().Info("directory: loaded providers",
		zap.String("path", path),
		zap.Int("providers", snap.Len()),
		zap.Int("specialties", len(snap.specialties)),
	)
	return d, nil
}

// Snapshot returns the current immutable snapshot.
func (d *Directory) Snapshot() *Snapshot {
	return d.current.Load()
}

// Reload re-reads the source file and atomically swaps the snapshot. On any
// failure the previous snapshot stays in place.
func (d *Directory) Reload() (*Snapshot, error) {
	snap, err := loadSnapshot(d.path)
	if err != nil {
		return nil, err
	}
	d.current.Store(snap)
	zap.L().Info("directory: reloaded providers",
		zap.String("path", d.path),
		zap.Int("providers", snap.Len()),
	)
	return snap, nil
}

func loadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	// Stream-decode so a multi-megabyte roster does not need a second copy
	// in memory. The cancel unblocks the decoder goroutine when a validation
	// failure returns early with records still buffered.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recCh, errCh := fetcher.DecodeJSONArray[model.ProviderRecord](ctx, f)

	var providers []model.ProviderRecord
	for rec := range recCh {
		if err := rec.Validate(); err != nil {
			return nil, eris.Wrapf(err, "directory: invalid provider %q", rec.ID)
		}
		providers = append(providers, rec)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "directory: parse %s", path)
	}

	return newSnapshot(providers), nil
}

func newSnapshot(providers []model.ProviderRecord) *Snapshot {
	return &Snapshot{
		providers:   providers,
		specialties: model.DistinctSpecialties(providers),
		insurances:  model.DistinctInsurances(providers),
	}
}
