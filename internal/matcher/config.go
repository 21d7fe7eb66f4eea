// Package matcher implements the provider ranking engine: a pure weighted
// scoring pass over an immutable directory snapshot.
package matcher

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights holds the normalized signal weights for the composite score.
type Weights struct {
	Specialty float64 `yaml:"specialty" mapstructure:"specialty"`
	Insurance float64 `yaml:"insurance" mapstructure:"insurance"`
	Distance  float64 `yaml:"distance" mapstructure:"distance"`
}

// DefaultWeights returns the standard weighting: specialty dominates,
// insurance second, distance last.
func DefaultWeights() Weights {
	return Weights{
		Specialty: 0.5,
		Insurance: 0.3,
		Distance:  0.2,
	}
}

// Validate checks that weights are non-negative and sum to 1.0 (with
// floating-point tolerance).
func (w Weights) Validate() error {
	var errs []string
	for name, v := range map[string]float64{
		"specialty": w.Specialty,
		"insurance": w.Insurance,
		"distance":  w.Distance,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	sum := w.Specialty + w.Insurance + w.Distance
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	} else if math.Abs(sum-1.0) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1.0, got %.3f", sum))
	}
	if len(errs) > 0 {
		return eris.Errorf("matcher: weight validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Config controls ranking behavior beyond the weights themselves.
type Config struct {
	Weights Weights `yaml:"weights" mapstructure:"weights"`

	// MaxResults caps the returned list. Zero means no cap.
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`

	// StrictInsurance disables the fallback to the unfiltered pool when no
	// provider accepts the requested insurance.
	StrictInsurance bool `yaml:"strict_insurance" mapstructure:"strict_insurance"`

	// NearbyThreshold is the distance under which a provider counts as
	// nearby for the ranking reason.
	NearbyThreshold float64 `yaml:"nearby_threshold" mapstructure:"nearby_threshold"`
}

// DefaultConfig returns the standard ranking configuration: top 3 results,
// graceful insurance fallback.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		MaxResults:      3,
		NearbyThreshold: 10,
	}
}

// Validate checks the full ranking configuration.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.MaxResults < 0 {
		return eris.New("matcher: max_results must be >= 0")
	}
	if c.NearbyThreshold < 0 {
		return eris.New("matcher: nearby_threshold must be >= 0")
	}
	return nil
}

// LoadConfig reads a ranking configuration from a YAML file. The file has a
// top-level "match" key; fields left unset keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "matcher: read config %s", path)
	}

	var wrapper struct {
		Match struct {
			Weights         *Weights `yaml:"weights"`
			MaxResults      *int     `yaml:"max_results"`
			StrictInsurance *bool    `yaml:"strict_insurance"`
			NearbyThreshold *float64 `yaml:"nearby_threshold"`
		} `yaml:"match"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return cfg, eris.Wrap(err, "matcher: parse config")
	}

	if wrapper.Match.Weights != nil {
		cfg.Weights = *wrapper.Match.Weights
	}
	if wrapper.Match.MaxResults != nil {
		cfg.MaxResults = *wrapper.Match.MaxResults
	}
	if wrapper.Match.StrictInsurance != nil {
		cfg.StrictInsurance = *wrapper.Match.StrictInsurance
	}
	if wrapper.Match.NearbyThreshold != nil {
		cfg.NearbyThreshold = *wrapper.Match.NearbyThreshold
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
