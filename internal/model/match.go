package model

import (
	"encoding/json"
	"math"
)

// MatchRequest carries the extracted patient attributes fed to the ranking
// engine. ZipCode and Insurance may be empty when extraction could not find
// them; the engine scores the corresponding term as neutral.
type MatchRequest struct {
	InjuryDescription string `json:"injury_description"`
	ZipCode           string `json:"zip_code"`
	Insurance         string `json:"insurance"`
}

// Validate checks the request fields. The injury description must be
// non-empty; a non-empty zip code must be exactly 5 digits.
func (r MatchRequest) Validate() error {
	var ve ValidationError
	if r.InjuryDescription == "" {
		ve.Add("injury_description", "must not be empty")
	}
	if r.ZipCode != "" && !IsZipCode(r.ZipCode) {
		ve.Add("zip_code", "must be exactly 5 digits")
	}
	if ve.Empty() {
		return nil
	}
	return &ve
}

// MatchResult is a single ranked provider for a request.
type MatchResult struct {
	Provider      ProviderRecord `json:"provider"`
	Score         float64        `json:"score"`
	Distance      float64        `json:"distance"`
	RankingReason string         `json:"ranking_reason"`
}

// RoundedDistance returns the distance rounded to one decimal, the precision
// used in the display payload.
func (m MatchResult) RoundedDistance() float64 {
	return math.Round(m.Distance*10) / 10
}

// MarshalJSON emits the distance at display precision. The raw value is a
// scoring input, not part of the wire contract.
func (m MatchResult) MarshalJSON() ([]byte, error) {
	type wireResult MatchResult
	wire := wireResult(m)
	wire.Distance = m.RoundedDistance()
	return json.Marshal(wire)
}
