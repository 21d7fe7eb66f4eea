// Package extract turns free patient text into structured intake fields.
// The primary extractor asks the LLM for strict JSON; a keyword extractor
// backs it so intake always produces a best-effort result.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/theyagu56/pathways-agent/internal/model"
)

// Extractor pulls structured fields from free text. Implementations return
// best-effort results: missing fields are empty, never errors.
type Extractor interface {
	Extract(ctx context.Context, text string) (model.Extraction, error)
}

var zipPattern = regexp.MustCompile(`\b\d{5}\b`)

// insurerKeywords maps canonical insurer names to the phrases patients use.
var insurerKeywords = map[string][]string{
	"Blue Cross":   {"blue cross", "bluecross"},
	"Aetna":        {"aetna"},
	"Cigna":        {"cigna"},
	"UnitedHealth": {"unitedhealth", "united health"},
	"Medicare":     {"medicare"},
	"Humana":       {"humana"},
	"Kaiser":       {"kaiser", "kaiser permanente"},
}

// specialtyKeywords maps specialties to symptom phrases for the offline path.
var specialtyKeywords = map[string][]string{
	"Dentist":       {"tooth", "teeth", "dental", "mouth", "gum"},
	"Cardiology":    {"chest pain", "heart", "cardiac", "palpitation"},
	"Neurology":     {"headache", "head injury", "brain", "seizure"},
	"Orthopedics":   {"broken", "fracture", "bone", "joint", "knee", "shoulder", "ankle", "sprain"},
	"Dermatology":   {"rash", "skin", "itch", "burn"},
	"ENT":           {"ear", "nose", "throat", "hearing", "swallowing"},
	"Ophthalmology": {"eye", "vision", "blind", "sight"},
	"Psychiatry":    {"anxiety", "depression", "mental", "mood"},
}

// specialtyKeywordOrder keeps keyword matching deterministic across runs.
var specialtyKeywordOrder = []string{
	"Dentist", "Cardiology", "Neurology", "Orthopedics",
	"Dermatology", "ENT", "Ophthalmology", "Psychiatry",
}

// insurerKeywordOrder keeps insurer matching deterministic across runs.
var insurerKeywordOrder = []string{
	"Blue Cross", "Aetna", "Cigna", "UnitedHealth", "Medicare", "Humana", "Kaiser",
}

// KeywordExtractor extracts fields with regex and keyword tables only.
// It is the fallback when the LLM is unavailable and the whole of the
// extraction path in offline mode.
type KeywordExtractor struct{}

// NewKeywordExtractor returns the rule-based extractor.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

// Extract never fails; it returns whatever the rules can find.
func (e *KeywordExtractor) Extract(_ context.Context, text string) (model.Extraction, error) {
	lower := strings.ToLower(text)

	out := model.Extraction{
		InjuryDescription: text,
		ZipCode:           zipPattern.FindString(text),
		Insurance:         matchInsurer(lower),
	}

	for _, specialty := range specialtyKeywordOrder {
		for _, kw := range specialtyKeywords[specialty] {
			if strings.Contains(lower, kw) {
				out.RecommendedSpecialties = append(out.RecommendedSpecialties, specialty)
				break
			}
		}
		if len(out.RecommendedSpecialties) == 3 {
			break
		}
	}
	if len(out.RecommendedSpecialties) == 0 {
		out.RecommendedSpecialties = []string{"General Surgery", "Primary Care"}
	}

	return out, nil
}

func matchInsurer(lower string) string {
	for _, insurer := range insurerKeywordOrder {
		for _, kw := range insurerKeywords[insurer] {
			if strings.Contains(lower, kw) {
				return insurer
			}
		}
	}
	return ""
}
