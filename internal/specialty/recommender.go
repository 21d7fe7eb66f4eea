// Package specialty recommends medical specialties for an injury
// description, constrained to what the provider directory actually offers.
package specialty

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/pkg/anthropic"
)

// MaxRecommendations caps how many specialties a recommendation returns.
const MaxRecommendations = 3

// fallbackSpecialties is the static ordering used when the LLM is
// unavailable or recommends nothing the directory offers.
var fallbackSpecialties = []string{
	"Orthopedics", "Sports Medicine", "Physical Therapy",
	"Primary Care", "Internal Medicine",
}

// Recommender produces an ordered list of candidate specialties for an
// injury description. available is the directory's current specialty set;
// results are always a subset of it.
type Recommender interface {
	Recommend(ctx context.Context, injury string, available []string) ([]string, error)
}

const recommendSystemPrompt = `You are a medical specialist who recommends the most appropriate medical specialties for treating specific injuries or conditions. Return only 2-3 specialty names from the provided list, separated by commas, with no other text.`

const recommendMaxTokens = 256

// LLMRecommender asks the LLM to pick specialties from the available list.
type LLMRecommender struct {
	client anthropic.Client
	model  string
}

// NewLLMRecommender creates a recommender backed by the given client and model.
func NewLLMRecommender(client anthropic.Client, llmModel string) *LLMRecommender {
	return &LLMRecommender{client: client, model: llmModel}
}

// Recommend returns up to MaxRecommendations specialties drawn from
// available, ordered most-appropriate first. LLM failure or an answer with
// nothing usable degrades to the static fallback list; the returned error is
// nil in that case because a degraded recommendation is still serviceable.
func (r *LLMRecommender) Recommend(ctx context.Context, injury string, available []string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Available specialties: %s\n\nInjury description: %q\n\nSpecialties:",
		strings.Join(available, ", "), injury,
	)

	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: recommendMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(recommendSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("specialty: llm call failed, using fallback", zap.Error(err))
		return Fallback(available), nil
	}
	resp.Usage.LogCost(r.model, "specialty")

	recommended := filterToAvailable(parseCommaList(resp.Text()), available)
	if len(recommended) == 0 {
		zap.L().Warn("specialty: llm recommended nothing available, using fallback",
			zap.String("reply", resp.Text()))
		return Fallback(available), nil
	}
	return recommended, nil
}

// Fallback returns the static specialty list intersected with available.
func Fallback(available []string) []string {
	return filterToAvailable(fallbackSpecialties, available)
}

func parseCommaList(reply string) []string {
	var out []string
	for _, s := range strings.Split(reply, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func filterToAvailable(candidates, available []string) []string {
	availSet := make(map[string]bool, len(available))
	for _, s := range available {
		availSet[s] = true
	}
	var out []string
	for _, c := range candidates {
		if availSet[c] {
			out = append(out, c)
		}
		if len(out) == MaxRecommendations {
			break
		}
	}
	return out
}
