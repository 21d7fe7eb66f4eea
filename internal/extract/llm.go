package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/model"
	"github.com/theyagu56/pathways-agent/pkg/anthropic"
)

const extractMaxTokens = 1024

// extractSystemPrompt carries the rules and the specialty vocabulary. It is
// identical across requests, so it goes in a cached system block.
const extractSystemPrompt = `You are a medical information extraction specialist. Extract ONLY medically relevant symptoms, injuries, or conditions from the patient's description.

Rules:
1. Focus only on medical symptoms, injuries, or conditions - ignore context, stories, or non-medical details.
2. Extract zip code if present (5-digit format).
3. Extract insurance provider if mentioned (e.g. "Blue Cross", "Aetna", "Cigna", "UnitedHealth", "Medicare", "Humana", "Kaiser").
4. Return ONLY valid JSON - no additional text, explanations, or formatting.
5. Use clear, concise medical terminology.
6. If no medical symptoms found, use "No specific symptoms mentioned".

Available specialties: %s

Return JSON in this exact format:
{
  "injury_description": "extracted medical symptoms/injuries only",
  "zip_code": "extracted zip code or empty string",
  "insurance": "extracted insurance provider or empty string",
  "recommended_specialties": ["specialty1", "specialty2"]
}`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// LLMExtractor extracts fields by asking the LLM for strict JSON. Any
// failure (API error, no JSON in the reply) degrades to the keyword
// extractor so intake never hard-fails on extraction.
type LLMExtractor struct {
	client   anthropic.Client
	model    string
	fallback Extractor
}

// NewLLMExtractor creates an extractor backed by the given client and model.
func NewLLMExtractor(client anthropic.Client, llmModel string) *LLMExtractor {
	return &LLMExtractor{
		client:   client,
		model:    llmModel,
		fallback: NewKeywordExtractor(),
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (model.Extraction, error) {
	system := fmt.Sprintf(extractSystemPrompt, strings.Join(model.SpecialtyVocabulary, ", "))

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: extractMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Patient description: %q\n\nJSON:", text)},
		},
	})
	if err != nil {
		zap.L().Warn("extract: llm call failed, using keyword fallback", zap.Error(err))
		return e.fallback.Extract(ctx, text)
	}
	resp.Usage.LogCost(e.model, "extract")

	extraction, err := parseExtraction(resp.Text())
	if err != nil {
		zap.L().Warn("extract: unparseable llm reply, using keyword fallback", zap.Error(err))
		return e.fallback.Extract(ctx, text)
	}

	if extraction.InjuryDescription == "" {
		extraction.InjuryDescription = text
	}
	if extraction.ZipCode != "" && !model.IsZipCode(extraction.ZipCode) {
		zap.L().Warn("extract: llm returned malformed zip, dropping",
			zap.String("zip", extraction.ZipCode))
		extraction.ZipCode = ""
	}
	return extraction, nil
}

// parseExtraction pulls the first JSON object out of the reply; models
// sometimes wrap the JSON in prose despite instructions.
func parseExtraction(reply string) (model.Extraction, error) {
	raw := jsonObjectPattern.FindString(reply)
	if raw == "" {
		return model.Extraction{}, fmt.Errorf("no JSON object in reply")
	}
	var out model.Extraction
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return model.Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	return out, nil
}
