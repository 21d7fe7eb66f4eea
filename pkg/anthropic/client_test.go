package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "hello "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "world"},
		},
	}
	assert.Equal(t, "hello world", resp.Text())
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}
	// 1M input at $0.80 + 0.5M output at $4.00 = 0.80 + 2.00
	assert.InDelta(t, 2.80, u.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
}

func TestTokenUsage_EstimateCostUnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1000}
	assert.Equal(t, 0.0, u.EstimateCost("unknown-model"))
}

func TestTokenUsage_EstimateCostCacheMultipliers(t *testing.T) {
	u := TokenUsage{CacheCreationInputTokens: 1_000_000, CacheReadInputTokens: 1_000_000}
	// write at 1.25x input, read at 0.1x input: 0.80*1.25 + 0.80*0.1
	assert.InDelta(t, 1.08, u.EstimateCost("claude-haiku-4-5-20251001"), 0.001)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("system text")
	assert.Len(t, blocks, 1)
	assert.Equal(t, "system text", blocks[0].Text)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
