package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassPurposeValid(t *testing.T) {
	for _, purpose := range AllPassPurposes() {
		assert.True(t, purpose.Valid(), string(purpose))
	}
	assert.False(t, PassPurpose("ocr_cleanup").Valid())
	assert.False(t, PassPurpose("").Valid())
}

func TestPermutationResult_BasePass(t *testing.T) {
	result := &PermutationResult{
		Passes: []PassConfig{
			{Pass: 1, Purpose: PurposeInitialExtraction, Backend: "claude-sonnet-4-5-20250929"},
			{Pass: 2, Purpose: PurposeSelfReview},
		},
	}

	base := result.BasePass()
	require.NotNil(t, base)
	assert.Equal(t, 1, base.Pass)

	noBase := &PermutationResult{Passes: []PassConfig{{Pass: 1, Purpose: PurposeSelfReview}}}
	assert.Nil(t, noBase.BasePass())
}

func TestPermutationResult_ResultFor(t *testing.T) {
	result := &PermutationResult{
		PassResults: []PassResult{
			{Pass: 1, Cost: 0.50},
			{Pass: 3, Cost: 0.25},
		},
	}

	pr := result.ResultFor(3)
	require.NotNil(t, pr)
	assert.Equal(t, 0.25, pr.Cost)
	assert.Nil(t, result.ResultFor(2))
}

func TestTokenUsage(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	u.Add(TokenUsage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 7})

	assert.Equal(t, 110, u.InputTokens)
	assert.Equal(t, 55, u.OutputTokens)
	assert.Equal(t, 7, u.CacheReadTokens)
	assert.Equal(t, 165, u.Total())
}
