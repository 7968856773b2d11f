package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONPlainObject(t *testing.T) {
	var dest struct {
		Sentiment string `json:"sentiment"`
		Reasoning string `json:"reasoning"`
	}
	err := ExtractJSON(`{"sentiment": "Positive", "reasoning": "strong earnings"}`, &dest)
	require.NoError(t, err)
	assert.Equal(t, "Positive", dest.Sentiment)
}

func TestExtractJSONWithMarkdownFence(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"sentiment\": \"Negative\", \"reasoning\": \"guidance cut\"}\n```\n"
	var dest struct {
		Sentiment string `json:"sentiment"`
	}
	err := ExtractJSON(raw, &dest)
	require.NoError(t, err)
	assert.Equal(t, "Negative", dest.Sentiment)
}

func TestExtractJSONWithPlainFence(t *testing.T) {
	raw := "```\n{\"ratio\": 82}\n```"
	var dest struct {
		Ratio int `json:"ratio"`
	}
	err := ExtractJSON(raw, &dest)
	require.NoError(t, err)
	assert.Equal(t, 82, dest.Ratio)
}

func TestExtractJSONWithTrailingText(t *testing.T) {
	raw := `{"sentiment": "Neutral"} -- end of analysis`
	var dest struct {
		Sentiment string `json:"sentiment"`
	}
	err := ExtractJSON(raw, &dest)
	require.NoError(t, err)
	assert.Equal(t, "Neutral", dest.Sentiment)
}

func TestExtractJSONWithNestedObject(t *testing.T) {
	raw := `{"sentiment": "Positive", "meta": {"confidence": 0.9}}`
	var dest struct {
		Sentiment string `json:"sentiment"`
		Meta      struct {
			Confidence float64 `json:"confidence"`
		} `json:"meta"`
	}
	err := ExtractJSON(raw, &dest)
	require.NoError(t, err)
	assert.Equal(t, 0.9, dest.Meta.Confidence)
}

func TestExtractJSONNoObjectFound(t *testing.T) {
	var dest map[string]interface{}
	err := ExtractJSON("no json here at all", &dest)
	assert.Error(t, err)
}

func TestExtractJSONUnbalanced(t *testing.T) {
	var dest map[string]interface{}
	err := ExtractJSON(`{"sentiment": "Positive"`, &dest)
	assert.Error(t, err)
}
