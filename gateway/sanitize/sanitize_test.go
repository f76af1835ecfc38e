package sanitize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/sanitize"
)

type fakeCaps struct{ noTemp map[string]bool }

func (f fakeCaps) SupportsTemperature(modelID string) bool { return !f.noTemp[modelID] }

func TestPrepareDropsTemperatureOnReasoningModel(t *testing.T) {
	temp := 0.7
	req := gateway.Request{Model: "o1", Temperature: &temp}
	out, err := sanitize.Prepare(req, fakeCaps{noTemp: map[string]bool{"o1": true}})
	require.NoError(t, err)
	assert.Nil(t, out.Temperature)
	assert.NotNil(t, req.Temperature, "caller's request must not be mutated")
}

func TestPrepareKeepsTemperatureWhenSupported(t *testing.T) {
	temp := 0.7
	req := gateway.Request{Model: "gpt-4o", Temperature: &temp}
	out, err := sanitize.Prepare(req, fakeCaps{})
	require.NoError(t, err)
	require.NotNil(t, out.Temperature)
	assert.Equal(t, 0.7, *out.Temperature)
}

func TestPrepareClearsEmptyResponseFormat(t *testing.T) {
	req := gateway.Request{Model: "gpt-4o", ResponseFormat: &gateway.ResponseFormat{}}
	out, err := sanitize.Prepare(req, fakeCaps{})
	require.NoError(t, err)
	assert.Nil(t, out.ResponseFormat)
}

func TestPrepareSynthesizesLegacyFieldsAppendix(t *testing.T) {
	req := gateway.Request{
		Model:        "gpt-4o",
		SystemPrompt: "You are terse.",
		ResponseFormat: &gateway.ResponseFormat{
			Fields: []gateway.FieldSpec{
				{Name: "answer", Type: "string", Description: "the final answer"},
				{Name: "confidence", Type: "number"},
			},
		},
	}
	out, err := sanitize.Prepare(req, fakeCaps{})
	require.NoError(t, err)
	assert.Contains(t, out.SystemPrompt, "You are terse.")
	assert.Contains(t, out.SystemPrompt, `"answer" (string)`)
	assert.Contains(t, out.SystemPrompt, `"confidence" (number)`)
}

func TestPrepareSkipsMalformedLegacyField(t *testing.T) {
	req := gateway.Request{
		Model: "gpt-4o",
		ResponseFormat: &gateway.ResponseFormat{
			Fields: []gateway.FieldSpec{
				{Name: "", Type: "string"}, // missing name: skipped silently
				{Name: "ok", Type: "string"},
			},
		},
	}
	out, err := sanitize.Prepare(req, fakeCaps{})
	require.NoError(t, err)
	assert.Contains(t, out.SystemPrompt, `"ok"`)
}

func TestPreparePassesNativeSchemaThroughUnchanged(t *testing.T) {
	req := gateway.Request{
		Model: "gpt-4o",
		ResponseFormat: &gateway.ResponseFormat{
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"answer": map[string]interface{}{"type": "string"}},
			},
		},
	}
	out, err := sanitize.Prepare(req, fakeCaps{})
	require.NoError(t, err)
	require.NotNil(t, out.ResponseFormat)
	assert.Empty(t, out.SystemPrompt)
	assert.Equal(t, req.ResponseFormat.Schema, out.ResponseFormat.Schema)
}

func TestPrepareRejectsInvalidNativeSchema(t *testing.T) {
	req := gateway.Request{
		Model: "gpt-4o",
		ResponseFormat: &gateway.ResponseFormat{
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": "not-an-object", // malformed
			},
		},
	}
	_, err := sanitize.Prepare(req, fakeCaps{})
	assert.Error(t, err)
}
