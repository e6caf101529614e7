package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFencedBlock(t *testing.T) {
	response := "Here is the plan:\n```json\n{\"action\": \"CLICK\"}\n```\nDone."
	payload, err := extractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action": "CLICK"}`, payload)
}

func TestExtractJSONBareObject(t *testing.T) {
	payload, err := extractJSON(`  {"a": 1}  `)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, payload)
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	payload, err := extractJSON(`Sure thing. {"a": {"b": 2}} Hope that helps!`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": {"b": 2}}`, payload)
}

func TestExtractJSONNoObject(t *testing.T) {
	_, err := extractJSON("no json here at all")
	assert.Error(t, err)
}

func TestDecodeJSONResponse(t *testing.T) {
	var out struct {
		Completed bool   `json:"completed"`
		Reason    string `json:"reason"`
	}
	err := decodeJSONResponse("```json\n{\"completed\": true, \"reason\": \"done\"}\n```", &out)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, "done", out.Reason)

	assert.Error(t, decodeJSONResponse("{not valid json}", &out))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "300866", sanitizeText(`300866}`))
	assert.Equal(t, "300866", sanitizeText("300866}]{,\"'`"))
	assert.Equal(t, "hello world", sanitizeText("  hello world  "))
	assert.Equal(t, "plain", sanitizeText("plain"))
}
