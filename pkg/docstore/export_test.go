package docstore_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/pkg/docstore"
)

func TestMarkdown(t *testing.T) {
	md := docstore.Markdown(sampleDocs())

	assert.Contains(t, md, "# API Documentation")
	assert.Contains(t, md, "## `add`")
	assert.Contains(t, md, "Adds two numbers.")
	assert.Contains(t, md, "- `a: first addend`")
	assert.Contains(t, md, "**Returns:** The sum")
	assert.Contains(t, md, "```python\nadd(1, 2)\n```")
	assert.Contains(t, md, "**Notes:** Integers only.")
	assert.Contains(t, md, "## `fetch_data`")
}

func TestMarkdownObjectParameters(t *testing.T) {
	docs := []models.FunctionDoc{
		{
			Function: "configure",
			Documentation: models.Documentation{
				Description: "Configures the client.",
				Parameters: []models.Parameter{
					{Name: "host", Type: "str", Description: "server host"},
					{Name: "port"},
				},
			},
		},
	}

	md := docstore.Markdown(docs)

	assert.Contains(t, md, "- `host` *(str)*: server host")
	assert.Contains(t, md, "- `port`\n")
}

func TestMarkdownSkipsFailedRecords(t *testing.T) {
	docs := []models.FunctionDoc{
		{
			Function:      "broken",
			Documentation: models.Documentation{Error: "model returned invalid JSON structure"},
		},
		{
			Function:      "ok",
			Documentation: models.Documentation{Description: "Works."},
		},
	}

	md := docstore.Markdown(docs)

	assert.NotContains(t, md, "broken")
	assert.Contains(t, md, "## `ok`")
}

func TestJSONExportRoundTrip(t *testing.T) {
	out, err := docstore.JSON(sampleDocs())
	require.NoError(t, err)

	var decoded []models.FunctionDoc
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "add", decoded[0].Function)
	// String-form parameters survive the round trip.
	assert.Equal(t, "a: first addend", decoded[0].Documentation.Parameters[0].String())
}
