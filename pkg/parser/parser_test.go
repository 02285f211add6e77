package parser_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/scribe/pkg/parser"
)

const sampleSource = `import math


def add(a: int, b: int) -> int:
    """Add two numbers.

    Keeps it simple.
    """
    return a + b


async def fetch_data(url, timeout: float = 5.0) -> dict:
    '''Fetch JSON from a URL.'''
    return await client.get(url, timeout=timeout)


class Calculator:
    def multiply(self, values: Dict[str, int], factor=2):
        result = {}
        for k, v in values.items():
            result[k] = v * factor
        return result
`

func TestParse(t *testing.T) {
	p := parser.New()
	functions := p.Parse(sampleSource)

	require.Len(t, functions, 3)

	add := functions[0]
	assert.Equal(t, "add", add.Name)
	assert.Equal(t, []string{"a: int", "b: int"}, add.Params)
	assert.Equal(t, "int", add.Returns)
	assert.Equal(t, "Add two numbers.\n\nKeeps it simple.", add.Docstring)
	assert.Equal(t, 4, add.Line)
	assert.Contains(t, add.Source, "return a + b")

	fetch := functions[1]
	assert.Equal(t, "fetch_data", fetch.Name)
	assert.Equal(t, []string{"url", "timeout: float = 5.0"}, fetch.Params)
	assert.Equal(t, "dict", fetch.Returns)
	assert.Equal(t, "Fetch JSON from a URL.", fetch.Docstring)

	multiply := functions[2]
	assert.Equal(t, "multiply", multiply.Name)
	assert.Equal(t, []string{"self", "values: Dict[str, int]", "factor=2"}, multiply.Params)
	assert.Equal(t, "", multiply.Returns)
	assert.Equal(t, "", multiply.Docstring)
}

func TestParseMultilineSignature(t *testing.T) {
	src := `def configure(
    host: str,
    port: int = 8080,
) -> None:
    """Configure the client."""
    pass
`
	p := parser.New()
	functions := p.Parse(src)

	require.Len(t, functions, 1)
	assert.Equal(t, "configure", functions[0].Name)
	assert.Equal(t, []string{"host: str", "port: int = 8080"}, functions[0].Params)
	assert.Equal(t, "None", functions[0].Returns)
	assert.Equal(t, "Configure the client.", functions[0].Docstring)
}

func TestParseTruncatesLongSource(t *testing.T) {
	src := "def long_one():\n"
	for i := 0; i < 40; i++ {
		src += "    x = 1\n"
	}

	p := parser.New()
	functions := p.Parse(src)

	require.Len(t, functions, 1)
	assert.Contains(t, functions[0].Source, "# ... truncated")
}

func TestParseNoFunctions(t *testing.T) {
	p := parser.New()
	assert.Empty(t, p.Parse("x = 1\ny = 2\n"))
	assert.Empty(t, p.Parse(""))
}

func TestCleanContent(t *testing.T) {
	cleaned := parser.CleanContent("def f():[cite: 12]\n    pass [ref: abc]\n")
	assert.NotContains(t, cleaned, "[cite")
	assert.NotContains(t, cleaned, "[ref")

	// Invalid UTF-8 bytes are dropped rather than failing the parse.
	cleaned = parser.CleanContent("def g():\xff\n    pass\n")
	assert.Contains(t, cleaned, "def g():")
}

func TestParseFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "sample.py")
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0644))

	p := parser.New()
	functions, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, functions, 3)

	_, err = p.ParseFile(filepath.Join(tmpDir, "missing.py"))
	assert.Error(t, err)
}
