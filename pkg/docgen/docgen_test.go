package docgen_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/pkg/docgen"
	"github.com/xhad/scribe/pkg/docstore"
)

type fakeContextStore struct {
	added  []string
	resets int
}

func (f *fakeContextStore) Add(_ context.Context, texts []string) (int, error) {
	f.added = append(f.added, texts...)
	return len(texts), nil
}

func (f *fakeContextStore) QueryText(_ context.Context, _ string, limit int) ([]models.Document, error) {
	docs := make([]models.Document, 0, limit)
	for i := 0; i < limit && i < len(f.added); i++ {
		docs = append(docs, models.Document{Content: f.added[i]})
	}
	return docs, nil
}

func (f *fakeContextStore) Reset(_ context.Context) error {
	f.resets++
	f.added = nil
	return nil
}

type fakeGenerator struct {
	contexts [][]string
}

func (f *fakeGenerator) GenerateBatch(_ context.Context, fns []models.Function, contexts [][]string) []models.Documentation {
	f.contexts = contexts
	out := make([]models.Documentation, len(fns))
	for i, fn := range fns {
		out[i] = models.Documentation{
			Description: "Documents " + fn.Name,
			Returns:     "Not specified",
		}
	}
	return out
}

const source = `def add(a, b):
    """Add two numbers."""
    return a + b


def helper():
    return 42
`

func newPipeline(t *testing.T) (*docgen.Pipeline, *fakeContextStore, *fakeGenerator) {
	t.Helper()

	cs := &fakeContextStore{}
	gen := &fakeGenerator{}

	ds, err := docstore.New(filepath.Join(t.TempDir(), "documentation.json"))
	require.NoError(t, err)

	p := docgen.New(docgen.Config{ContextLimit: 2}, nil, cs, gen, ds)

	return p, cs, gen
}

func TestDocumentPipeline(t *testing.T) {
	p, cs, gen := newPipeline(t)

	result, err := p.Document(context.Background(), "calc.py", source)
	require.NoError(t, err)

	require.Len(t, result.Functions, 2)
	require.Len(t, result.Docs, 2)
	assert.Equal(t, "add", result.Docs[0].Function)
	assert.Equal(t, "Documents add", result.Docs[0].Documentation.Description)
	assert.Equal(t, "helper", result.Docs[1].Function)

	// Only the one existing docstring is indexed as context.
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, []string{"Add two numbers."}, cs.added)
	assert.Equal(t, 1, cs.resets)

	// Each function got retrieved context.
	require.Len(t, gen.contexts, 2)
	assert.Equal(t, []string{"Add two numbers."}, gen.contexts[0])

	// Result was persisted.
	assert.Equal(t, "calc.py", result.Entry.Filename)
	assert.Equal(t, 2, result.Entry.FunctionCount)
}

func TestDocumentKeepsImportedContext(t *testing.T) {
	cs := &fakeContextStore{}
	gen := &fakeGenerator{}

	ds, err := docstore.New(filepath.Join(t.TempDir(), "documentation.json"))
	require.NoError(t, err)

	// Reference pages imported before the run live in the current
	// session and must survive into retrieval.
	_, err = cs.Add(context.Background(), []string{"Reference page: add combines two values."})
	require.NoError(t, err)

	p := docgen.New(docgen.Config{
		ContextLimit:    2,
		PreserveContext: true,
	}, nil, cs, gen, ds)

	result, err := p.Document(context.Background(), "calc.py", source)
	require.NoError(t, err)

	assert.Zero(t, cs.resets)
	require.Len(t, result.Docs, 2)
	require.Len(t, gen.contexts, 2)
	assert.Contains(t, gen.contexts[0], "Reference page: add combines two values.")
}

func TestDocumentNoFunctions(t *testing.T) {
	p, cs, _ := newPipeline(t)

	result, err := p.Document(context.Background(), "empty.py", "x = 1\n")
	require.NoError(t, err)
	assert.Empty(t, result.Docs)
	assert.Zero(t, cs.resets)
}

func TestDocumentEmitsProgress(t *testing.T) {
	var events []docgen.Progress
	cs := &fakeContextStore{}
	gen := &fakeGenerator{}

	ds, err := docstore.New(filepath.Join(t.TempDir(), "documentation.json"))
	require.NoError(t, err)

	p := docgen.New(docgen.Config{
		OnProgress: func(pr docgen.Progress) { events = append(events, pr) },
	}, nil, cs, gen, ds)

	_, err = p.Document(context.Background(), "calc.py", source)
	require.NoError(t, err)

	stages := make(map[docgen.Stage]bool)
	for _, e := range events {
		stages[e.Stage] = true
	}
	for _, want := range []docgen.Stage{
		docgen.StageParse, docgen.StageIndex, docgen.StageRetrieve,
		docgen.StageGenerate, docgen.StageSave,
	} {
		assert.True(t, stages[want], "missing stage %s", want)
	}
}
