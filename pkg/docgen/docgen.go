package docgen

import (
	"context"
	"fmt"

	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/pkg/parser"
)

// Stage names a pipeline phase, reported through OnProgress.
type Stage string

const (
	StageParse    Stage = "parse"
	StageIndex    Stage = "index"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
	StageSave     Stage = "save"
)

// Progress is one pipeline progress event.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	Detail  string
}

// ContextStore is the retrieval surface the pipeline needs.
type ContextStore interface {
	Add(ctx context.Context, texts []string) (int, error)
	QueryText(ctx context.Context, text string, limit int) ([]models.Document, error)
	Reset(ctx context.Context) error
}

// Generator documents a batch of functions.
type Generator interface {
	GenerateBatch(ctx context.Context, fns []models.Function, contexts [][]string) []models.Documentation
}

// DocWriter persists the generated records.
type DocWriter interface {
	Add(filename, content string, sizeBytes int, docs []models.FunctionDoc) (models.FileEntry, error)
}

type Config struct {
	// ContextLimit is the number of retrieved snippets per function.
	ContextLimit int
	// PreserveContext keeps the current session instead of resetting it
	// per file, so reference documentation imported before the run stays
	// retrievable during generation.
	PreserveContext bool
	OnProgress      func(Progress)
}

// Pipeline runs a source file end to end: parse, index docstrings as
// retrieval context, retrieve per function, generate in parallel,
// persist.
type Pipeline struct {
	config    Config
	parser    *parser.Parser
	store     ContextStore
	generator Generator
	docs      DocWriter
}

func New(config Config, p *parser.Parser, store ContextStore, generator Generator, docs DocWriter) *Pipeline {
	if config.ContextLimit == 0 {
		config.ContextLimit = 2
	}
	if p == nil {
		p = parser.New()
	}

	return &Pipeline{
		config:    config,
		parser:    p,
		store:     store,
		generator: generator,
		docs:      docs,
	}
}

// Result is the outcome of documenting one file.
type Result struct {
	Entry     models.FileEntry
	Functions []models.Function
	Docs      []models.FunctionDoc
	// Indexed is how many docstrings went into the context store.
	Indexed int
}

// Document runs the pipeline for one file. A file with no functions
// returns an empty result, not an error; individual generation
// failures come back as error records inside Docs.
func (p *Pipeline) Document(ctx context.Context, filename, content string) (Result, error) {
	cleaned := parser.CleanContent(content)

	functions := p.parser.Parse(cleaned)
	p.emit(Progress{Stage: StageParse, Current: len(functions), Total: len(functions)})

	if len(functions) == 0 {
		return Result{}, nil
	}

	// Fresh session per file so context never leaks between files,
	// unless the caller imported context it wants kept.
	if !p.config.PreserveContext {
		if err := p.store.Reset(ctx); err != nil {
			return Result{}, fmt.Errorf("failed to reset context store: %w", err)
		}
	}

	var docstrings []string
	for _, fn := range functions {
		if fn.Docstring != "" {
			docstrings = append(docstrings, fn.Docstring)
		}
	}

	indexed := 0
	if len(docstrings) > 0 {
		n, err := p.store.Add(ctx, docstrings)
		if err != nil {
			return Result{}, fmt.Errorf("failed to index context: %w", err)
		}
		indexed = n
	}
	p.emit(Progress{Stage: StageIndex, Current: indexed, Total: len(docstrings)})

	contexts := make([][]string, len(functions))
	for i, fn := range functions {
		docs, err := p.store.QueryText(ctx, fn.Source, p.config.ContextLimit)
		if err != nil {
			// Retrieval failure degrades to no context, as a missing
			// docstring would.
			docs = nil
		}
		for _, doc := range docs {
			contexts[i] = append(contexts[i], doc.Content)
		}
		p.emit(Progress{Stage: StageRetrieve, Current: i + 1, Total: len(functions), Detail: fn.Name})
	}

	generated := p.generator.GenerateBatch(ctx, functions, contexts)
	p.emit(Progress{Stage: StageGenerate, Current: len(generated), Total: len(functions)})

	docs := make([]models.FunctionDoc, len(functions))
	for i, fn := range functions {
		docs[i] = models.FunctionDoc{
			Function:      fn.Name,
			Documentation: generated[i],
		}
	}

	entry, err := p.docs.Add(filename, content, len(content), docs)
	if err != nil {
		return Result{}, fmt.Errorf("failed to save documentation: %w", err)
	}
	p.emit(Progress{Stage: StageSave, Current: 1, Total: 1, Detail: filename})

	return Result{
		Entry:     entry,
		Functions: functions,
		Docs:      docs,
		Indexed:   indexed,
	}, nil
}

func (p *Pipeline) emit(progress Progress) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(progress)
	}
}
