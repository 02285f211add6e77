package models

// Document is a unit of reference text indexed for retrieval: an
// existing docstring, a code snippet, or a page imported from an
// external documentation site.
type Document struct {
	ID       string
	Source   string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks    []string
	Embedding [][]float32
}
