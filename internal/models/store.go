package models

// FunctionDoc pairs a function name with its generated documentation.
type FunctionDoc struct {
	Function      string        `json:"function"`
	Documentation Documentation `json:"documentation"`
}

// FileEntry is one documented source file in the store.
type FileEntry struct {
	ID            string        `json:"id"`
	Filename      string        `json:"filename"`
	Language      string        `json:"language"`
	LanguageIcon  string        `json:"language_icon"`
	Timestamp     string        `json:"timestamp"`
	FileSizeBytes int           `json:"file_size_bytes"`
	FileHash      string        `json:"file_hash"`
	FunctionCount int           `json:"function_count"`
	Functions     []FunctionDoc `json:"functions"`
}

type StoreMetadata struct {
	CreatedAt      string   `json:"created_at"`
	LastUpdated    string   `json:"last_updated,omitempty"`
	TotalFiles     int      `json:"total_files"`
	TotalFunctions int      `json:"total_functions"`
	Languages      []string `json:"languages"`
}

// StoreSchema is the on-disk layout of the documentation store.
type StoreSchema struct {
	Metadata StoreMetadata `json:"metadata"`
	Files    []FileEntry   `json:"files"`
}

// SearchResult is one hit from a function-name search across files.
type SearchResult struct {
	File          string        `json:"file"`
	Function      string        `json:"function"`
	Documentation Documentation `json:"documentation"`
}
