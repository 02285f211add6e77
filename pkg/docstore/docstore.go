package docstore

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xhad/scribe/internal/models"
)

// DocStore persists generated documentation in a single JSON file.
// Writes go through a temp file and an atomic rename, so a crash never
// leaves a half-written store; unreadable files are backed up and the
// store starts over.
type DocStore struct {
	path string
	mu   sync.Mutex
}

var languageMap = map[string]string{
	".py":   "Python",
	".js":   "JavaScript",
	".ts":   "TypeScript",
	".java": "Java",
	".cpp":  "C++",
	".c":    "C",
	".go":   "Go",
	".rs":   "Rust",
	".rb":   "Ruby",
	".php":  "PHP",
}

var languageIcons = map[string]string{
	"Python":     "🐍",
	"JavaScript": "🟨",
	"TypeScript": "🔷",
	"Java":       "☕",
	"C++":        "⚙️",
	"C":          "🔧",
	"Go":         "🐹",
	"Rust":       "🦀",
	"Ruby":       "💎",
	"PHP":        "🐘",
	"Unknown":    "📄",
}

func New(path string) (*DocStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path: %v", err)
	}

	ds := &DocStore{path: abs}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %v", err)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if err := ds.save(emptySchema()); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

func emptySchema() models.StoreSchema {
	return models.StoreSchema{
		Metadata: models.StoreMetadata{
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Languages: []string{},
		},
		Files: []models.FileEntry{},
	}
}

// Language maps a filename to its language label by extension.
func Language(filename string) string {
	if lang, ok := languageMap[strings.ToLower(filepath.Ext(filename))]; ok {
		return lang
	}
	return "Unknown"
}

// Icon returns the display icon for a language label.
func Icon(language string) string {
	if icon, ok := languageIcons[language]; ok {
		return icon
	}
	return languageIcons["Unknown"]
}

// Add records documentation for a file, replacing any entry with the
// same content hash. Every doc must carry a function name.
func (ds *DocStore) Add(filename, content string, sizeBytes int, docs []models.FunctionDoc) (models.FileEntry, error) {
	for i, doc := range docs {
		if doc.Function == "" {
			return models.FileEntry{}, fmt.Errorf("documentation[%d] missing function name", i)
		}
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	schema := ds.load()

	hash := hashContent(content)
	language := Language(filename)

	entry := models.FileEntry{
		ID:            hash[:12],
		Filename:      filename,
		Language:      language,
		LanguageIcon:  Icon(language),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		FileSizeBytes: sizeBytes,
		FileHash:      hash,
		FunctionCount: len(docs),
		Functions:     docs,
	}

	replaced := false
	for i, f := range schema.Files {
		if f.FileHash == hash {
			schema.Files[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		schema.Files = append(schema.Files, entry)
	}

	if err := ds.save(schema); err != nil {
		return models.FileEntry{}, err
	}

	return entry, nil
}

// Get returns the documentation for a filename.
func (ds *DocStore) Get(filename string) (models.FileEntry, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	schema := ds.load()
	for _, f := range schema.Files {
		if f.Filename == filename {
			return f, true
		}
	}
	return models.FileEntry{}, false
}

// All returns the whole store.
func (ds *DocStore) All() models.StoreSchema {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.load()
}

// Search finds functions whose name contains the query, across files.
func (ds *DocStore) Search(query string) []models.SearchResult {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	schema := ds.load()
	queryLower := strings.ToLower(query)

	var results []models.SearchResult
	for _, file := range schema.Files {
		for _, fn := range file.Functions {
			if strings.Contains(strings.ToLower(fn.Function), queryLower) {
				results = append(results, models.SearchResult{
					File:          file.Filename,
					Function:      fn.Function,
					Documentation: fn.Documentation,
				})
			}
		}
	}
	return results
}

// RecentFile is a stats row for a recently documented file.
type RecentFile struct {
	Filename  string `json:"filename"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
	Functions int    `json:"functions"`
}

// StoreStats summarizes the store.
type StoreStats struct {
	TotalFiles     int            `json:"total_files"`
	TotalFunctions int            `json:"total_functions"`
	Languages      map[string]int `json:"languages"`
	RecentFiles    []RecentFile   `json:"recent_files"`
}

func (ds *DocStore) Stats() StoreStats {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	schema := ds.load()

	stats := StoreStats{
		TotalFiles:     len(schema.Files),
		TotalFunctions: schema.Metadata.TotalFunctions,
		Languages:      make(map[string]int),
	}

	for _, f := range schema.Files {
		stats.Languages[f.Language]++
	}

	sorted := append([]models.FileEntry{}, schema.Files...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})
	for i, f := range sorted {
		if i == 5 {
			break
		}
		stats.RecentFiles = append(stats.RecentFiles, RecentFile{
			Filename:  f.Filename,
			Language:  f.Language,
			Timestamp: f.Timestamp,
			Functions: f.FunctionCount,
		})
	}

	return stats
}

// Clear resets the store to empty.
func (ds *DocStore) Clear() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.save(emptySchema())
}

// load reads the store with recovery: legacy list layouts are
// migrated, partially valid files keep their valid entries, and
// unparseable JSON is backed up before starting over. It never fails.
func (ds *DocStore) load() models.StoreSchema {
	data, err := os.ReadFile(ds.path)
	if err != nil {
		return emptySchema()
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return emptySchema()
	}

	// Legacy layout: a bare list of file entries.
	if strings.HasPrefix(trimmed, "[") {
		return migrateLegacyList(data)
	}

	var schema models.StoreSchema
	if err := json.Unmarshal(data, &schema); err == nil {
		if schema.Files == nil {
			schema.Files = []models.FileEntry{}
		}
		return schema
	}

	if recovered, ok := recoverPartial(data); ok {
		return recovered
	}

	ds.backupCorrupted()
	return emptySchema()
}

func migrateLegacyList(data []byte) models.StoreSchema {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return emptySchema()
	}

	schema := emptySchema()
	for _, item := range raw {
		var entry models.FileEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		// A function record masquerading as a file entry has none of
		// these set.
		if entry.ID == "" || entry.Filename == "" || entry.FileHash == "" {
			continue
		}
		schema.Files = append(schema.Files, entry)
	}
	return schema
}

func recoverPartial(data []byte) (models.StoreSchema, bool) {
	var loose struct {
		Metadata models.StoreMetadata `json:"metadata"`
		Files    []json.RawMessage    `json:"files"`
	}
	if err := json.Unmarshal(data, &loose); err != nil {
		return models.StoreSchema{}, false
	}

	schema := emptySchema()
	schema.Metadata = loose.Metadata
	for _, item := range loose.Files {
		var entry models.FileEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		if entry.ID == "" || entry.Filename == "" || entry.FileHash == "" {
			continue
		}
		schema.Files = append(schema.Files, entry)
	}

	return schema, len(schema.Files) > 0
}

func (ds *DocStore) backupCorrupted() {
	backup := fmt.Sprintf("%s.corrupted.%s.json",
		ds.path, time.Now().UTC().Format("20060102_150405"))
	_ = os.Rename(ds.path, backup)
}

// save refreshes metadata and writes atomically.
func (ds *DocStore) save(schema models.StoreSchema) error {
	schema.Metadata.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	schema.Metadata.TotalFiles = len(schema.Files)

	total := 0
	langSet := make(map[string]bool)
	for _, f := range schema.Files {
		total += f.FunctionCount
		langSet[f.Language] = true
	}
	schema.Metadata.TotalFunctions = total

	languages := make([]string, 0, len(langSet))
	for lang := range langSet {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	schema.Metadata.Languages = languages

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %v", err)
	}

	tmp := ds.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store: %v", err)
	}
	if err := os.Rename(tmp, ds.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace store: %v", err)
	}

	return nil
}

func hashContent(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
