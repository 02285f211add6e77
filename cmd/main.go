package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/internal/types"
	cfgPkg "github.com/xhad/scribe/pkg/config"
	"github.com/xhad/scribe/pkg/docgen"
	"github.com/xhad/scribe/pkg/docstore"
	"github.com/xhad/scribe/pkg/ingest"
	"github.com/xhad/scribe/pkg/llm"
	"github.com/xhad/scribe/pkg/processor"
	"github.com/xhad/scribe/pkg/store"
	"github.com/xhad/scribe/server"
)

type cliFlags struct {
	configPath string

	file       string
	ingestURL  string
	search     string
	exportMD   string
	exportJSON string
	stats      bool
	dump       bool
	clear      bool
	serve      bool

	model       string
	maxTokens   int
	temperature float64
	workers     int
	rateLimit   float64
	dbURL       string
	tableName   string
	vectorDim   int
	batchSize   int
	maxDepth    int
	chunkSize   int
	storePath   string
	persistent  bool
}

func main() {
	flags := parseFlags()

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(flags, cfg); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() cliFlags {
	var flags cliFlags

	flag.StringVar(&flags.configPath, "config", "", "Path to config file")

	flag.StringVar(&flags.file, "file", "", "Source file to document")
	flag.StringVar(&flags.ingestURL, "ingest-url", "", "Reference documentation URL to import as context")
	flag.StringVar(&flags.search, "search", "", "Search documented functions by name")
	flag.StringVar(&flags.exportMD, "export-md", "", "Write Markdown documentation to this path")
	flag.StringVar(&flags.exportJSON, "export-json", "", "Write JSON documentation to this path")
	flag.BoolVar(&flags.stats, "stats", false, "Show documentation store statistics")
	flag.BoolVar(&flags.dump, "dump", false, "Print the raw documentation store")
	flag.BoolVar(&flags.clear, "clear", false, "Clear the documentation store")
	flag.BoolVar(&flags.serve, "serve", false, "Start the WebSocket server")

	flag.StringVar(&flags.model, "model", "", "LLM model to use")
	flag.IntVar(&flags.maxTokens, "max-tokens", 0, "Maximum tokens for LLM response")
	flag.Float64Var(&flags.temperature, "temperature", 0, "LLM temperature")
	flag.IntVar(&flags.workers, "workers", 0, "Parallel generation workers")
	flag.Float64Var(&flags.rateLimit, "rate-limit", 0, "LLM requests per second")
	flag.StringVar(&flags.dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&flags.tableName, "table", "", "PostgreSQL table name")
	flag.IntVar(&flags.vectorDim, "vector-dim", 0, "Vector dimension")
	flag.IntVar(&flags.batchSize, "batch-size", 0, "Batch size for database operations")
	flag.IntVar(&flags.maxDepth, "max-depth", 0, "Maximum depth for reference imports")
	flag.IntVar(&flags.chunkSize, "chunk-size", 0, "Size of context chunks")
	flag.StringVar(&flags.storePath, "store", "", "Documentation store path")
	flag.BoolVar(&flags.persistent, "persistent", false, "Keep indexed context across runs")
	flag.Parse()

	return flags
}

// loadConfig layers file and environment config under any flags the
// user set explicitly.
func loadConfig(flags cliFlags) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.model != "" {
		cfg.LLM.Model = flags.model
	}
	if flags.maxTokens != 0 {
		cfg.LLM.MaxTokens = flags.maxTokens
	}
	if flags.temperature != 0 {
		cfg.LLM.Temperature = flags.temperature
	}
	if flags.workers != 0 {
		cfg.LLM.Workers = flags.workers
	}
	if flags.rateLimit != 0 {
		cfg.LLM.RateLimit = flags.rateLimit
	}
	if flags.dbURL != "" {
		cfg.Database.URL = flags.dbURL
	}
	if flags.tableName != "" {
		cfg.Database.TableName = flags.tableName
	}
	if flags.vectorDim != 0 {
		cfg.Database.VectorDim = flags.vectorDim
	}
	if flags.batchSize != 0 {
		cfg.Database.BatchSize = flags.batchSize
	}
	if flags.maxDepth != 0 {
		cfg.Ingest.MaxDepth = flags.maxDepth
	}
	if flags.chunkSize != 0 {
		cfg.Processor.ChunkSize = flags.chunkSize
	}
	if flags.storePath != "" {
		cfg.Store.Path = flags.storePath
	}
	if flags.persistent {
		cfg.Database.Persistent = true
	}

	return cfg, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// trackProgress mirrors an atomic counter into a progress bar until
// stopped. The returned stop function waits for the updater to exit, so
// nothing renders after it returns.
func trackProgress(counter *int32, set func(int)) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				set(int(atomic.LoadInt32(counter)))
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func run(flags cliFlags, cfg *cfgPkg.Config) error {
	docs, err := docstore.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open documentation store: %v", err)
	}

	switch {
	case flags.serve:
		srv, err := server.NewWSServer(cfg)
		if err != nil {
			return err
		}
		defer srv.Close()
		return srv.Run()

	case flags.clear:
		if err := docs.Clear(); err != nil {
			return err
		}
		color.Green("✓ Documentation store cleared")
		return nil

	case flags.stats:
		return printStats(docs)

	case flags.dump:
		out, err := json.MarshalIndent(docs.All(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case flags.search != "":
		return printSearch(docs, flags.search)

	case flags.exportMD != "" || flags.exportJSON != "":
		return exportDocs(docs, flags.exportMD, flags.exportJSON)

	case flags.file != "":
		return documentFile(flags, cfg, docs)

	case flags.ingestURL != "":
		color.Red("-ingest-url only applies together with -file")
		return fmt.Errorf("nothing to document")

	default:
		flag.Usage()
		return nil
	}
}

func documentFile(flags cliFlags, cfg *cfgPkg.Config, docs *docstore.DocStore) error {
	ctx := context.Background()

	// Read-only commands run without credentials; documenting needs the
	// full configuration.
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %s", e.Error())
		}
		return fmt.Errorf("invalid configuration")
	}

	content, err := os.ReadFile(flags.file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", flags.file, err)
	}

	spinner := getSpinner("🔌 Connecting to context store...")

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedder.Model,
		BaseURL: cfg.Embedder.BaseURL,
	})
	if err != nil {
		spinner.Finish()
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
		Persistent: cfg.Database.Persistent,
	}, embedder)
	spinner.Finish()
	if err != nil {
		return fmt.Errorf("failed to initialize context store: %v", err)
	}
	defer vectorStore.Close()

	// Optional reference import before documenting. The session is
	// reset first and preserved through the pipeline so the imported
	// pages stay retrievable during generation.
	if flags.ingestURL != "" {
		if err := vectorStore.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset context store: %v", err)
		}
		if err := importReference(ctx, cfg, vectorStore, flags.ingestURL); err != nil {
			return err
		}
	}

	var generated int32
	generator, err := llm.NewWithConfig(llm.GeneratorConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Workers:     cfg.LLM.Workers,
		RateLimit:   cfg.LLM.RateLimit,
		OnProgress: func(string) {
			atomic.AddInt32(&generated, 1)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %v", err)
	}

	color.Blue("\nDocumenting %s\n", flags.file)

	pipeline := docgen.New(docgen.Config{
		PreserveContext: flags.ingestURL != "",
		OnProgress: func(p docgen.Progress) {
			switch p.Stage {
			case docgen.StageParse:
				color.Green("✓ Found %d functions", p.Total)
			case docgen.StageIndex:
				color.Green("✓ Indexed %d docstrings as context", p.Current)
			}
		},
	}, nil, vectorStore, generator, docs)

	generationBar := getProgressBar(-1, "🤖 Generating documentation...")
	stopTracking := trackProgress(&generated, func(n int) {
		generationBar.Set(n)
	})

	result, err := pipeline.Document(ctx, filepath.Base(flags.file), string(content))
	stopTracking()
	generationBar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	if len(result.Docs) == 0 {
		color.Yellow("No functions found in %s", flags.file)
		return nil
	}

	printDocs(result.Docs)
	color.Green("\n✓ Documented %d functions in %s\n", len(result.Docs), result.Entry.Filename)
	return nil
}

func importReference(ctx context.Context, cfg *cfgPkg.Config, vectorStore *store.VectorStore, url string) error {
	var fetched int32
	ingester := ingest.NewWithConfig(types.IngestConfig{
		MaxDepth:          cfg.Ingest.MaxDepth,
		RateLimit:         cfg.Ingest.RateLimit,
		IgnorePatterns:    cfg.Ingest.IgnorePatterns,
		AllowedExtensions: cfg.Ingest.AllowedExtensions,
		OnProgress: func(string) {
			atomic.AddInt32(&fetched, 1)
		},
	})

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})

	bar := getProgressBar(-1, "📄 Importing reference documentation...")
	stopTracking := trackProgress(&fetched, func(n int) {
		bar.Set(n)
	})

	pages, err := ingester.IngestInto(ctx, url, &proc, vectorStore)
	stopTracking()
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to import %s: %v", url, err)
	}

	color.Green("\n✓ Imported %d reference pages\n", pages)
	return nil
}

func printDocs(docs []models.FunctionDoc) {
	heading := color.New(color.FgCyan, color.Bold).PrintfFunc()
	label := color.New(color.FgBlue).PrintfFunc()

	for _, item := range docs {
		d := item.Documentation
		fmt.Println()
		heading("%s\n", item.Function)

		if d.Failed() {
			color.Red("  generation failed: %s", d.Error)
			continue
		}

		fmt.Printf("  %s\n", d.Description)
		if len(d.Parameters) > 0 {
			label("  Parameters:\n")
			for _, p := range d.Parameters {
				fmt.Printf("    - %s\n", p.String())
			}
		}
		label("  Returns: ")
		fmt.Println(d.Returns)
		if d.Example != "" {
			label("  Example: ")
			fmt.Println(d.Example)
		}
		if d.Notes != "" {
			label("  Notes: ")
			fmt.Println(d.Notes)
		}
	}
}

func printStats(docs *docstore.DocStore) error {
	stats := docs.Stats()

	color.Cyan("Documentation store")
	fmt.Printf("  Files:     %d\n", stats.TotalFiles)
	fmt.Printf("  Functions: %d\n", stats.TotalFunctions)

	if len(stats.Languages) > 0 {
		langs := make([]string, 0, len(stats.Languages))
		for lang := range stats.Languages {
			langs = append(langs, lang)
		}
		sort.Strings(langs)

		fmt.Println("  Languages:")
		for _, lang := range langs {
			fmt.Printf("    %s %s: %d\n", docstore.Icon(lang), lang, stats.Languages[lang])
		}
	}

	if len(stats.RecentFiles) > 0 {
		fmt.Println("  Recent:")
		for _, f := range stats.RecentFiles {
			fmt.Printf("    %s (%d functions, %s)\n", f.Filename, f.Functions, f.Timestamp)
		}
	}

	return nil
}

func printSearch(docs *docstore.DocStore, query string) error {
	results := docs.Search(query)
	if len(results) == 0 {
		color.Yellow("No functions matching %q", query)
		return nil
	}

	for _, r := range results {
		color.Cyan("%s (%s)", r.Function, r.File)
		if r.Documentation.Description != "" {
			fmt.Printf("  %s\n", r.Documentation.Description)
		}
	}
	return nil
}

func exportDocs(docs *docstore.DocStore, mdPath, jsonPath string) error {
	schema := docs.All()
	if len(schema.Files) == 0 {
		color.Yellow("Nothing to export")
		return nil
	}

	var all []models.FunctionDoc
	for _, f := range schema.Files {
		all = append(all, f.Functions...)
	}

	if mdPath != "" {
		if err := os.WriteFile(mdPath, []byte(docstore.Markdown(all)), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %v", mdPath, err)
		}
		color.Green("✓ Wrote %s", mdPath)
	}

	if jsonPath != "" {
		out, err := docstore.JSON(all)
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonPath, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %v", jsonPath, err)
		}
		color.Green("✓ Wrote %s", jsonPath)
	}

	return nil
}
