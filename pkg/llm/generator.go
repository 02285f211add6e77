package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/xhad/scribe/internal/models"
)

func init() {
	// Offline BPE loader so token counting needs no network access.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// GeneratorConfig configures the documentation generator. The API is
// OpenAI-compatible; Groq is the default endpoint.
type GeneratorConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Workers     int
	RateLimit   float64 // requests per second
	// ContextTokenBudget caps the retrieved context attached to a
	// prompt, measured with cl100k_base.
	ContextTokenBudget int
	// OnProgress is called once per function in batch generation.
	OnProgress func(name string)
}

// Generator turns parsed function units into structured documentation
// records via chat completions constrained to raw JSON output.
type Generator struct {
	config   GeneratorConfig
	llm      llms.Model
	limiter  *rate.Limiter
	encoding *tiktoken.Tiktoken
}

const systemPrompt = "You are a code documentation expert. Always respond with ONLY valid JSON, no markdown formatting, no code blocks, no backticks."

func NewWithConfig(config GeneratorConfig) (*Generator, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not found in environment variables")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.Model == "" {
		config.Model = "llama-3.3-70b-versatile"
	}
	if config.Temperature <= 0 || config.Temperature > 2 {
		config.Temperature = 0.3
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 1.0
	}
	if config.ContextTokenBudget == 0 {
		config.ContextTokenBudget = 1500
	}

	client, err := openai.New(
		openai.WithModel(config.Model),
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}

	return &Generator{
		config:   config,
		llm:      client,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		encoding: encoding,
	}, nil
}

// Generate produces documentation for one function. Failures come back
// as an error record instead of an error so one bad function never
// aborts a whole file.
func (g *Generator) Generate(ctx context.Context, fn models.Function, contextDocs []string) models.Documentation {
	if err := g.limiter.Wait(ctx); err != nil {
		return errorDoc(err.Error(), "")
	}

	prompt := g.BuildPrompt(fn, contextDocs)

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	response, err := g.llm.GenerateContent(ctx, content,
		llms.WithTemperature(g.config.Temperature),
		llms.WithMaxTokens(g.config.MaxTokens))
	if err != nil {
		return errorDoc(fmt.Sprintf("chat error: %v", err), "")
	}

	if len(response.Choices) == 0 || response.Choices[0].Content == "" {
		return errorDoc("no response from model", "")
	}

	return ParseResponse(response.Choices[0].Content)
}

// Ping verifies the API key and endpoint with a minimal completion.
func (g *Generator) Ping(ctx context.Context) error {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, "Say 'OK'"),
	}

	response, err := g.llm.GenerateContent(ctx, content, llms.WithMaxTokens(10))
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	if len(response.Choices) == 0 || response.Choices[0].Content == "" {
		return fmt.Errorf("connection test returned empty response")
	}
	return nil
}

// CountTokens measures text against the generator's encoding.
func (g *Generator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(g.encoding.Encode(text, nil, nil))
}

// BuildPrompt assembles the user message: function facts, source, and
// up to three retrieved context snippets trimmed to the token budget.
func (g *Generator) BuildPrompt(fn models.Function, contextDocs []string) string {
	params := "None"
	if len(fn.Params) > 0 {
		params = strings.Join(fn.Params, ", ")
	}

	returns := fn.Returns
	if returns == "" {
		returns = "Not specified"
	}

	docstring := fn.Docstring
	if docstring == "" {
		docstring = "None"
	}

	contextSection := g.buildContextSection(contextDocs)

	return fmt.Sprintf(`Generate documentation for this Python function. Return ONLY a JSON object with NO markdown formatting, NO code blocks, NO backticks.

FUNCTION TO DOCUMENT:
Name: %s
Parameters: %s
Return Type: %s
Existing Docstring: %s

SOURCE CODE:
%s
%s

Return ONLY this exact JSON structure with no extra formatting:
{
  "description": "Brief 1-2 sentence explanation of what the function does",
  "parameters": ["param1: explanation", "param2: explanation"],
  "returns": "What the function returns",
  "example": "function_name(arg1, arg2)",
  "notes": "Any additional important details or edge cases"
}

CRITICAL: Return ONLY the JSON object above. Do NOT wrap it in a code block or any markdown. Just the raw JSON.`,
		fn.Name, params, returns, docstring, fn.Source, contextSection)
}

func (g *Generator) buildContextSection(contextDocs []string) string {
	if len(contextDocs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nRELEVANT CODEBASE CONTEXT:\n")

	budget := g.config.ContextTokenBudget
	included := 0
	for _, doc := range contextDocs {
		if included == 3 {
			break
		}
		if len(doc) > 200 {
			doc = doc[:200]
		}
		cost := g.CountTokens(doc)
		if included > 0 && cost > budget {
			break
		}
		budget -= cost
		b.WriteString("- " + doc + "\n")
		included++
	}

	return strings.TrimRight(b.String(), "\n")
}

var (
	fenceOpenRe   = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceCloseRe  = regexp.MustCompile("\\s*```$")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// CleanJSONResponse strips markdown fences and surrounding chatter so
// the remaining text is parseable JSON.
func CleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	cleaned = fenceOpenRe.ReplaceAllString(cleaned, "")
	cleaned = fenceCloseRe.ReplaceAllString(cleaned, "")

	// Drop any text before the first { and after the last }.
	if first := strings.Index(cleaned, "{"); first > 0 {
		cleaned = cleaned[first:]
	}
	if last := strings.LastIndex(cleaned, "}"); last > 0 {
		cleaned = cleaned[:last+1]
	}

	cleaned = trailingComma.ReplaceAllString(cleaned, "$1")

	return strings.TrimSpace(cleaned)
}

// ParseResponse parses a model response into a documentation record,
// filling defaults for missing fields. Unparseable output yields an
// error record carrying the raw and cleaned text for debugging.
func ParseResponse(response string) models.Documentation {
	if strings.TrimSpace(response) == "" {
		return errorDoc("empty response from model", "")
	}

	cleaned := CleanJSONResponse(response)

	var doc models.Documentation
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return models.Documentation{
			Error:   "model returned invalid JSON structure",
			Raw:     truncate(response, 500),
			Cleaned: truncate(cleaned, 500),
		}
	}

	if doc.Description == "" {
		doc.Description = "No description provided"
	}
	if doc.Returns == "" {
		doc.Returns = "Not specified"
	}
	doc.Error = ""
	doc.Raw = ""
	doc.Cleaned = ""

	return doc
}

func errorDoc(message, raw string) models.Documentation {
	return models.Documentation{
		Error: message,
		Raw:   truncate(raw, 500),
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
