package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xhad/scribe/internal/models"
)

// Parser extracts function units from Python source. It scans def and
// async def at any indentation, captures parameters and return
// annotations, pulls the docstring, and keeps a truncated source
// snippet for prompting.
type Parser struct {
	config ParserConfig
}

type ParserConfig struct {
	// MaxSourceLines caps the snippet kept per function.
	MaxSourceLines int
	// MaxSignatureLines caps how many continuation lines a def
	// signature may span before the scanner gives up on it.
	MaxSignatureLines int
}

var (
	defRe      = regexp.MustCompile(`^(\s*)(async\s+)?def\s+(\w+)\s*\(`)
	artifactRe = regexp.MustCompile(`\[(?:cite|ref|source):[^\]]*\]`)
)

func NewWithConfig(config ParserConfig) *Parser {
	if config.MaxSourceLines == 0 {
		config.MaxSourceLines = 25
	}
	if config.MaxSignatureLines == 0 {
		config.MaxSignatureLines = 10
	}
	return &Parser{config: config}
}

func New() *Parser {
	return NewWithConfig(ParserConfig{})
}

func (p *Parser) ParseFile(path string) ([]models.Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}

	return p.Parse(CleanContent(string(data))), nil
}

// CleanContent sanitizes raw file bytes before scanning: invalid UTF-8
// is dropped and citation artifacts left by document tooling are
// removed.
func CleanContent(content string) string {
	content = sanitizeUTF8(content)
	return artifactRe.ReplaceAllString(content, "")
}

// Parse never fails: it returns every function unit the scanner can
// find, or an empty slice.
func (p *Parser) Parse(content string) []models.Function {
	lines := strings.Split(content, "\n")
	var functions []models.Function

	for i := 0; i < len(lines); i++ {
		m := defRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}

		sig, sigLines, ok := p.collectSignature(lines, i)
		if !ok {
			continue
		}

		name := m[3]
		params, returns := splitSignature(sig)

		fn := models.Function{
			Name:      name,
			Params:    params,
			Returns:   returns,
			Docstring: extractDocstring(lines, i+sigLines),
			Source:    p.extractSource(lines, i, len(m[1])),
			Line:      i + 1,
		}
		functions = append(functions, fn)
	}

	return functions
}

// collectSignature joins a def header that may span several lines and
// returns the text between the parameter parentheses plus everything
// up to the closing colon.
func (p *Parser) collectSignature(lines []string, start int) (string, int, bool) {
	var sig strings.Builder
	depth := 0
	seenOpen := false

	for n := 0; n < p.config.MaxSignatureLines && start+n < len(lines); n++ {
		line := lines[start+n]

		for _, r := range line {
			switch r {
			case '(', '[', '{':
				depth++
				seenOpen = true
			case ')', ']', '}':
				depth--
			}
		}
		sig.WriteString(strings.TrimRight(line, " \t"))
		sig.WriteString(" ")

		if seenOpen && depth == 0 {
			header := sig.String()
			if !strings.Contains(header, ":") {
				// Closed parens but no body marker yet; keep going.
				continue
			}
			return header, n + 1, true
		}
	}

	return "", 0, false
}

// splitSignature pulls the parameter list and return annotation out of
// a joined def header.
func splitSignature(sig string) ([]string, string) {
	open := strings.Index(sig, "(")
	if open < 0 {
		return nil, ""
	}

	depth := 0
	closing := -1
	for i := open; i < len(sig); i++ {
		switch sig[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				closing = i
			}
		}
		if closing >= 0 {
			break
		}
	}
	if closing < 0 {
		return nil, ""
	}

	params := splitParams(sig[open+1 : closing])

	rest := sig[closing+1:]
	returns := ""
	if arrow := strings.Index(rest, "->"); arrow >= 0 {
		returns = rest[arrow+2:]
		if colon := strings.LastIndex(returns, ":"); colon >= 0 {
			returns = returns[:colon]
		}
		returns = strings.TrimSpace(returns)
	}

	return params, returns
}

// splitParams splits on top-level commas only, so annotations like
// Dict[str, int] and default tuples survive intact.
func splitParams(raw string) []string {
	var params []string
	depth := 0
	current := strings.Builder{}

	flush := func() {
		p := strings.TrimSpace(current.String())
		if p != "" {
			params = append(params, p)
		}
		current.Reset()
	}

	for _, r := range raw {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		}
		current.WriteRune(r)
	}
	flush()

	return params
}

// extractDocstring reads a triple-quoted string starting at the first
// non-blank line after the signature and normalizes it: surrounding
// blank lines dropped, each line trimmed.
func extractDocstring(lines []string, bodyStart int) string {
	i := bodyStart
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) {
		return ""
	}

	line := strings.TrimSpace(lines[i])
	quote := ""
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(line, q) {
			quote = q
			break
		}
	}
	if quote == "" {
		return ""
	}

	body := line[len(quote):]
	if end := strings.Index(body, quote); end >= 0 {
		// Single-line docstring.
		return normalizeDocstring(body[:end])
	}

	collected := []string{body}
	for j := i + 1; j < len(lines); j++ {
		if end := strings.Index(lines[j], quote); end >= 0 {
			collected = append(collected, lines[j][:end])
			return normalizeDocstring(strings.Join(collected, "\n"))
		}
		collected = append(collected, lines[j])
	}

	// Unterminated docstring; treat as absent.
	return ""
}

func normalizeDocstring(ds string) string {
	lines := strings.Split(ds, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// extractSource keeps the function body from the def line until the
// first non-blank line back at or left of the def indentation, capped
// at MaxSourceLines with a truncation marker.
func (p *Parser) extractSource(lines []string, start, indent int) string {
	end := start + 1
	for ; end < len(lines); end++ {
		trimmed := strings.TrimSpace(lines[end])
		if trimmed == "" {
			continue
		}
		if indentOf(lines[end]) <= indent {
			break
		}
	}

	block := lines[start:end]
	if len(block) > p.config.MaxSourceLines {
		block = append([]string{}, block[:p.config.MaxSourceLines]...)
		block = append(block, "    # ... truncated")
	}

	return strings.Join(block, "\n")
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
