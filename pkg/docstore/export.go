package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/scribe/internal/models"
)

// Markdown renders function docs as a Markdown document. Failed
// records are skipped.
func Markdown(docs []models.FunctionDoc) string {
	var md strings.Builder

	md.WriteString("# API Documentation\n\n")
	md.WriteString(fmt.Sprintf("*Generated on %s*\n\n", time.Now().Format("2006-01-02 15:04:05")))
	md.WriteString("---\n\n")

	for _, item := range docs {
		d := item.Documentation
		if d.Failed() {
			continue
		}

		md.WriteString(fmt.Sprintf("## `%s`\n\n", item.Function))

		if d.Description != "" {
			md.WriteString(d.Description + "\n\n")
		}

		if len(d.Parameters) > 0 {
			md.WriteString("**Parameters:**\n\n")
			for _, p := range d.Parameters {
				md.WriteString("- `" + parameterLabel(p) + "`")
				if p.Raw == "" {
					if p.Type != "" {
						md.WriteString(fmt.Sprintf(" *(%s)*", p.Type))
					}
					if p.Description != "" {
						md.WriteString(": " + p.Description)
					}
				}
				md.WriteString("\n")
			}
			md.WriteString("\n")
		}

		if d.Returns != "" {
			md.WriteString(fmt.Sprintf("**Returns:** %s\n\n", d.Returns))
		}

		if d.Example != "" {
			md.WriteString("**Example:**\n\n")
			md.WriteString(fmt.Sprintf("```python\n%s\n```\n\n", d.Example))
		}

		if d.Notes != "" {
			md.WriteString(fmt.Sprintf("**Notes:** %s\n\n", d.Notes))
		}

		md.WriteString("---\n\n")
	}

	return md.String()
}

func parameterLabel(p models.Parameter) string {
	if p.Raw != "" {
		return p.Raw
	}
	return p.Name
}

// JSON renders function docs as indented JSON, the shape stored per
// file.
func JSON(docs []models.FunctionDoc) (string, error) {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode documentation: %v", err)
	}
	return string(data), nil
}
