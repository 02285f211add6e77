package models

import (
	"encoding/json"
	"strings"
)

// Function is a single callable unit extracted from a source file.
type Function struct {
	Name      string   `json:"name"`
	Params    []string `json:"args"`
	Returns   string   `json:"returns,omitempty"`
	Docstring string   `json:"docstring"`
	Source    string   `json:"source"`
	Line      int      `json:"lineno"`
}

// Parameter is one documented parameter. The model returns either a
// plain string ("name: explanation") or an object with name/type/
// description, so both forms round-trip.
type Parameter struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Raw         string `json:"-"`
}

func (p *Parameter) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Raw = s
		return nil
	}

	type alias Parameter
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Parameter(a)
	return nil
}

func (p Parameter) MarshalJSON() ([]byte, error) {
	if p.Raw != "" {
		return json.Marshal(p.Raw)
	}
	type alias Parameter
	return json.Marshal(alias(p))
}

// String renders the parameter for display regardless of which form
// the model produced.
func (p Parameter) String() string {
	if p.Raw != "" {
		return p.Raw
	}

	var b strings.Builder
	b.WriteString(p.Name)
	if p.Type != "" {
		b.WriteString(" (" + p.Type + ")")
	}
	if p.Description != "" {
		b.WriteString(": " + p.Description)
	}
	return b.String()
}

// Documentation is the structured record generated for one function.
type Documentation struct {
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Returns     string      `json:"returns"`
	Example     string      `json:"example"`
	Notes       string      `json:"notes"`

	// Set instead of the fields above when generation failed.
	Error   string `json:"error,omitempty"`
	Raw     string `json:"raw,omitempty"`
	Cleaned string `json:"cleaned,omitempty"`
}

func (d Documentation) Failed() bool {
	return d.Error != ""
}
