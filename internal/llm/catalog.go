// Package llm holds the static catalog of language models the frontend can
// pick from, with their pricing and capability metadata.
package llm

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var embeddedCatalog []byte

const (
	TypeChat          = "chat"
	TypeEmbedding     = "embedding"
	TypeTranscription = "transcription"
)

type Model struct {
	ID              string   `yaml:"id" json:"id"`
	Provider        string   `yaml:"provider" json:"provider"`
	Name            string   `yaml:"name" json:"name"`
	Type            string   `yaml:"type" json:"type"`
	ContextWindow   int      `yaml:"context_window" json:"context_window,omitempty"`
	MaxOutputTokens int      `yaml:"max_output_tokens" json:"max_output_tokens,omitempty"`
	InputPer1M      float64  `yaml:"input_per_1m" json:"input_per_1m"`
	OutputPer1M     float64  `yaml:"output_per_1m" json:"output_per_1m"`
	AudioPerMinute  float64  `yaml:"audio_per_minute" json:"audio_per_minute,omitempty"`
	Capabilities    []string `yaml:"capabilities" json:"capabilities"`
}

func (m Model) Has(capability string) bool {
	return slices.Contains(m.Capabilities, capability)
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	models []Model
	byID   map[string]int
}

// Parse decodes a YAML catalog. Entries are kept as written; a repeated ID
// resolves to its last entry.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Models []Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	c := &Catalog{
		models: doc.Models,
		byID:   make(map[string]int, len(doc.Models)),
	}
	for i, m := range doc.Models {
		c.byID[m.ID] = i
	}
	return c, nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := Parse(embeddedCatalog)
	if err != nil {
		panic(err)
	}
	return c
})

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	return defaultCatalog()
}

// Load reads the catalog at path, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	return Parse(data)
}

// clone copies m deeply enough that callers cannot reach catalog memory.
func (m Model) clone() Model {
	m.Capabilities = slices.Clone(m.Capabilities)
	return m
}

// List returns copies of every model; callers may modify them freely.
func (c *Catalog) List() []Model {
	out := make([]Model, len(c.models))
	for i, m := range c.models {
		out[i] = m.clone()
	}
	return out
}

func (c *Catalog) Get(id string) (Model, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Model{}, false
	}
	return c.models[i].clone(), true
}

func (c *Catalog) ByProvider(provider string) []Model {
	var out []Model
	for _, m := range c.models {
		if m.Provider == provider {
			out = append(out, m.clone())
		}
	}
	return out
}

func (c *Catalog) ByType(typ string) []Model {
	var out []Model
	for _, m := range c.models {
		if m.Type == typ {
			out = append(out, m.clone())
		}
	}
	return out
}
