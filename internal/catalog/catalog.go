package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Narrative structure catalog
// Static templates controlling how the planning instruction is phrased and
// which reference images a generation run requires. Loaded once at startup
// from the embedded YAML, optionally overlaid from a user-supplied file,
// and never mutated afterwards.
// ---------------------------------------------------------------------------

//go:embed structures.yaml
var defaultStructuresYAML []byte

// RefRole names a reference-image slot a structure may require.
type RefRole string

const (
	RefProduct RefRole = "product"
	RefModel   RefRole = "model"
)

// Structure is one catalog entry.
type Structure struct {
	ID             string    `yaml:"id" json:"id"`
	Name           string    `yaml:"name" json:"name"`
	Description    string    `yaml:"description" json:"description"`
	RequiredParts  []RefRole `yaml:"required_parts" json:"required_parts"`
	PromptTemplate string    `yaml:"prompt_template" json:"-"`

	tmpl *template.Template
}

// Requires reports whether the structure declares the given reference role.
func (s *Structure) Requires(role RefRole) bool {
	for _, r := range s.RequiredParts {
		if r == role {
			return true
		}
	}
	return false
}

// PromptInput feeds a structure's planning-prompt template.
type PromptInput struct {
	ProductName string
	Brief       string
	SceneCount  int
}

// PlanningPrompt renders the structure's planning instruction.
func (s *Structure) PlanningPrompt(in PromptInput) (string, error) {
	var b strings.Builder
	if err := s.tmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("failed to render planning prompt for %q: %w", s.ID, err)
	}
	return strings.TrimSpace(b.String()), nil
}

type catalogFile struct {
	Structures []*Structure `yaml:"structures"`
}

// Catalog holds the loaded structures in declaration order.
type Catalog struct {
	structures []*Structure
	byID       map[string]*Structure
}

// Load parses the embedded default catalog.
func Load() (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Structure)}
	if err := c.merge(defaultStructuresYAML); err != nil {
		return nil, fmt.Errorf("failed to load built-in structures: %w", err)
	}
	return c, nil
}

// MergeFile overlays structures from a YAML file. Entries with a known ID
// replace the built-in one; new IDs are appended.
func (c *Catalog) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read structures file %s: %w", path, err)
	}
	if err := c.merge(data); err != nil {
		return fmt.Errorf("failed to parse structures file %s: %w", path, err)
	}
	return nil
}

func (c *Catalog) merge(data []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, s := range file.Structures {
		if s.ID == "" || s.Name == "" || s.PromptTemplate == "" {
			return fmt.Errorf("structure entry missing id, name, or prompt_template (id=%q)", s.ID)
		}
		for _, r := range s.RequiredParts {
			if r != RefProduct && r != RefModel {
				return fmt.Errorf("structure %q: unknown reference role %q", s.ID, r)
			}
		}
		tmpl, err := template.New(s.ID).Parse(s.PromptTemplate)
		if err != nil {
			return fmt.Errorf("structure %q: invalid prompt template: %w", s.ID, err)
		}
		s.tmpl = tmpl

		if existing, ok := c.byID[s.ID]; ok {
			*existing = *s
			c.byID[s.ID] = existing
			continue
		}
		c.structures = append(c.structures, s)
		c.byID[s.ID] = s
	}
	return nil
}

// Get looks a structure up by ID.
func (c *Catalog) Get(id string) (*Structure, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// List returns structures in declaration order.
func (c *Catalog) List() []*Structure {
	return c.structures
}

// Default returns the first structure, used when a request omits one.
func (c *Catalog) Default() *Structure {
	return c.structures[0]
}
