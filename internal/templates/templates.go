// Package templates holds the catalog of starting documents offered when
// writing a charge.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"

	"github.com/yuin/goldmark"
)

//go:embed catalog/*.md
var sources embed.FS

var ErrUnknownTemplate = errors.New("unknown template")

const BlankID = "blank"

type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

type entry struct {
	id          string
	name        string
	description string
}

// Display order of the picker. Every entry except blank has a
// catalog/<id>.md source.
var entries = []entry{
	{BlankID, "Blank document", "Start from an empty page"},
	{"pastoral-letter", "Pastoral letter", "Letter to the clergy and people of the Diocese"},
	{"episcopal-charge", "Episcopal charge", "Formal charge delivered to Synod"},
	{"synod-address", "Synod address", "Presidential address opening a Synod session"},
	{"lenten-message", "Lenten message", "Seasonal message for Lent"},
	{"advent-christmas-message", "Advent & Christmas message", "Seasonal message for Advent and Christmas"},
	{"ordination-charge", "Ordination charge", "Charge to candidates for ordination"},
}

type Catalog struct {
	templates []Template
	byID      map[string]int
}

// NewCatalog renders every Markdown source to HTML.
func NewCatalog() (*Catalog, error) {
	md := goldmark.New()
	c := &Catalog{byID: make(map[string]int, len(entries))}
	for _, e := range entries {
		content := "<p></p>"
		if e.id != BlankID {
			src, err := sources.ReadFile("catalog/" + e.id + ".md")
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", e.id, err)
			}
			var buf bytes.Buffer
			if err := md.Convert(src, &buf); err != nil {
				return nil, fmt.Errorf("render template %s: %w", e.id, err)
			}
			content = buf.String()
		}
		c.byID[e.id] = len(c.templates)
		c.templates = append(c.templates, Template{
			ID:          e.id,
			Name:        e.name,
			Description: e.description,
			Content:     content,
		})
	}
	return c, nil
}

// MustCatalog is NewCatalog for package-level setup; the sources are
// embedded so a failure is a build defect.
func MustCatalog() *Catalog {
	c, err := NewCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) List() []Template {
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

func (c *Catalog) Get(id string) (Template, error) {
	i, ok := c.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return c.templates[i], nil
}

// Picker hands the markup of a chosen template to OnSelect unchanged.
type Picker struct {
	Catalog  *Catalog
	OnSelect func(content string) error
}

func (p Picker) Select(id string) error {
	t, err := p.Catalog.Get(id)
	if err != nil {
		return err
	}
	if p.OnSelect == nil {
		return nil
	}
	return p.OnSelect(t.Content)
}
