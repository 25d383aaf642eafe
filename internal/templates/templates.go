// Package templates holds the ticket template catalog and the renderer that
// turns a print job into header, body and footer lines.
package templates

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

// FallbackTemplate is used whenever a requested template is not registered.
const FallbackTemplate = "standard"

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Default   string           `yaml:"default"`
	Templates []model.Template `yaml:"templates"`
}

// Catalog is an immutable, ordered set of templates.
type Catalog struct {
	byName   map[string]model.Template
	order    []string
	fallback string
}

// TemplateInfo is the listing entry for one template.
type TemplateInfo struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	HeaderLines int    `json:"headerLines"`
	FooterLines int    `json:"footerLines"`
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded template catalog: %v", err))
	}
	return c
}

// Parse decodes a YAML catalog. The catalog must define the fallback
// template so that unknown names always have somewhere to go.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		byName:   make(map[string]model.Template, len(file.Templates)),
		fallback: file.Default,
	}
	if c.fallback == "" {
		c.fallback = FallbackTemplate
	}

	for i, t := range file.Templates {
		if t.Name == "" {
			return nil, fmt.Errorf("template %d has no name", i)
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("template %q defined twice", t.Name)
		}
		if t.ItemFormat.Product == "" {
			t.ItemFormat.Product = "{quantity}x {name}"
		}
		c.byName[t.Name] = t
		c.order = append(c.order, t.Name)
	}

	if _, ok := c.byName[c.fallback]; !ok {
		return nil, fmt.Errorf("default template %q is not defined", c.fallback)
	}
	return c, nil
}

// Lookup returns the named template or a *model.TemplateError.
func (c *Catalog) Lookup(name string) (model.Template, error) {
	t, ok := c.byName[name]
	if !ok {
		return model.Template{}, &model.TemplateError{Name: name}
	}
	return t, nil
}

// Resolve returns the named template, or the default one when the name is
// not registered.
func (c *Catalog) Resolve(name string) model.Template {
	if t, err := c.Lookup(name); err == nil {
		return t
	}
	return c.byName[c.fallback]
}

func (c *Catalog) Exists(name string) bool {
	_, ok := c.byName[name]
	return ok
}

func (c *Catalog) DefaultName() string {
	return c.fallback
}

// List returns the templates in catalog order.
func (c *Catalog) List() []TemplateInfo {
	out := make([]TemplateInfo, 0, len(c.order))
	for _, name := range c.order {
		t := c.byName[name]
		out = append(out, TemplateInfo{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			HeaderLines: len(t.Header),
			FooterLines: len(t.Footer),
		})
	}
	return out
}
