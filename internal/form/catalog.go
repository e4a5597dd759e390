package form

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkravets/formgate/core/logger"
	"log/slog"
)

// CatalogOptions tune catalog loading.
type CatalogOptions struct {
	// Lax bypasses date and one-of validation on every loaded entry.
	Lax bool
}

// Catalog holds the loaded form templates plus the bot welcome text.
// Templates keep their registration order; idx is assigned once here.
type Catalog struct {
	Welcome   string
	templates []*Template
}

type entrySpec struct {
	Title       string   `yaml:"title"`
	Kind        string   `yaml:"kind"`
	Description string   `yaml:"description"`
	Incorrect   string   `yaml:"incorrect"`
	Options     []string `yaml:"options"`
	Skippable   bool     `yaml:"skippable"`
}

type templateSpec struct {
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Complete    string      `yaml:"complete"`
	Active      *bool       `yaml:"active"`
	Entries     []entrySpec `yaml:"entries"`
}

type catalogSpec struct {
	Welcome   string         `yaml:"welcome"`
	Templates []templateSpec `yaml:"templates"`
}

// LoadCatalog reads the YAML form catalog from path.
func LoadCatalog(path string, opts CatalogOptions) (*Catalog, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form catalog: %w", err)
	}

	var spec catalogSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse form catalog: %w", err)
	}
	if len(spec.Templates) == 0 {
		return nil, fmt.Errorf("form catalog %s declares no templates", path)
	}

	cat := &Catalog{Welcome: spec.Welcome}
	titles := make(map[string]struct{}, len(spec.Templates))
	for _, ts := range spec.Templates {
		if _, dup := titles[ts.Title]; dup {
			return nil, fmt.Errorf("form catalog has duplicate template title %q", ts.Title)
		}
		titles[ts.Title] = struct{}{}

		entries := make([]*Entry, 0, len(ts.Entries))
		for _, es := range ts.Entries {
			kind := Kind(es.Kind)
			switch kind {
			case KindText, KindNumber, KindDate, KindOneOf, KindFile:
			case "":
				kind = KindText
			default:
				return nil, fmt.Errorf("template %q entry %q has unknown kind %q", ts.Title, es.Title, es.Kind)
			}
			if kind == KindOneOf && len(es.Options) == 0 {
				return nil, fmt.Errorf("template %q entry %q is one-of without options", ts.Title, es.Title)
			}
			e := NewEntry(kind, es.Title, es.Description, es.Incorrect, es.Options, es.Skippable)
			if opts.Lax {
				e.SetLax()
			}
			entries = append(entries, e)
		}

		active := true
		if ts.Active != nil {
			active = *ts.Active
		}
		tpl, err := NewTemplate(ts.Title, ts.Description, ts.Complete, entries, active)
		if err != nil {
			return nil, err
		}
		if err := cat.register(tpl); err != nil {
			return nil, err
		}
	}

	logger.Info(logger.Background(), "form", "catalog.load",
		slog.String("path", path),
		slog.Int("count", len(cat.templates)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return cat, nil
}

// register appends a template and assigns its stable index.
func (c *Catalog) register(t *Template) error {
	if err := t.setIdx(len(c.templates)); err != nil {
		return err
	}
	c.templates = append(c.templates, t)
	return nil
}

// All returns every template in registration order.
func (c *Catalog) All() []*Template {
	return c.templates
}

// Active returns the currently active templates.
func (c *Catalog) Active() []*Template {
	out := make([]*Template, 0, len(c.templates))
	for _, t := range c.templates {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the template with the given registry index.
func (c *Catalog) Get(idx int) (*Template, error) {
	if idx < 0 || idx >= len(c.templates) {
		return nil, fmt.Errorf("no template with index %d", idx)
	}
	return c.templates[idx], nil
}

// ByTitle looks a template up by its title.
func (c *Catalog) ByTitle(title string) (*Template, bool) {
	for _, t := range c.templates {
		if t.Title == title {
			return t, true
		}
	}
	return nil, false
}
