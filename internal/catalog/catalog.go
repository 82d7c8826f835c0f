// Package catalog provides the read-only expert and service catalog.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeina-health/companion/internal/model"
)

// Supported languages.
const (
	LangEnglish = "en"
	LangArabic  = "ar"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// localized holds per-language variants of a display string.
type localized map[string]string

func (l localized) in(lang string) string {
	if v, ok := l[lang]; ok && v != "" {
		return v
	}
	return l[LangEnglish]
}

type expertEntry struct {
	ID       string    `yaml:"id"`
	Category string    `yaml:"category"`
	Rating   float64   `yaml:"rating"`
	Price    int       `yaml:"price"`
	Image    string    `yaml:"image"`
	Name     localized `yaml:"name"`
	Title    localized `yaml:"title"`
}

type serviceEntry struct {
	ID          string    `yaml:"id"`
	Link        string    `yaml:"link"`
	Rating      float64   `yaml:"rating"`
	ReviewCount int       `yaml:"reviewCount"`
	Title       localized `yaml:"title"`
	Description localized `yaml:"description"`
}

type document struct {
	Experts  []expertEntry  `yaml:"experts"`
	Services []serviceEntry `yaml:"services"`
}

// Catalog is an immutable lookup table of experts and services.
type Catalog struct {
	experts  []expertEntry
	services []serviceEntry
	byExpert map[string]int
	byServ   map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{
		experts:  doc.Experts,
		services: doc.Services,
		byExpert: make(map[string]int, len(doc.Experts)),
		byServ:   make(map[string]int, len(doc.Services)),
	}
	for i, e := range doc.Experts {
		if e.ID == "" || e.Name.in(LangEnglish) == "" {
			return nil, fmt.Errorf("expert at index %d: id and english name are required", i)
		}
		if _, dup := c.byExpert[e.ID]; dup {
			return nil, fmt.Errorf("duplicate expert id %q", e.ID)
		}
		c.byExpert[e.ID] = i
	}
	for i, s := range doc.Services {
		if s.ID == "" {
			return nil, fmt.Errorf("service at index %d: id is required", i)
		}
		if _, dup := c.byServ[s.ID]; dup {
			return nil, fmt.Errorf("duplicate service id %q", s.ID)
		}
		c.byServ[s.ID] = i
	}
	return c, nil
}

// Expert looks up an expert by id, localized to lang.
func (c *Catalog) Expert(lang, id string) (model.Expert, bool) {
	i, ok := c.byExpert[id]
	if !ok {
		return model.Expert{}, false
	}
	return c.experts[i].localize(lang), true
}

// Experts returns every expert in catalog order.
func (c *Catalog) Experts(lang string) []model.Expert {
	out := make([]model.Expert, 0, len(c.experts))
	for _, e := range c.experts {
		out = append(out, e.localize(lang))
	}
	return out
}

// Service looks up a service by id, localized to lang.
func (c *Catalog) Service(lang, id string) (model.Service, bool) {
	i, ok := c.byServ[id]
	if !ok {
		return model.Service{}, false
	}
	return c.services[i].localize(lang), true
}

// Services returns every service in catalog order.
func (c *Catalog) Services(lang string) []model.Service {
	out := make([]model.Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s.localize(lang))
	}
	return out
}

func (e expertEntry) localize(lang string) model.Expert {
	return model.Expert{
		ID:       e.ID,
		Name:     e.Name.in(lang),
		Title:    e.Title.in(lang),
		Image:    e.Image,
		Category: e.Category,
		Rating:   e.Rating,
		Price:    e.Price,
	}
}

func (s serviceEntry) localize(lang string) model.Service {
	return model.Service{
		ID:          s.ID,
		Title:       s.Title.in(lang),
		Description: s.Description.in(lang),
		Link:        s.Link,
		Rating:      s.Rating,
		ReviewCount: s.ReviewCount,
	}
}
