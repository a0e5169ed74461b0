// internal/content/content.go
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	engine "github.com/enaribe/startup-ludo/engine"
	"gopkg.in/yaml.v3"
)

//go:embed pools.yaml
var embeddedPools []byte

// ErrInvalidPool reports a content file that does not describe valid entries.
var ErrInvalidPool = errors.New("invalid content pool")

// entry is the YAML form of one content card.
type entry struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Prompt  string   `yaml:"prompt"`
	Options []string `yaml:"options"`
	Answer  int      `yaml:"answer"`
	Reward  *int16   `yaml:"reward"`
	Penalty *int16   `yaml:"penalty"`
	Effect  string   `yaml:"effect"`
}

type file struct {
	Default  string                        `yaml:"default"`
	Editions map[string]map[string][]entry `yaml:"editions"`
}

// Catalog holds every edition's pools, already converted to engine content.
type Catalog struct {
	defaultEdition string
	editions       map[string]map[engine.EventCategory][]engine.Content
}

// Provider serves one edition's pools. It satisfies engine.ContentProvider;
// a category the edition does not define yields an empty pool, which the
// engine turns into generic content.
type Provider struct {
	Edition string
	pools   map[engine.EventCategory][]engine.Content
}

// Content returns the pool for cat. The slice is shared and must not be modified.
func (p *Provider) Content(cat engine.EventCategory) []engine.Content {
	if p == nil {
		return nil
	}
	return p.pools[cat]
}

// Default parses the pools compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(embeddedPools)
}

// LoadFile reads a pools file from disk. An empty path loads the built-in pools.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a pools document.
func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPool, err)
	}
	if len(f.Editions) == 0 {
		return nil, fmt.Errorf("%w: no editions", ErrInvalidPool)
	}

	c := &Catalog{
		defaultEdition: f.Default,
		editions:       make(map[string]map[engine.EventCategory][]engine.Content, len(f.Editions)),
	}
	seen := make(map[string]string)
	for name, cats := range f.Editions {
		pools := make(map[engine.EventCategory][]engine.Content, len(cats))
		for catName, entries := range cats {
			cat, ok := engine.ParseCategory(catName)
			if !ok || cat == engine.EventNone {
				return nil, fmt.Errorf("%w: edition %s: unknown category %q", ErrInvalidPool, name, catName)
			}
			for _, e := range entries {
				if e.ID == "" {
					return nil, fmt.Errorf("%w: edition %s: %s entry without id", ErrInvalidPool, name, catName)
				}
				if prev, dup := seen[e.ID]; dup {
					return nil, fmt.Errorf("%w: id %q used in %s and %s", ErrInvalidPool, e.ID, prev, name)
				}
				seen[e.ID] = name
				ct, err := e.convert(cat)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPool, e.ID, err)
				}
				pools[cat] = append(pools[cat], ct)
			}
		}
		c.editions[name] = pools
	}
	if c.defaultEdition == "" {
		c.defaultEdition = c.Editions()[0]
	}
	if _, ok := c.editions[c.defaultEdition]; !ok {
		return nil, fmt.Errorf("%w: default edition %q not defined", ErrInvalidPool, c.defaultEdition)
	}
	return c, nil
}

func (e entry) convert(cat engine.EventCategory) (engine.Content, error) {
	out := engine.Content{
		ID:       e.ID,
		Category: cat,
		Title:    e.Title,
		Prompt:   e.Prompt,
		Options:  e.Options,
		Answer:   e.Answer,
		Reward:   e.Reward,
		Penalty:  e.Penalty,
	}
	if cat == engine.EventQuiz {
		if len(e.Options) < 2 {
			return out, errors.New("quiz needs at least two options")
		}
		if e.Answer < 0 || e.Answer >= len(e.Options) {
			return out, fmt.Errorf("answer %d out of range", e.Answer)
		}
	}
	if e.Reward != nil && e.Penalty != nil {
		return out, errors.New("reward and penalty are exclusive")
	}
	if (e.Reward != nil && *e.Reward < 0) || (e.Penalty != nil && *e.Penalty < 0) {
		return out, errors.New("magnitudes must not be negative")
	}
	switch e.Effect {
	case "":
	case "extra_turn":
		out.Effect = engine.EffectExtraTurn
	case "skip_next":
		out.Effect = engine.EffectSkipNext
	default:
		return out, fmt.Errorf("unknown effect %q", e.Effect)
	}
	return out, nil
}

// Editions lists the edition names in sorted order.
func (c *Catalog) Editions() []string {
	names := make([]string, 0, len(c.editions))
	for n := range c.editions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultEdition is the edition used when a session does not name one.
func (c *Catalog) DefaultEdition() string { return c.defaultEdition }

// Provider returns the provider for edition. An unknown edition still
// returns a usable provider with no pools, so every draw falls back.
func (c *Catalog) Provider(edition string) *Provider {
	if edition == "" {
		edition = c.defaultEdition
	}
	return &Provider{Edition: edition, pools: c.editions[edition]}
}

// Lookup finds an entry by id across every edition. Peers use it to show the
// card named by a remote event record.
func (c *Catalog) Lookup(id string) (engine.Content, bool) {
	for _, pools := range c.editions {
		for _, pool := range pools {
			for _, ct := range pool {
				if ct.ID == id {
					return ct, true
				}
			}
		}
	}
	return engine.Content{}, false
}
