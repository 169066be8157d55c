// Package catalog loads boss definitions and their drop tables.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
)

// MaxPartySize is the largest party any boss allows.
const MaxPartySize = 6

//go:embed bosses.yaml
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

type file struct {
	Bosses []model.Boss `yaml:"bosses"`
}

// Catalog is an immutable set of bosses.
type Catalog struct {
	bosses map[string]model.Boss
	order  []string
}

// Load parses a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return build(f.Bosses)
}

// LoadFile parses the YAML catalog at path.
func LoadFile(path string) (*Catalog, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer fh.Close()
	return Load(fh)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// MustDefault is Default that panics on a broken embedded file.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog from bosses, mainly for tests.
func New(bosses ...model.Boss) (*Catalog, error) {
	return build(bosses)
}

func build(bosses []model.Boss) (*Catalog, error) {
	c := &Catalog{bosses: make(map[string]model.Boss, len(bosses))}
	for _, b := range bosses {
		if b.ID == "" {
			return nil, fmt.Errorf("%w: boss without id", ErrInvalidCatalog)
		}
		if _, dup := c.bosses[b.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate boss %q", ErrInvalidCatalog, b.ID)
		}
		cadence, err := period.ParseCadence(string(b.Cadence))
		if err != nil {
			return nil, fmt.Errorf("%w: boss %q: %w", ErrInvalidCatalog, b.ID, err)
		}
		b.Cadence = cadence
		if b.PartySize == 0 {
			b.PartySize = MaxPartySize
		}
		if b.PartySize < 1 || b.PartySize > MaxPartySize {
			return nil, fmt.Errorf("%w: boss %q: party_size %d", ErrInvalidCatalog, b.ID, b.PartySize)
		}
		items := make(map[string]struct{}, len(b.Drops))
		for _, d := range b.Drops {
			if d.ItemID == "" {
				return nil, fmt.Errorf("%w: boss %q: drop without item", ErrInvalidCatalog, b.ID)
			}
			if _, dup := items[d.ItemID]; dup {
				return nil, fmt.Errorf("%w: boss %q: duplicate item %q", ErrInvalidCatalog, b.ID, d.ItemID)
			}
			items[d.ItemID] = struct{}{}
		}
		c.bosses[b.ID] = b
		c.order = append(c.order, b.ID)
	}
	sort.SliceStable(c.order, func(i, j int) bool {
		a, b := c.bosses[c.order[i]], c.bosses[c.order[j]]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})
	return c, nil
}

// Boss returns the boss with id or model.ErrNotFound.
func (c *Catalog) Boss(_ context.Context, id string) (model.Boss, error) {
	b, ok := c.bosses[id]
	if !ok {
		return model.Boss{}, fmt.Errorf("boss %q: %w", id, model.ErrNotFound)
	}
	return b, nil
}

// Bosses returns every boss in display order.
func (c *Catalog) Bosses(_ context.Context) []model.Boss {
	out := make([]model.Boss, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.bosses[id])
	}
	return out
}

// Pairs returns every (boss, item) pair declared by a drop table.
func (c *Catalog) Pairs(_ context.Context) []model.Pair {
	var out []model.Pair
	for _, id := range c.order {
		for _, d := range c.bosses[id].Drops {
			out = append(out, model.Pair{BossID: id, ItemID: d.ItemID})
		}
	}
	return out
}

// Len returns the number of bosses.
func (c *Catalog) Len() int { return len(c.order) }
