package species

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kasuganosora/monsterbattle/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a species, move or item id is unknown.
var ErrNotFound = errors.New("catalog: not found")

// Move categories.
const (
	CategoryPhysical = "physical"
	CategorySpecial  = "special"
	CategoryStatus   = "status"
)

// Item kinds.
const (
	KindBall     = "ball"
	KindMedicine = "medicine"
)

// LevelMove is a move learned on reaching Level.
type LevelMove struct {
	Level  int `yaml:"level"`
	MoveID int `yaml:"move"`
}

// Drop is an item a defeated Pokemon may leave behind.
type Drop struct {
	ItemID string  `yaml:"item"`
	Chance float64 `yaml:"chance"` // 0..1
	Qty    int     `yaml:"qty"`
}

// Species is the static data for one species.
type Species struct {
	ID           int             `yaml:"id"`
	Key          string          `yaml:"key"`
	Name         string          `yaml:"name"`
	Types        []string        `yaml:"types"`
	BaseStats    model.StatBlock `yaml:"base_stats"`
	CaptureRate  int             `yaml:"capture_rate"`
	BaseExp      int             `yaml:"base_exp"`
	GrowthRate   string          `yaml:"growth_rate"`
	MovesByLevel []LevelMove     `yaml:"moves_by_level"`
	Abilities    []string        `yaml:"abilities"`
	// GenderRatio is the female fraction; negative means genderless.
	GenderRatio float64 `yaml:"gender_ratio"`
	Drops       []Drop  `yaml:"drops"`
}

// MovesAt returns the move ids learned exactly at level.
func (s *Species) MovesAt(level int) []int {
	var ids []int
	for _, lm := range s.MovesByLevel {
		if lm.Level == level {
			ids = append(ids, lm.MoveID)
		}
	}
	return ids
}

// MovesUpTo returns the last four move ids learnable at or below level,
// which is the default moveset of a freshly generated Pokemon.
func (s *Species) MovesUpTo(level int) []int {
	var ids []int
	for _, lm := range s.MovesByLevel {
		if lm.Level <= level {
			ids = append(ids, lm.MoveID)
		}
	}
	if len(ids) > 4 {
		ids = ids[len(ids)-4:]
	}
	return ids
}

// MoveEffect is a status a move may inflict on its target.
type MoveEffect struct {
	Status string `yaml:"status"`
	Chance int    `yaml:"chance"` // percent; 0 means always for status moves
}

type Move struct {
	ID       int         `yaml:"id"`
	Key      string      `yaml:"key"`
	Name     string      `yaml:"name"`
	Type     string      `yaml:"type"`
	Category string      `yaml:"category"`
	Power    int         `yaml:"power"`
	Accuracy int         `yaml:"accuracy"` // 0 = never misses
	PP       int         `yaml:"pp"`
	Effect   *MoveEffect `yaml:"effect"`
}

type Item struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Heal int    `yaml:"heal"`
	// Cures lists the statuses this item removes; "all" removes any.
	Cures []string `yaml:"cures"`
}

// Cure reports whether the item removes status.
func (it *Item) Cure(status string) bool {
	for _, c := range it.Cures {
		if c == "all" || c == status {
			return true
		}
	}
	return false
}

type catalogFile struct {
	Species   []*Species                    `yaml:"species"`
	Moves     []*Move                       `yaml:"moves"`
	Items     []*Item                       `yaml:"items"`
	TypeChart map[string]map[string]float64 `yaml:"type_chart"`
}

// Catalog is the read-only species, move and item database.
type Catalog struct {
	species   map[int]*Species
	moves     map[int]*Move
	items     map[string]*Item
	typeChart map[string]map[string]float64
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Catalog from YAML bytes. Entries without a display name get
// one derived from their key ("quick_attack" -> "Quick Attack").
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	title := cases.Title(language.English)
	display := func(name, key string) string {
		if name != "" {
			return name
		}
		return title.String(strings.ReplaceAll(key, "_", " "))
	}

	c := &Catalog{
		species:   make(map[int]*Species, len(f.Species)),
		moves:     make(map[int]*Move, len(f.Moves)),
		items:     make(map[string]*Item, len(f.Items)),
		typeChart: f.TypeChart,
	}
	for _, s := range f.Species {
		if _, dup := c.species[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate species id %d", s.ID)
		}
		s.Name = display(s.Name, s.Key)
		c.species[s.ID] = s
	}
	for _, m := range f.Moves {
		if _, dup := c.moves[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate move id %d", m.ID)
		}
		m.Name = display(m.Name, m.Key)
		c.moves[m.ID] = m
	}
	for _, it := range f.Items {
		it.Name = display(it.Name, it.ID)
		c.items[it.ID] = it
	}
	for _, s := range c.species {
		for _, lm := range s.MovesByLevel {
			if _, ok := c.moves[lm.MoveID]; !ok {
				return nil, fmt.Errorf("catalog: species %d references unknown move %d", s.ID, lm.MoveID)
			}
		}
	}
	return c, nil
}

// Species returns the species data for id.
func (c *Catalog) Species(_ context.Context, id int) (*Species, error) {
	s, ok := c.species[id]
	if !ok {
		return nil, fmt.Errorf("species %d: %w", id, ErrNotFound)
	}
	return s, nil
}

// Move returns the move data for id.
func (c *Catalog) Move(_ context.Context, id int) (*Move, error) {
	m, ok := c.moves[id]
	if !ok {
		return nil, fmt.Errorf("move %d: %w", id, ErrNotFound)
	}
	return m, nil
}

// Item returns the item data for id.
func (c *Catalog) Item(id string) (*Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Effectiveness returns the combined type multiplier of an attack of
// attackType against a defender with the given types. Missing chart entries
// count as neutral.
func (c *Catalog) Effectiveness(attackType string, defender []string) float64 {
	row := c.typeChart[attackType]
	mult := 1.0
	for _, t := range defender {
		if v, ok := row[t]; ok {
			mult *= v
		}
	}
	return mult
}
