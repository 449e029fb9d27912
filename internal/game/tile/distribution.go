// Package tile provides letter tiles, the standard distribution table, the
// shuffled tile bag and player racks.
package tile

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// BagSize is the number of tiles in the standard distribution without blanks.
const BagSize = 98

//go:embed distribution.yaml
var standardYAML []byte

// Tile is an immutable letter tile.
type Tile struct {
	Letter string `json:"letter"`
	Points int    `json:"points"`
}

// String returns the tile as "A(1)".
func (t Tile) String() string {
	return fmt.Sprintf("%s(%d)", t.Letter, t.Points)
}

// Class is one row of the distribution table: a letter, how many copies of it
// exist and what each copy scores.
type Class struct {
	Letter string `yaml:"letter"`
	Count  int    `yaml:"count"`
	Points int    `yaml:"points"`
}

// Distribution is the full rule table used to fill a bag.
type Distribution struct {
	Classes []Class `yaml:"tiles"`
}

// Total returns the number of tiles the distribution produces.
func (d Distribution) Total() int {
	total := 0
	for _, c := range d.Classes {
		total += c.Count
	}
	return total
}

// Tiles expands the distribution into an ordered, unshuffled tile slice.
//
// Postcondition: len(result) == d.Total().
func (d Distribution) Tiles() []Tile {
	tiles := make([]Tile, 0, d.Total())
	for _, c := range d.Classes {
		for i := 0; i < c.Count; i++ {
			tiles = append(tiles, Tile{Letter: c.Letter, Points: c.Points})
		}
	}
	return tiles
}

// Validate checks that every class is a distinct single uppercase letter with a
// positive count and point value.
func (d Distribution) Validate() error {
	if len(d.Classes) == 0 {
		return fmt.Errorf("distribution has no tile classes")
	}
	var errs []string
	seen := make(map[string]bool, len(d.Classes))
	for _, c := range d.Classes {
		if len(c.Letter) != 1 || c.Letter[0] < 'A' || c.Letter[0] > 'Z' {
			errs = append(errs, fmt.Sprintf("letter %q must be a single character A-Z", c.Letter))
			continue
		}
		if seen[c.Letter] {
			errs = append(errs, fmt.Sprintf("letter %q listed more than once", c.Letter))
		}
		seen[c.Letter] = true
		if c.Count < 1 {
			errs = append(errs, fmt.Sprintf("letter %q count must be >= 1, got %d", c.Letter, c.Count))
		}
		if c.Points < 1 {
			errs = append(errs, fmt.Sprintf("letter %q points must be >= 1, got %d", c.Letter, c.Points))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid distribution: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseDistribution parses and validates a distribution from YAML bytes.
//
// Postcondition: Returns a validated Distribution or a non-nil error.
func ParseDistribution(data []byte) (Distribution, error) {
	var d Distribution
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Distribution{}, fmt.Errorf("parsing distribution: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Distribution{}, err
	}
	return d, nil
}

// Standard returns the embedded 26-class, 98-tile distribution. The table is
// parsed once; callers must not modify the returned Classes.
//
// Panics if the embedded table is malformed.
func Standard() Distribution {
	return standard()
}

var standard = sync.OnceValue(func() Distribution {
	d, err := ParseDistribution(standardYAML)
	if err != nil {
		panic("tile: embedded distribution: " + err.Error())
	}
	if d.Total() != BagSize {
		panic(fmt.Sprintf("tile: embedded distribution has %d tiles, want %d", d.Total(), BagSize))
	}
	return d
})
