package tile

import (
	"errors"

	"github.com/cory-johannsen/scrabble/internal/game/rng"
)

// RackSize is the maximum number of tiles a rack holds.
const RackSize = 7

var (
	// ErrBagEmpty is returned when drawing from an empty bag.
	ErrBagEmpty = errors.New("tile bag is empty")
	// ErrRackFull is returned when adding to a rack that already holds RackSize tiles.
	ErrRackFull = errors.New("rack is full")
)

// Bag is the shuffled draw pile of undealt tiles. Tiles are drawn from the tail.
// A Bag is not safe for concurrent use.
type Bag struct {
	tiles []Tile
	src   rng.Source
}

// NewBag fills a bag from d and shuffles it with src.
//
// Precondition: src must be non-nil.
// Postcondition: b.Len() == d.Total().
func NewBag(d Distribution, src rng.Source) *Bag {
	b := &Bag{tiles: d.Tiles(), src: src}
	b.shuffle()
	return b
}

func (b *Bag) shuffle() {
	rng.Shuffle(b.src, len(b.tiles), func(i, j int) {
		b.tiles[i], b.tiles[j] = b.tiles[j], b.tiles[i]
	})
}

// Len returns the number of tiles remaining.
func (b *Bag) Len() int {
	return len(b.tiles)
}

// Draw removes and returns the tile at the tail of the bag.
//
// Postcondition: Returns ErrBagEmpty and leaves the bag unchanged when empty.
func (b *Bag) Draw() (Tile, error) {
	if len(b.tiles) == 0 {
		return Tile{}, ErrBagEmpty
	}
	last := len(b.tiles) - 1
	t := b.tiles[last]
	b.tiles = b.tiles[:last]
	return t, nil
}

// Return puts tiles back into the bag and reshuffles it.
func (b *Bag) Return(tiles ...Tile) {
	if len(tiles) == 0 {
		return
	}
	b.tiles = append(b.tiles, tiles...)
	b.shuffle()
}

// Snapshot returns a copy of the bag's current order.
func (b *Bag) Snapshot() []Tile {
	out := make([]Tile, len(b.tiles))
	copy(out, b.tiles)
	return out
}

// Restore replaces the bag's contents with a previously taken snapshot.
func (b *Bag) Restore(snapshot []Tile) {
	b.tiles = make([]Tile, len(snapshot))
	copy(b.tiles, snapshot)
}

// Rack is a player's private hand of at most RackSize tiles. Order is not significant.
type Rack struct {
	tiles []Tile
}

// NewRack returns an empty rack.
func NewRack() *Rack {
	return &Rack{tiles: make([]Tile, 0, RackSize)}
}

// Add puts t on the rack.
//
// Postcondition: Returns ErrRackFull and leaves the rack unchanged when it already holds RackSize tiles.
func (r *Rack) Add(t Tile) error {
	if len(r.tiles) >= RackSize {
		return ErrRackFull
	}
	r.tiles = append(r.tiles, t)
	return nil
}

// Len returns the number of tiles on the rack.
func (r *Rack) Len() int {
	return len(r.tiles)
}

// Tiles returns a copy of the rack's tiles.
func (r *Rack) Tiles() []Tile {
	out := make([]Tile, len(r.tiles))
	copy(out, r.tiles)
	return out
}

// Clone returns an independent copy of the rack.
func (r *Rack) Clone() *Rack {
	c := NewRack()
	c.tiles = append(c.tiles, r.tiles...)
	return c
}
