// Package session provides the state machine of a single game: its roster,
// tile bag, per-player racks and turn order.
package session

import "github.com/google/uuid"

// Player is an immutable participant identity.
type Player struct {
	// ID is the registry-issued opaque identifier.
	ID uuid.UUID `json:"id"`
	// Name is the display name chosen by the client.
	Name string `json:"name"`
}

// NewPlayer returns a Player with the given identity.
func NewPlayer(id uuid.UUID, name string) Player {
	return Player{ID: id, Name: name}
}

// Equal reports whether p and other have the same id and name.
func (p Player) Equal(other Player) bool {
	return p.ID == other.ID && p.Name == other.Name
}
