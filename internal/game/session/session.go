package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cory-johannsen/scrabble/internal/game/rng"
	"github.com/cory-johannsen/scrabble/internal/game/tile"
)

const (
	// MaxPlayers is the roster capacity of a session.
	MaxPlayers = 4
	// MinPlayers is the roster size required to start.
	MinPlayers = 2
)

// State is a session's lifecycle state.
type State int

const (
	// Open sessions accept registrations.
	Open State = iota
	// Started sessions have dealt racks and an active turn order. Started is terminal.
	Started
)

// String returns "open" or "started".
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Started:
		return "started"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the state of a single game. It has no concurrency control of its
// own; the owner must serialize access.
//
// Invariant: len(roster) <= MaxPlayers and roster ids are distinct.
// Invariant: BagLen() + sum of rack sizes == the distribution total.
type Session struct {
	roster []Player
	racks  map[uuid.UUID]*tile.Rack
	bag    *tile.Bag
	total  int
	turn   int
	state  State
}

// New creates an Open session whose bag is filled from d and shuffled with src.
//
// Precondition: src must be non-nil.
func New(d tile.Distribution, src rng.Source) *Session {
	return &Session{
		roster: make([]Player, 0, MaxPlayers),
		racks:  make(map[uuid.UUID]*tile.Rack, MaxPlayers),
		bag:    tile.NewBag(d, src),
		total:  d.Total(),
	}
}

// RegisterPlayer adds p to the roster and allocates an empty rack.
//
// Postcondition: Returns ErrGameStarted, ErrTooManyPlayers or ErrDuplicatePlayerID
// without modifying the session, or the registered player.
func (s *Session) RegisterPlayer(p Player) (Player, error) {
	if s.state != Open {
		return Player{}, ErrGameStarted
	}
	if len(s.roster) >= MaxPlayers {
		return Player{}, ErrTooManyPlayers
	}
	if s.indexOf(p.ID) >= 0 {
		return Player{}, ErrDuplicatePlayerID
	}
	s.roster = append(s.roster, p)
	s.racks[p.ID] = tile.NewRack()
	return p, nil
}

// RemovePlayer removes the player's roster entry and rack. Removing an absent
// player is an error.
//
// When the session has started, the departing rack's tiles go back into the bag
// and the turn cursor keeps pointing at a roster member.
func (s *Session) RemovePlayer(id uuid.UUID) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return ErrPlayerNotRegistered
	}
	if rack := s.racks[id]; rack != nil {
		s.bag.Return(rack.Tiles()...)
	}
	delete(s.racks, id)
	s.roster = append(s.roster[:idx], s.roster[idx+1:]...)

	if idx < s.turn {
		s.turn--
	}
	if s.turn >= len(s.roster) {
		s.turn = 0
	}
	return nil
}

// Player returns the registered player with the given id.
func (s *Session) Player(id uuid.UUID) (Player, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return Player{}, ErrPlayerNotRegistered
	}
	return s.roster[idx], nil
}

// Players returns a snapshot of the roster in registration order.
//
// Postcondition: The returned slice is never nil and is safe to retain.
func (s *Session) Players() []Player {
	out := make([]Player, len(s.roster))
	copy(out, s.roster)
	return out
}

// Start deals RackSize tiles to every player, one tile per player per round,
// and activates the turn order.
//
// Dealing is all-or-nothing: if any draw or rack insertion fails, the bag and
// every rack are restored to their state before the call.
//
// Postcondition: On success the returned map holds a copy of each player's rack.
func (s *Session) Start() (map[uuid.UUID][]tile.Tile, error) {
	if s.state != Open {
		return nil, ErrGameStarted
	}
	if len(s.roster) < MinPlayers {
		return nil, ErrNotEnoughPlayers
	}

	bagSnapshot := s.bag.Snapshot()
	rackSnapshot := make(map[uuid.UUID]*tile.Rack, len(s.racks))
	for id, rack := range s.racks {
		rackSnapshot[id] = rack.Clone()
	}

	for round := 0; round < tile.RackSize; round++ {
		for _, p := range s.roster {
			if err := s.giveTile(p.ID); err != nil {
				s.bag.Restore(bagSnapshot)
				s.racks = rackSnapshot
				return nil, err
			}
		}
	}

	s.state = Started
	s.turn = 0

	dealt := make(map[uuid.UUID][]tile.Tile, len(s.roster))
	for _, p := range s.roster {
		dealt[p.ID] = s.racks[p.ID].Tiles()
	}
	return dealt, nil
}

func (s *Session) giveTile(id uuid.UUID) error {
	rack, ok := s.racks[id]
	if !ok {
		return ErrPlayerNotRegistered
	}
	t, err := s.bag.Draw()
	if errors.Is(err, tile.ErrBagEmpty) {
		return ErrNoMoreTiles
	}
	if err != nil {
		return err
	}
	// The drawn tile is recovered by Start's bag restore.
	if err := rack.Add(t); errors.Is(err, tile.ErrRackFull) {
		return ErrPlayerHas7Tiles
	}
	return nil
}

// NextTurn advances the turn cursor to the next roster member and returns it.
//
// Postcondition: Returns ErrNotEnoughPlayers when the roster is empty.
func (s *Session) NextTurn() (int, error) {
	if len(s.roster) == 0 {
		return 0, ErrNotEnoughPlayers
	}
	s.turn = (s.turn + 1) % len(s.roster)
	return s.turn, nil
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// TurnIndex returns the roster index of the player whose turn it is.
func (s *Session) TurnIndex() int {
	return s.turn
}

// CurrentPlayer returns the player whose turn it is.
func (s *Session) CurrentPlayer() (Player, error) {
	if len(s.roster) == 0 {
		return Player{}, ErrNotEnoughPlayers
	}
	return s.roster[s.turn], nil
}

// Rack returns a copy of the player's rack.
func (s *Session) Rack(id uuid.UUID) ([]tile.Tile, error) {
	rack, ok := s.racks[id]
	if !ok {
		return nil, ErrPlayerNotRegistered
	}
	return rack.Tiles(), nil
}

// BagLen returns the number of undealt tiles.
func (s *Session) BagLen() int {
	return s.bag.Len()
}

// TileCount returns the number of tiles in the bag plus every rack. It always
// equals the distribution total.
func (s *Session) TileCount() int {
	n := s.bag.Len()
	for _, rack := range s.racks {
		n += rack.Len()
	}
	return n
}

// Total returns the number of tiles the session was created with.
func (s *Session) Total() int {
	return s.total
}

func (s *Session) indexOf(id uuid.UUID) int {
	for i, p := range s.roster {
		if p.ID == id {
			return i
		}
	}
	return -1
}
