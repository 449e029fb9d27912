// Package registry owns every game session in the process together with the
// reverse index from player id to session id.
package registry

import (
	"github.com/google/uuid"

	"github.com/cory-johannsen/scrabble/internal/game/rng"
	"github.com/cory-johannsen/scrabble/internal/game/session"
	"github.com/cory-johannsen/scrabble/internal/game/tile"
)

// Summary is a read-only view of one session for listings.
type Summary struct {
	ID      uuid.UUID        `json:"id"`
	State   session.State    `json:"state"`
	Players []session.Player `json:"players"`
	BagLen  int              `json:"bagLen"`
	Turn    int              `json:"turn"`
}

// Registry is the collection of all sessions plus the player → session index.
//
// A Registry is NOT safe for concurrent use. It is owned by a single writer
// (the gameserver Coordinator), which serializes every call.
//
// Invariant: every player id present in a session roster has an index entry
// pointing at that session's id.
type Registry struct {
	sessions    map[uuid.UUID]*session.Session
	order       []uuid.UUID
	playerIndex map[uuid.UUID]uuid.UUID

	newID        func() uuid.UUID
	src          rng.Source
	distribution tile.Distribution
}

// Option customizes a Registry.
type Option func(*Registry)

// WithIDSource replaces the identifier generator (default uuid.New).
func WithIDSource(fn func() uuid.UUID) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithRandom replaces the shuffle source (default crypto/rand).
func WithRandom(src rng.Source) Option {
	return func(r *Registry) { r.src = src }
}

// WithDistribution replaces the tile distribution used for new sessions.
func WithDistribution(d tile.Distribution) Option {
	return func(r *Registry) { r.distribution = d }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions:     make(map[uuid.UUID]*session.Session),
		playerIndex:  make(map[uuid.UUID]uuid.UUID),
		newID:        uuid.New,
		src:          rng.NewCryptoSource(),
		distribution: tile.Standard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSession inserts a new Open session and returns its fresh identifier.
//
// Postcondition: The returned id was not previously in use.
func (r *Registry) CreateSession() uuid.UUID {
	id := r.newID()
	for _, exists := r.sessions[id]; exists; _, exists = r.sessions[id] {
		id = r.newID()
	}
	r.sessions[id] = session.New(r.distribution, r.src)
	r.order = append(r.order, id)
	return id
}

// RemoveSession destroys a session. Index entries of its players are left in
// place, so later resolution of those players reports ErrGameNotFound.
func (r *Registry) RemoveSession(sessionID uuid.UUID) error {
	if _, ok := r.sessions[sessionID]; !ok {
		return session.ErrGameNotFound
	}
	delete(r.sessions, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// NewPlayer mints a player with a registry-issued identifier.
func (r *Registry) NewPlayer(name string) session.Player {
	return session.NewPlayer(r.newID(), name)
}

// RegisterPlayer adds p to the session's roster and points the player index at it.
func (r *Registry) RegisterPlayer(sessionID uuid.UUID, p session.Player) (session.Player, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return session.Player{}, session.ErrGameNotFound
	}
	registered, err := s.RegisterPlayer(p)
	if err != nil {
		return session.Player{}, err
	}
	r.playerIndex[registered.ID] = sessionID
	return registered, nil
}

// RemovePlayer removes the player from the session and drops its index entry.
func (r *Registry) RemovePlayer(sessionID, playerID uuid.UUID) error {
	s, ok := r.sessions[sessionID]
	if !ok {
		return session.ErrGameNotFound
	}
	if err := s.RemovePlayer(playerID); err != nil {
		return err
	}
	if r.playerIndex[playerID] == sessionID {
		delete(r.playerIndex, playerID)
	}
	return nil
}

// Sessions returns the ids of all sessions in creation order.
func (r *Registry) Sessions() []uuid.UUID {
	out := make([]uuid.UUID, len(r.order))
	copy(out, r.order)
	return out
}

// ResolvePlayer finds a player by id alone through the player index.
//
// Postcondition: Returns ErrPlayerNotRegistered when the index has no entry, and
// ErrGameNotFound when the entry points at a session that no longer exists.
func (r *Registry) ResolvePlayer(playerID uuid.UUID) (session.Player, uuid.UUID, error) {
	sessionID, ok := r.playerIndex[playerID]
	if !ok {
		return session.Player{}, uuid.Nil, session.ErrPlayerNotRegistered
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return session.Player{}, sessionID, session.ErrGameNotFound
	}
	p, err := s.Player(playerID)
	if err != nil {
		return session.Player{}, sessionID, err
	}
	return p, sessionID, nil
}

// Players returns a snapshot of the session's roster. An unknown session
// yields an empty slice rather than an error.
func (r *Registry) Players(sessionID uuid.UUID) []session.Player {
	s, ok := r.sessions[sessionID]
	if !ok {
		return []session.Player{}
	}
	return s.Players()
}

// StartSession deals the racks of the session's players.
func (r *Registry) StartSession(sessionID uuid.UUID) (map[uuid.UUID][]tile.Tile, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, session.ErrGameNotFound
	}
	return s.Start()
}

// NextTurn advances the session's turn cursor.
func (r *Registry) NextTurn(sessionID uuid.UUID) (int, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, session.ErrGameNotFound
	}
	return s.NextTurn()
}

// CurrentPlayer returns the player whose turn it is in the session.
func (r *Registry) CurrentPlayer(sessionID uuid.UUID) (session.Player, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return session.Player{}, session.ErrGameNotFound
	}
	return s.CurrentPlayer()
}

// Summary returns a read-only view of one session.
func (r *Registry) Summary(sessionID uuid.UUID) (Summary, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return Summary{}, session.ErrGameNotFound
	}
	return Summary{
		ID:      sessionID,
		State:   s.State(),
		Players: s.Players(),
		BagLen:  s.BagLen(),
		Turn:    s.TurnIndex(),
	}, nil
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	return len(r.sessions)
}
