package handlers

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/scrabble/internal/gameserver"
	"github.com/cory-johannsen/scrabble/internal/observability"
)

// membership is the adapter-side view of one connection. sessionID is the
// namespace the connection has entered; playerID is the player it currently
// acts as, or uuid.Nil.
type membership struct {
	outbox    *Outbox
	sessionID uuid.UUID
	playerID  uuid.UUID
}

// Hub tracks live connections and routes coordinator pushes to them. It
// implements gameserver.Notifier.
type Hub struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	members map[string]*membership
}

var _ gameserver.Notifier = (*Hub)(nil)

// NewHub creates an empty Hub.
//
// Precondition: logger must be non-nil.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		members: make(map[string]*membership),
	}
}

// Attach registers a connection's outbox.
func (h *Hub) Attach(outbox *Outbox) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[outbox.ConnID()] = &membership{outbox: outbox}
}

// Detach forgets connID and closes its outbox. The player it acted as stays
// registered so the client can reconnect.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	m, ok := h.members[connID]
	delete(h.members, connID)
	h.mu.Unlock()
	if ok {
		m.outbox.Close()
	}
}

// Enter attaches connID to the namespace of sessionID without naming a player.
func (h *Hub) Enter(connID string, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.members[connID]; ok {
		if m.sessionID != sessionID {
			m.playerID = uuid.Nil
		}
		m.sessionID = sessionID
	}
}

// Membership returns the namespace and current player of connID.
func (h *Hub) Membership(connID string) (sessionID, playerID uuid.UUID, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.members[connID]
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return m.sessionID, m.playerID, true
}

// Len returns the number of attached connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Bind records that connID acts as playerID inside sessionID.
func (h *Hub) Bind(connID string, sessionID, playerID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.members[connID]; ok {
		m.sessionID = sessionID
		m.playerID = playerID
	}
}

// Unbind clears the current player of connID if it is playerID. The
// connection stays in its namespace.
func (h *Hub) Unbind(connID string, playerID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.members[connID]; ok && m.playerID == playerID {
		m.playerID = uuid.Nil
	}
}

type replyFrame struct {
	Ack json.RawMessage `json:"ack,omitempty"`
	gameserver.Response
}

// Reply queues resp on connID as the answer to the request tagged ack. A
// detached connection is skipped.
func (h *Hub) Reply(connID string, ack json.RawMessage, resp gameserver.Response) {
	frame, err := json.Marshal(replyFrame{Ack: ack, Response: resp})
	if err != nil {
		h.logger.Error("encoding reply", zap.String("conn_id", connID), zap.Error(err))
		return
	}

	h.mu.RLock()
	m, ok := h.members[connID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("reply for detached connection", zap.String("conn_id", connID))
		return
	}
	if err := m.outbox.Push(frame); err != nil {
		h.logger.Warn("reply dropped", zap.String("conn_id", connID), zap.Error(err))
	}
}

// Broadcast pushes ev to every connection in the namespace of sessionID.
func (h *Hub) Broadcast(sessionID uuid.UUID, ev gameserver.Event) {
	h.push(sessionID, uuid.Nil, ev)
}

// Deliver pushes ev to the connections acting as playerID in sessionID.
func (h *Hub) Deliver(sessionID, playerID uuid.UUID, ev gameserver.Event) {
	h.push(sessionID, playerID, ev)
}

func (h *Hub) push(sessionID, playerID uuid.UUID, ev gameserver.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding push", zap.String("event", ev.Name), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID, m := range h.members {
		if m.sessionID != sessionID {
			continue
		}
		if playerID != uuid.Nil && m.playerID != playerID {
			continue
		}
		if err := m.outbox.Push(frame); err != nil {
			h.logger.Warn("push dropped",
				zap.String("conn_id", connID),
				zap.String("event", ev.Name),
				observability.SessionField(sessionID),
				zap.Error(err),
			)
		}
	}
}
