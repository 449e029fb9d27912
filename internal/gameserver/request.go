package gameserver

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Reply is the one-shot destination of a request's Response. It is buffered so
// the Coordinator never blocks on it.
type Reply chan Response

// NewReply returns a Reply with room for exactly one Response.
func NewReply() Reply {
	return make(Reply, 1)
}

// Origin identifies who issued a request and where its reply goes. ConnID is
// the adapter's connection identifier and may be empty for callers that have
// no push channel (HTTP handlers, tests). Ack is the client's correlation
// token, echoed on the reply frame queued for ConnID.
type Origin struct {
	ConnID string
	Ack    json.RawMessage
	Reply  Reply
}

// NewOrigin returns an Origin for connID with a fresh Reply.
func NewOrigin(connID string) Origin {
	return Origin{ConnID: connID, Reply: NewReply()}
}

func (o Origin) origin() Origin { return o }

// Request is one of the request types below. Values are immutable once submitted.
type Request interface {
	origin() Origin
}

// CreateSession opens a new game session.
type CreateSession struct {
	Origin
}

// JoinSession registers a new player named Name in SessionID.
type JoinSession struct {
	Origin
	SessionID uuid.UUID
	Name      string
}

// LeaveSession removes PlayerID from SessionID.
type LeaveSession struct {
	Origin
	SessionID uuid.UUID
	PlayerID  uuid.UUID
}

// WhoAmI resolves PlayerID without the caller naming its session.
type WhoAmI struct {
	Origin
	PlayerID uuid.UUID
}

// ListSessions lists every session id.
type ListSessions struct {
	Origin
}

// ListPlayers lists the roster of SessionID.
type ListPlayers struct {
	Origin
	SessionID uuid.UUID
}

// StartSession deals racks and starts the turn order of SessionID.
type StartSession struct {
	Origin
	SessionID uuid.UUID
}

// NextTurn passes the turn to the next player of SessionID.
type NextTurn struct {
	Origin
	SessionID uuid.UUID
}

// DescribeSession returns a summary of SessionID.
type DescribeSession struct {
	Origin
	SessionID uuid.UUID
}

// RemoveSession destroys SessionID.
type RemoveSession struct {
	Origin
	SessionID uuid.UUID
}

func requestKind(req Request) string {
	switch req.(type) {
	case CreateSession:
		return "create_session"
	case JoinSession:
		return "join_session"
	case LeaveSession:
		return "leave_session"
	case WhoAmI:
		return "whoami"
	case ListSessions:
		return "list_sessions"
	case ListPlayers:
		return "list_players"
	case StartSession:
		return "start_session"
	case NextTurn:
		return "next_turn"
	case DescribeSession:
		return "describe_session"
	case RemoveSession:
		return "remove_session"
	default:
		return "unknown"
	}
}
