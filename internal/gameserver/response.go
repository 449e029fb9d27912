package gameserver

import (
	"errors"

	"github.com/google/uuid"

	"github.com/cory-johannsen/scrabble/internal/game/session"
)

// CodeInternal is reported for failures outside the game-rule taxonomy.
const CodeInternal = "Internal"

// Push event names.
const (
	EventPlayersList = "players-list"
	EventTilesDealt  = "tiles-dealt"
	EventTurnChanged = "turn-changed"
	EventGameClosed  = "game-closed"
)

// ErrorBody is the error half of a Response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the tagged reply to a request. Exactly one of Data and Error is
// set; clients treat a non-nil Error as authoritative.
type Response struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// Ok wraps a successful payload.
func Ok(data any) Response {
	return Response{Data: data}
}

// Fail wraps err. Game-rule errors keep their code; anything else is reported
// as CodeInternal.
func Fail(err error) Response {
	var gameErr *session.Error
	if errors.As(err, &gameErr) {
		return Response{Error: &ErrorBody{Code: gameErr.Code, Message: gameErr.Message}}
	}
	return Response{Error: &ErrorBody{Code: CodeInternal, Message: err.Error()}}
}

// OK reports whether the response carries data.
func (r Response) OK() bool {
	return r.Error == nil
}

// Err returns the response's error, resolved back to the matching session
// sentinel where one exists.
func (r Response) Err() error {
	if r.Error == nil {
		return nil
	}
	for _, sentinel := range session.Codes() {
		if sentinel.Code == r.Error.Code {
			return sentinel
		}
	}
	return &session.Error{Code: r.Error.Code, Message: r.Error.Message}
}

// Event is an out-of-band push to one or more connections.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Identity is the reply to a successful join or whoami.
type Identity struct {
	session.Player
	SessionID uuid.UUID `json:"gameUuid"`
}

// StartResult is the reply to a successful start.
type StartResult struct {
	Players       []session.Player `json:"players"`
	CurrentPlayer session.Player   `json:"currentPlayer"`
	BagLen        int              `json:"bagLen"`
}

// TurnResult is the reply to a successful turn change and the payload of
// EventTurnChanged.
type TurnResult struct {
	Turn          int            `json:"turn"`
	CurrentPlayer session.Player `json:"currentPlayer"`
}
