package session

// Error is a recoverable game-rule violation. Errors are surfaced to the
// requester as data and never stop the server.
type Error struct {
	// Code is the stable machine-readable identifier, e.g. "GameNotFound".
	Code string
	// Message is the human-readable description shown to players.
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Sentinel errors; compare with errors.Is.
var (
	ErrNotEnoughPlayers    = &Error{Code: "NotEnoughPlayers", Message: "Not enough players"}
	ErrTooManyPlayers      = &Error{Code: "TooManyPlayers", Message: "Too many players"}
	ErrDuplicatePlayerID   = &Error{Code: "DuplicatePlayerId", Message: "Duplicate player UUID"}
	ErrPlayerNotRegistered = &Error{Code: "PlayerNotRegistered", Message: "Player is not registered in this game"}
	ErrNoMoreTiles         = &Error{Code: "NoMoreTiles", Message: "No more tiles in the bag"}
	ErrPlayerHas7Tiles     = &Error{Code: "PlayerHas7Tiles", Message: "Player already has 7 tiles"}
	ErrGameNotFound        = &Error{Code: "GameNotFound", Message: "Game not found with this UUID"}
	ErrGameStarted         = &Error{Code: "GameAlreadyStarted", Message: "Game already started"}
)

// Codes lists every sentinel in declaration order.
func Codes() []*Error {
	return []*Error{
		ErrNotEnoughPlayers,
		ErrTooManyPlayers,
		ErrDuplicatePlayerID,
		ErrPlayerNotRegistered,
		ErrNoMoreTiles,
		ErrPlayerHas7Tiles,
		ErrGameNotFound,
		ErrGameStarted,
	}
}
