// Package handlers translates client frames into coordinator requests and
// routes coordinator pushes back to the right connections.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/scrabble/internal/gameserver"
	"github.com/cory-johannsen/scrabble/internal/observability"
)

// Client event names.
const (
	EventCreateGame   = "create-game"
	EventListGames    = "list-games"
	EventEnter        = "enter"
	EventRegister     = "register_request"
	EventLogout       = "logout"
	EventWhoAmI       = "whoami"
	EventPlayerList   = "player-list"
	EventStart        = "start"
	EventNextTurn     = "next-turn"
	EventReconnectKey = "reconnect-key"
)

// Error codes raised by the adapter itself, alongside the game-rule codes.
const (
	CodeBadRequest   = "BadRequest"
	CodeUnknownEvent = "UnknownEvent"
	CodeUnavailable  = "Unavailable"
)

// Coordinator is the part of gameserver.Coordinator the adapter uses.
type Coordinator interface {
	Do(ctx context.Context, req gameserver.Request) (gameserver.Response, error)
}

// Transport moves whole frames over one client connection.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

type inboundFrame struct {
	Event string          `json:"event"`
	Ack   json.RawMessage `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type gamePayload struct {
	GameID *uuid.UUID `json:"gameUuid"`
}

type registerPayload struct {
	GameID   *uuid.UUID `json:"gameUuid"`
	Username string     `json:"username"`
}

type logoutPayload struct {
	GameID   *uuid.UUID `json:"gameUuid"`
	PlayerID *uuid.UUID `json:"playerUuid"`
}

type whoamiPayload struct {
	PlayerID     *uuid.UUID `json:"playerUuid"`
	ReconnectKey string     `json:"reconnectKey"`
}

// Adapter serves client connections on behalf of a Coordinator.
type Adapter struct {
	coord      Coordinator
	hub        *Hub
	keys       *ReconnectKeys
	logger     *zap.Logger
	outboxSize int
}

// NewAdapter creates an Adapter.
//
// Precondition: coord, hub and logger must be non-nil. keys may be nil to
// disable reconnect keys.
func NewAdapter(coord Coordinator, hub *Hub, keys *ReconnectKeys, logger *zap.Logger, outboxSize int) *Adapter {
	return &Adapter{
		coord:      coord,
		hub:        hub,
		keys:       keys,
		logger:     logger,
		outboxSize: outboxSize,
	}
}

// Client is one connection as seen by the adapter.
type Client struct {
	adapter *Adapter
	id      string
	outbox  *Outbox
	logger  *zap.Logger
}

// Connect registers a new connection with the hub.
//
// Postcondition: Returns a Client with a fresh connection id and an open outbox.
func (a *Adapter) Connect(transport, remoteAddr string) *Client {
	id := uuid.NewString()
	outbox := NewOutbox(id, a.outboxSize)
	a.hub.Attach(outbox)
	return &Client{
		adapter: a,
		id:      id,
		outbox:  outbox,
		logger:  observability.ConnLogger(a.logger, transport, id, remoteAddr),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Outbox returns the connection's queued frames.
func (c *Client) Outbox() *Outbox {
	return c.outbox
}

// Enter attaches the connection to a game's namespace.
func (c *Client) Enter(sessionID uuid.UUID) {
	c.adapter.hub.Enter(c.id, sessionID)
}

// Close detaches the connection. The player it acted as stays registered.
func (c *Client) Close() {
	c.adapter.hub.Detach(c.id)
}

// Serve runs a connection until the transport fails, the client disconnects
// or ctx ends. When sessionID is not uuid.Nil the connection starts inside
// that game's namespace.
//
// Postcondition: The client is detached and t is closed.
func (a *Adapter) Serve(ctx context.Context, t Transport, transport, remoteAddr string, sessionID uuid.UUID) error {
	client := a.Connect(transport, remoteAddr)
	if sessionID != uuid.Nil {
		client.Enter(sessionID)
	}
	client.logger.Info("client attached", observability.SessionField(sessionID))
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		defer client.Close()
		for {
			frame, err := t.ReadFrame()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			client.Handle(gctx, frame)
		}
	})
	g.Go(func() error {
		for frame := range client.outbox.Frames() {
			if err := t.WriteFrame(frame); err != nil {
				cancel()
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return t.Close()
	})

	err := g.Wait()
	client.logger.Info("client detached", zap.Duration("duration", time.Since(start)))
	return err
}

// Handle decodes one client frame, executes it and queues the reply. Replies
// to coordinator requests are queued by the coordinator itself, ahead of the
// pushes the request causes.
func (c *Client) Handle(ctx context.Context, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reply(nil, failure(CodeBadRequest, "malformed frame"))
		return
	}
	resp, queued := c.dispatch(ctx, in)
	if !queued {
		c.reply(in.Ack, resp)
	}

	if !resp.OK() {
		return
	}
	switch in.Event {
	case EventRegister, EventWhoAmI:
		if ident, ok := resp.Data.(gameserver.Identity); ok {
			c.sendReconnectKey(ident)
		}
	}
}

// dispatch executes in. queued reports whether the coordinator already queued
// the reply.
func (c *Client) dispatch(ctx context.Context, in inboundFrame) (resp gameserver.Response, queued bool) {
	sessionID, playerID, _ := c.adapter.hub.Membership(c.id)
	o := gameserver.NewOrigin(c.id)
	o.Ack = in.Ack

	switch in.Event {
	case EventCreateGame:
		return c.do(ctx, gameserver.CreateSession{Origin: o})

	case EventListGames:
		return c.do(ctx, gameserver.ListSessions{Origin: o})

	case EventEnter:
		var p gamePayload
		if err := decode(in.Data, &p); err != nil || p.GameID == nil {
			return failure(CodeBadRequest, "enter requires gameUuid"), false
		}
		resp, queued = c.do(ctx, gameserver.DescribeSession{Origin: o, SessionID: *p.GameID})
		if resp.OK() {
			c.Enter(*p.GameID)
		}
		return resp, queued

	case EventRegister:
		var p registerPayload
		if err := decode(in.Data, &p); err != nil {
			return failure(CodeBadRequest, err.Error()), false
		}
		if p.Username == "" {
			return failure(CodeBadRequest, "username is required"), false
		}
		target := orDefault(p.GameID, sessionID)
		if playerID != uuid.Nil && target == sessionID {
			return failure(CodeBadRequest, "already registered as "+playerID.String()), false
		}
		return c.do(ctx, gameserver.JoinSession{Origin: o, SessionID: target, Name: p.Username})

	case EventLogout:
		var p logoutPayload
		if err := decode(in.Data, &p); err != nil {
			return failure(CodeBadRequest, err.Error()), false
		}
		return c.do(ctx, gameserver.LeaveSession{
			Origin:    o,
			SessionID: orDefault(p.GameID, sessionID),
			PlayerID:  orDefault(p.PlayerID, playerID),
		})

	case EventWhoAmI:
		var p whoamiPayload
		if err := decode(in.Data, &p); err != nil {
			return failure(CodeBadRequest, err.Error()), false
		}
		id := orDefault(p.PlayerID, playerID)
		if p.ReconnectKey != "" {
			_, keyPlayer, err := c.adapter.keys.Verify(p.ReconnectKey)
			if err != nil {
				c.logger.Debug("reconnect key rejected", zap.Error(err))
				return failure(CodeBadRequest, "invalid reconnect key"), false
			}
			id = keyPlayer
		}
		return c.do(ctx, gameserver.WhoAmI{Origin: o, PlayerID: id})

	case EventPlayerList:
		var p gamePayload
		if err := decode(in.Data, &p); err != nil {
			return failure(CodeBadRequest, err.Error()), false
		}
		return c.do(ctx, gameserver.ListPlayers{Origin: o, SessionID: orDefault(p.GameID, sessionID)})

	case EventStart:
		var p gamePayload
		if err := decode(in.Data, &p); err != nil {
			return failure(CodeBadRequest, err.Error()), false
		}
		return c.do(ctx, gameserver.StartSession{Origin: o, SessionID: orDefault(p.GameID, sessionID)})

	case EventNextTurn:
		var p gamePayload
		if err := decode(in.Data, &p); err != nil {
			return failure(CodeBadRequest, err.Error()), false
		}
		return c.do(ctx, gameserver.NextTurn{Origin: o, SessionID: orDefault(p.GameID, sessionID)})

	default:
		return failure(CodeUnknownEvent, "unknown event "+in.Event), false
	}
}

func (c *Client) do(ctx context.Context, req gameserver.Request) (gameserver.Response, bool) {
	resp, err := c.adapter.coord.Do(ctx, req)
	if err != nil {
		c.logger.Warn("coordinator unavailable", zap.Error(err))
		return failure(CodeUnavailable, "game server unavailable"), false
	}
	return resp, true
}

func (c *Client) reply(ack json.RawMessage, resp gameserver.Response) {
	c.adapter.hub.Reply(c.id, ack, resp)
}

func (c *Client) sendReconnectKey(ident gameserver.Identity) {
	if !c.adapter.keys.Enabled() {
		return
	}
	key, err := c.adapter.keys.Issue(ident.SessionID, ident.ID)
	if err != nil {
		c.logger.Error("issuing reconnect key", zap.Error(err))
		return
	}
	frame, err := json.Marshal(gameserver.Event{Name: EventReconnectKey, Data: key})
	if err != nil {
		c.logger.Error("encoding reconnect key", zap.Error(err))
		return
	}
	if err := c.outbox.Push(frame); err != nil {
		c.logger.Warn("reconnect key dropped", zap.Error(err))
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func orDefault(id *uuid.UUID, fallback uuid.UUID) uuid.UUID {
	if id == nil {
		return fallback
	}
	return *id
}

func failure(code, message string) gameserver.Response {
	return gameserver.Response{Error: &gameserver.ErrorBody{Code: code, Message: message}}
}
