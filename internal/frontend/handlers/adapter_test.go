package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/scrabble/internal/game/registry"
	"github.com/cory-johannsen/scrabble/internal/game/rng"
	"github.com/cory-johannsen/scrabble/internal/game/tile"
	"github.com/cory-johannsen/scrabble/internal/gameserver"
)

// memTransport is an in-memory Transport driven by a test.
type memTransport struct {
	in     chan []byte
	out    chan []byte
	once   sync.Once
	closed chan struct{}
}

func newMemTransport() *memTransport {
	return &memTransport{
		in:     make(chan []byte),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (m *memTransport) ReadFrame() ([]byte, error) {
	select {
	case frame, ok := <-m.in:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-m.closed:
		return nil, errors.New("transport closed")
	}
}

func (m *memTransport) WriteFrame(frame []byte) error {
	select {
	case m.out <- frame:
		return nil
	case <-m.closed:
		return errors.New("transport closed")
	}
}

func (m *memTransport) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

type wireFrame struct {
	Event string          `json:"event"`
	Ack   json.RawMessage `json:"ack"`
	Data  json.RawMessage `json:"data"`
	Error *gameserver.ErrorBody
}

// testClient drives one served connection.
type testClient struct {
	t       *testing.T
	tr      *memTransport
	ack     int
	pending []wireFrame
	done    chan error
}

func (c *testClient) send(event string, data any) int {
	c.t.Helper()
	c.ack++
	raw, err := json.Marshal(map[string]any{"event": event, "ack": c.ack, "data": data})
	require.NoError(c.t, err)
	c.tr.in <- raw
	return c.ack
}

func (c *testClient) next() wireFrame {
	c.t.Helper()
	select {
	case raw := <-c.tr.out:
		var f wireFrame
		require.NoError(c.t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(5 * time.Second):
		c.t.Fatal("timed out waiting for a frame")
		return wireFrame{}
	}
}

func (c *testClient) request(event string, data any) wireFrame {
	c.t.Helper()
	ack := c.send(event, data)
	for {
		f := c.next()
		if f.Event == "" && string(f.Ack) == jsonNumber(ack) {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

func (c *testClient) event(name string) wireFrame {
	c.t.Helper()
	for i, f := range c.pending {
		if f.Event == name {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f
		}
	}
	for {
		f := c.next()
		if f.Event == name {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

func (c *testClient) hangUp() {
	close(c.tr.in)
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		c.t.Fatal("Serve did not return")
	}
}

func jsonNumber(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type fixture struct {
	t       *testing.T
	coord   *gameserver.Coordinator
	hub     *Hub
	adapter *Adapter
}

func newFixture(t *testing.T, keys *ReconnectKeys) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := NewHub(logger)
	reg := registry.New(registry.WithRandom(rng.NewSeededSource(3)))
	coord := gameserver.New(reg, hub, logger, 8)
	go coord.Run()
	t.Cleanup(func() {
		coord.Close()
		<-coord.Done()
	})
	return &fixture{t: t, coord: coord, hub: hub, adapter: NewAdapter(coord, hub, keys, logger, 16)}
}

func (f *fixture) connect(sessionID uuid.UUID) *testClient {
	f.t.Helper()
	tr := newMemTransport()
	c := &testClient{t: f.t, tr: tr, done: make(chan error, 1)}
	go func() {
		c.done <- f.adapter.Serve(context.Background(), tr, "test", "pipe", sessionID)
	}()
	return c
}

func (f *fixture) createGame(c *testClient) uuid.UUID {
	f.t.Helper()
	reply := c.request(EventCreateGame, nil)
	require.Nil(f.t, reply.Error)
	var id uuid.UUID
	require.NoError(f.t, json.Unmarshal(reply.Data, &id))
	return id
}

type identity struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	GameUUID uuid.UUID `json:"gameUuid"`
}

func decodeIdentity(t *testing.T, f wireFrame) identity {
	t.Helper()
	require.Nil(t, f.Error)
	var ident identity
	require.NoError(t, json.Unmarshal(f.Data, &ident))
	return ident
}

func TestAdapter_CreateListAndEnter(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()

	id := f.createGame(c)
	list := c.request(EventListGames, nil)
	var ids []uuid.UUID
	require.NoError(t, json.Unmarshal(list.Data, &ids))
	assert.Equal(t, []uuid.UUID{id}, ids)

	reply := c.request(EventEnter, map[string]any{"gameUuid": id})
	require.Nil(t, reply.Error)
	var summary registry.Summary
	require.NoError(t, json.Unmarshal(reply.Data, &summary))
	assert.Equal(t, tile.BagSize, summary.BagLen)

	reply = c.request(EventEnter, map[string]any{"gameUuid": uuid.New()})
	require.NotNil(t, reply.Error)
	assert.Equal(t, "GameNotFound", reply.Error.Code)
}

func TestAdapter_RegisterUsesNamespaceAndBroadcasts(t *testing.T) {
	f := newFixture(t, nil)
	lobby := f.connect(uuid.Nil)
	defer lobby.hangUp()
	id := f.createGame(lobby)

	alice := f.connect(id)
	defer alice.hangUp()
	spectator := f.connect(id)
	defer spectator.hangUp()
	spectator.request(EventListGames, nil)

	ident := decodeIdentity(t, alice.request(EventRegister, map[string]any{"username": "Alice"}))
	assert.Equal(t, "Alice", ident.Name)
	assert.Equal(t, id, ident.GameUUID)

	for _, c := range []*testClient{alice, spectator} {
		push := c.event(gameserver.EventPlayersList)
		var resp struct {
			Data []identity `json:"data"`
		}
		require.NoError(t, json.Unmarshal(push.Data, &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, ident.ID, resp.Data[0].ID)
	}

	players := alice.request(EventPlayerList, nil)
	var roster []identity
	require.NoError(t, json.Unmarshal(players.Data, &roster))
	assert.Len(t, roster, 1)
}

func TestAdapter_RegisterRequiresUsername(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()
	id := f.createGame(c)

	reply := c.request(EventRegister, map[string]any{"gameUuid": id})
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeBadRequest, reply.Error.Code)
}

func TestAdapter_RegisterTwiceOnOneConnection(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()
	id := f.createGame(c)
	alice := decodeIdentity(t, c.request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"}))

	for i := 0; i < 3; i++ {
		reply := c.request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"})
		require.NotNil(t, reply.Error)
		assert.Equal(t, CodeBadRequest, reply.Error.Code)
	}
	players := c.request(EventPlayerList, nil)
	var roster []identity
	require.NoError(t, json.Unmarshal(players.Data, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, alice.ID, roster[0].ID)

	other := f.connect(id)
	defer other.hangUp()
	decodeIdentity(t, other.request(EventRegister, map[string]any{"username": "Bob"}))

	reply := c.request(EventLogout, nil)
	require.Nil(t, reply.Error)
	again := decodeIdentity(t, c.request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"}))
	assert.NotEqual(t, alice.ID, again.ID, "after logout the connection may register again")
}

func TestAdapter_RegisterReplyPrecedesRosterPush(t *testing.T) {
	f := newFixture(t, nil)
	lobby := f.connect(uuid.Nil)
	defer lobby.hangUp()
	id := f.createGame(lobby)

	for i := 0; i < 20; i++ {
		c := f.connect(id)
		ack := c.send(EventRegister, map[string]any{"username": "Alice"})
		first := c.next()
		assert.Empty(t, first.Event, "first frame must be the reply")
		assert.Equal(t, jsonNumber(ack), string(first.Ack))
		ident := decodeIdentity(t, first)

		push := c.next()
		assert.Equal(t, gameserver.EventPlayersList, push.Event)

		c.request(EventLogout, map[string]any{"playerUuid": ident.ID})
		c.hangUp()
	}
}

func TestAdapter_LogoutDefaultsToCurrentPlayer(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()
	id := f.createGame(c)
	decodeIdentity(t, c.request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"}))

	reply := c.request(EventLogout, nil)
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `"Player successfully removed"`, string(reply.Data))

	reply = c.request(EventLogout, nil)
	require.NotNil(t, reply.Error)
	assert.Equal(t, "PlayerNotRegistered", reply.Error.Code)
}

func TestAdapter_WhoAmIRebindsAfterReconnect(t *testing.T) {
	f := newFixture(t, nil)
	first := f.connect(uuid.Nil)
	id := f.createGame(first)
	ident := decodeIdentity(t, first.request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"}))
	first.hangUp()
	bob := f.connect(id)
	defer bob.hangUp()
	decodeIdentity(t, bob.request(EventRegister, map[string]any{"username": "Bob"}))

	second := f.connect(uuid.Nil)
	defer second.hangUp()
	reply := second.request(EventWhoAmI, map[string]any{"playerUuid": ident.ID})
	assert.Equal(t, ident, decodeIdentity(t, reply))

	start := second.request(EventStart, nil)
	require.Nil(t, start.Error, "start falls back to the rebound namespace")
	rack := second.event(gameserver.EventTilesDealt)
	var tiles []tile.Tile
	require.NoError(t, json.Unmarshal(rack.Data, &tiles))
	assert.Len(t, tiles, tile.RackSize)
}

func TestAdapter_WhoAmIUnknownPlayer(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()

	reply := c.request(EventWhoAmI, map[string]any{"playerUuid": uuid.New()})
	require.NotNil(t, reply.Error)
	assert.Equal(t, "PlayerNotRegistered", reply.Error.Code)
}

func TestAdapter_ReconnectKey(t *testing.T) {
	keys := NewReconnectKeys("s3cret", time.Hour)
	f := newFixture(t, keys)
	first := f.connect(uuid.Nil)
	id := f.createGame(first)
	ident := decodeIdentity(t, first.request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"}))

	push := first.event(EventReconnectKey)
	var key string
	require.NoError(t, json.Unmarshal(push.Data, &key))
	require.NotEmpty(t, key)
	first.hangUp()

	second := f.connect(uuid.Nil)
	defer second.hangUp()
	reply := second.request(EventWhoAmI, map[string]any{"reconnectKey": key})
	assert.Equal(t, ident, decodeIdentity(t, reply))

	reply = second.request(EventWhoAmI, map[string]any{"reconnectKey": "forged"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeBadRequest, reply.Error.Code)
}

func TestAdapter_NextTurnBroadcast(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()
	id := f.createGame(c)
	c.request(EventEnter, map[string]any{"gameUuid": id})
	c.request(EventRegister, map[string]any{"username": "Alice"})
	other := f.connect(id)
	defer other.hangUp()
	bob := decodeIdentity(t, other.request(EventRegister, map[string]any{"username": "Bob"}))

	reply := c.request(EventNextTurn, nil)
	require.Nil(t, reply.Error)
	push := c.event(gameserver.EventTurnChanged)
	var turn struct {
		Turn          int      `json:"turn"`
		CurrentPlayer identity `json:"currentPlayer"`
	}
	require.NoError(t, json.Unmarshal(push.Data, &turn))
	assert.Equal(t, 1, turn.Turn)
	assert.Equal(t, bob.ID, turn.CurrentPlayer.ID)
}

func TestAdapter_MalformedAndUnknownFrames(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()

	c.tr.in <- []byte("{not json")
	reply := c.next()
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeBadRequest, reply.Error.Code)

	reply = c.request("dance", nil)
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeUnknownEvent, reply.Error.Code)

	reply = c.request(EventStart, map[string]any{"gameUuid": "not-a-uuid"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeBadRequest, reply.Error.Code)
}

func TestAdapter_CoordinatorClosed(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	defer c.hangUp()
	f.coord.Close()
	<-f.coord.Done()

	reply := c.request(EventListGames, nil)
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeUnavailable, reply.Error.Code)
}

func TestAdapter_DisconnectKeepsPlayerAndDetaches(t *testing.T) {
	f := newFixture(t, nil)
	c := f.connect(uuid.Nil)
	id := f.createGame(c)
	ident := decodeIdentity(t, c.request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"}))
	c.hangUp()

	assert.Equal(t, 0, f.hub.Len())
	resp, err := f.coord.Do(context.Background(), gameserver.WhoAmI{Origin: gameserver.NewOrigin(""), PlayerID: ident.ID})
	require.NoError(t, err)
	assert.True(t, resp.OK())
}
