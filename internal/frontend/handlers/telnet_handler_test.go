package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/scrabble/internal/config"
	"github.com/cory-johannsen/scrabble/internal/frontend/telnet"
	"github.com/cory-johannsen/scrabble/internal/gameserver"
	"github.com/cory-johannsen/scrabble/internal/testutil"
)

func TestTelnetHandler_TwoPlayersOverTCP(t *testing.T) {
	f := newFixture(t, nil)
	acc := telnet.NewAcceptor(config.TelnetConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, NewTelnetHandler(f.adapter), zaptest.NewLogger(t))
	go func() { _ = acc.ListenAndServe() }()
	t.Cleanup(acc.Stop)
	require.Eventually(t, func() bool { return acc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	alice := testutil.NewFrameClient(t, acc.Addr())
	bob := testutil.NewFrameClient(t, acc.Addr())

	created := alice.Request(EventCreateGame, nil)
	require.Nil(t, created.Error)
	var id uuid.UUID
	require.NoError(t, json.Unmarshal(created.Data, &id))

	require.Nil(t, bob.Request(EventEnter, map[string]any{"gameUuid": id}).Error)
	require.Nil(t, alice.Request(EventRegister, map[string]any{"gameUuid": id, "username": "Alice"}).Error)
	require.Nil(t, bob.Request(EventRegister, map[string]any{"username": "Bob"}).Error)

	push := alice.NextEvent(gameserver.EventPlayersList)
	var roster struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(push.Data, &roster))
	require.NotEmpty(t, roster.Data)

	start := alice.Request(EventStart, nil)
	require.Nil(t, start.Error)
	var result struct {
		BagLen int `json:"bagLen"`
	}
	require.NoError(t, json.Unmarshal(start.Data, &result))
	assert.Equal(t, 98-14, result.BagLen)

	for _, c := range []*testutil.FrameClient{alice, bob} {
		rack := c.NextEvent(gameserver.EventTilesDealt)
		var tiles []json.RawMessage
		require.NoError(t, json.Unmarshal(rack.Data, &tiles))
		assert.Len(t, tiles, 7)
	}

	again := bob.Request(EventStart, nil)
	require.NotNil(t, again.Error)
	assert.Equal(t, "GameAlreadyStarted", again.Error.Code)
}
