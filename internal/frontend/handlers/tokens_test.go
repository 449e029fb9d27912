package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectKeys_RoundTrip(t *testing.T) {
	keys := NewReconnectKeys("s3cret", time.Hour)
	require.True(t, keys.Enabled())
	game, player := uuid.New(), uuid.New()

	key, err := keys.Issue(game, player)
	require.NoError(t, err)

	gotGame, gotPlayer, err := keys.Verify(key)
	require.NoError(t, err)
	assert.Equal(t, game, gotGame)
	assert.Equal(t, player, gotPlayer)
}

func TestReconnectKeys_Expired(t *testing.T) {
	keys := NewReconnectKeys("s3cret", time.Minute)
	now := time.Now()
	keys.now = func() time.Time { return now }
	key, err := keys.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	keys.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, _, err = keys.Verify(key)
	assert.Error(t, err)
}

func TestReconnectKeys_ForeignSecret(t *testing.T) {
	key, err := NewReconnectKeys("one", time.Hour).Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, _, err = NewReconnectKeys("two", time.Hour).Verify(key)
	assert.Error(t, err)
}

func TestReconnectKeys_Garbage(t *testing.T) {
	_, _, err := NewReconnectKeys("s3cret", time.Hour).Verify("not-a-token")
	assert.Error(t, err)
}

func TestReconnectKeys_Disabled(t *testing.T) {
	var nilKeys *ReconnectKeys
	assert.False(t, nilKeys.Enabled())

	keys := NewReconnectKeys("", time.Hour)
	assert.False(t, keys.Enabled())
	_, err := keys.Issue(uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrReconnectDisabled)
	_, _, err = keys.Verify("anything")
	assert.ErrorIs(t, err, ErrReconnectDisabled)
}
