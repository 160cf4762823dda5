package broadcaster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_JSON(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("connection status", func(t *testing.T) {
		e := NewConnectionStatus(4, true)
		e.Timestamp = ts

		data, err := json.Marshal(e)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"connection_status","server_id":4,"connected":true,"timestamp":"2024-05-01T12:00:00Z"}`, string(data))
		assert.Equal(t, TypeConnectionStatus, e.EventType())
		assert.Equal(t, 4, e.EventServerID())
	})

	t.Run("players count", func(t *testing.T) {
		e := NewPlayersCount(2, false, 0, 0)
		e.Timestamp = ts

		data, err := json.Marshal(e)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"players_count","server_id":2,"connected":false,"current":0,"max":0,"timestamp":"2024-05-01T12:00:00Z"}`, string(data))
		assert.Equal(t, TypePlayersCount, e.EventType())
	})

	t.Run("hand built events carry their type", func(t *testing.T) {
		data, err := json.Marshal(ConnectionStatus{ServerID: 7, Timestamp: ts})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"connection_status","server_id":7,"connected":false,"timestamp":"2024-05-01T12:00:00Z"}`, string(data))

		data, err = json.Marshal(PlayersCount{ServerID: 7, Current: 3, Timestamp: ts})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"players_count","server_id":7,"connected":false,"current":3,"max":0,"timestamp":"2024-05-01T12:00:00Z"}`, string(data))
	})

	t.Run("events decode back without the tag", func(t *testing.T) {
		data, err := json.Marshal(NewPlayersCount(5, true, 2, 16))
		require.NoError(t, err)

		var got PlayersCount
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, 5, got.ServerID)
		assert.Equal(t, 16, got.Max)
	})
}
