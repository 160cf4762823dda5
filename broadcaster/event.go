package broadcaster

import (
	"encoding/json"
	"time"
)

// EventType tags the payload of an Event on the wire.
type EventType string

const (
	TypeConnectionStatus EventType = "connection_status"
	TypePlayersCount     EventType = "players_count"
)

// Event is a status payload published for one server identity. Concrete
// events marshal to JSON objects whose "type" field is their EventType, so a
// zero value built by hand still encodes its tag.
type Event interface {
	EventType() EventType
	EventServerID() int
}

// ConnectionStatus reports whether a server currently has a live session.
type ConnectionStatus struct {
	ServerID  int       `json:"server_id"`
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// NewConnectionStatus creates a ConnectionStatus event stamped with the current UTC time.
//
// Parameters:
//   - serverID: The server identity
//   - connected: Whether the server has an authenticated session
//
// Returns:
//   - A ConnectionStatus event
func NewConnectionStatus(serverID int, connected bool) ConnectionStatus {
	return ConnectionStatus{
		ServerID:  serverID,
		Connected: connected,
		Timestamp: time.Now().UTC(),
	}
}

func (e ConnectionStatus) EventType() EventType { return TypeConnectionStatus }
func (e ConnectionStatus) EventServerID() int   { return e.ServerID }

// MarshalJSON encodes e with its "type" tag.
func (e ConnectionStatus) MarshalJSON() ([]byte, error) {
	type fields ConnectionStatus
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{TypeConnectionStatus, fields(e)})
}

// PlayersCount reports the current and maximum player count of a server.
// Connected is false, and the counts zero, when the server could not be probed.
type PlayersCount struct {
	ServerID  int       `json:"server_id"`
	Connected bool      `json:"connected"`
	Current   int       `json:"current"`
	Max       int       `json:"max"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPlayersCount creates a PlayersCount event stamped with the current UTC time.
//
// Parameters:
//   - serverID: The server identity
//   - connected: Whether the probe reached the server
//   - current: Players online
//   - max: Configured player limit, 0 if unknown
//
// Returns:
//   - A PlayersCount event
func NewPlayersCount(serverID int, connected bool, current, max int) PlayersCount {
	return PlayersCount{
		ServerID:  serverID,
		Connected: connected,
		Current:   current,
		Max:       max,
		Timestamp: time.Now().UTC(),
	}
}

func (e PlayersCount) EventType() EventType { return TypePlayersCount }
func (e PlayersCount) EventServerID() int   { return e.ServerID }

// MarshalJSON encodes e with its "type" tag.
func (e PlayersCount) MarshalJSON() ([]byte, error) {
	type fields PlayersCount
	return json.Marshal(struct {
		Type EventType `json:"type"`
		fields
	}{TypePlayersCount, fields(e)})
}
