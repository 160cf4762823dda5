// Package credentials resolves a server identity to the plaintext endpoint
// and credentials needed to open an RCON session.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownServer is returned when no credentials exist for a server identity.
var ErrUnknownServer = errors.New("credentials: unknown server")

// Credentials locate and authenticate one RCON endpoint.
type Credentials struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Username is optional. When set, the Project Zomboid login handshake is
	// issued after the RCON AUTH exchange.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password"`
}

// Source looks up credentials by server identity.
type Source interface {
	// Lookup returns the credentials of serverID.
	//
	// Parameters:
	//   - serverID: The server identity
	//
	// Returns:
	//   - The credentials
	//   - ErrUnknownServer if serverID is not configured
	Lookup(serverID int) (Credentials, error)

	// ServerIDs returns every configured identity in ascending order.
	ServerIDs() []int
}

// Server is one entry of a servers file.
type Server struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	AutoConnect bool   `yaml:"autoconnect"`
	Credentials `yaml:",inline"`
}

type fileContents struct {
	Servers []Server `yaml:"servers"`
}

// StaticSource is an in-memory Source.
type StaticSource struct {
	servers map[int]Server
}

// NewStaticSource builds a Source from servers. Later duplicates of an id
// replace earlier ones.
func NewStaticSource(servers ...Server) *StaticSource {
	s := &StaticSource{servers: make(map[int]Server, len(servers))}
	for _, srv := range servers {
		s.servers[srv.ID] = srv
	}

	return s
}

// LoadFile reads a YAML servers file of the form
//
//	servers:
//	  - id: 1
//	    name: main
//	    host: 127.0.0.1
//	    port: 27015
//	    username: admin
//	    password: secret
//	    autoconnect: true
//
// Parameters:
//   - path: Path of the YAML file
//
// Returns:
//   - A StaticSource holding the servers
//   - An error if the file cannot be read, parsed or is invalid
func LoadFile(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}

	var contents fileContents
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}

	seen := make(map[int]bool, len(contents.Servers))
	for _, srv := range contents.Servers {
		if seen[srv.ID] {
			return nil, fmt.Errorf("credentials: %s: duplicate server id %d", path, srv.ID)
		}
		seen[srv.ID] = true

		if srv.Host == "" || srv.Port <= 0 || srv.Port > 65535 {
			return nil, fmt.Errorf("credentials: %s: server %d: host and a valid port are required", path, srv.ID)
		}
	}

	return NewStaticSource(contents.Servers...), nil
}

// Lookup implements Source.
func (s *StaticSource) Lookup(serverID int) (Credentials, error) {
	srv, ok := s.servers[serverID]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %d", ErrUnknownServer, serverID)
	}

	return srv.Credentials, nil
}

// ServerIDs implements Source.
func (s *StaticSource) ServerIDs() []int {
	ids := make([]int, 0, len(s.servers))
	for id := range s.servers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids
}

// AutoConnectIDs returns the identities flagged for connection at startup, ascending.
func (s *StaticSource) AutoConnectIDs() []int {
	var ids []int
	for _, id := range s.ServerIDs() {
		if s.servers[id].AutoConnect {
			ids = append(ids, id)
		}
	}

	return ids
}
