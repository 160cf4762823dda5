// Package registry keeps at most one live RCON session per server identity
// and dispatches commands to it.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cyberinferno/pzrcon/credentials"
	"github.com/cyberinferno/pzrcon/logger"
	"github.com/cyberinferno/pzrcon/rcon"
	"github.com/cyberinferno/pzrcon/safemap"
)

// Config holds the per-deployment settings applied to every session.
type Config struct {
	// ConnectTimeout bounds dialing and authentication. Zero means rcon.DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// CommandTimeout is the inactivity window ending a command response.
	// Zero means rcon.DefaultCommandTimeout.
	CommandTimeout time.Duration
	// Dial replaces the TCP dialer of every session, mainly for tests.
	Dial rcon.DialFunc
	// Logger receives registry and session logs; nil discards them.
	Logger logger.Logger
}

// Registry maps server identities to sessions. Inserts and removals are
// serialized by a registry-wide lock. Connect and Disconnect also hold a
// per-identity lock for their whole duration, so an identity is never
// handshaking twice at once. Lookups are lock free and command execution is
// serialized per session: different servers run fully in parallel while one
// server never has two commands in flight.
type Registry struct {
	config   Config
	log      logger.Logger
	mu       sync.Mutex
	locks    *safemap.SafeMap[int, *sync.Mutex]
	sessions *safemap.SafeMap[int, *rcon.Session]
}

// New creates an empty Registry.
//
// Parameters:
//   - config: Timeouts and collaborators shared by all sessions
//
// Returns:
//   - A new *Registry
func New(config Config) *Registry {
	if config.Logger == nil {
		config.Logger = logger.NewNopLogger()
	}

	return &Registry{
		config:   config,
		log:      config.Logger.With(logger.Field{Key: "component", Value: "registry"}),
		locks:    safemap.NewSafeMap[int, *sync.Mutex](),
		sessions: safemap.NewSafeMap[int, *rcon.Session](),
	}
}

// lock acquires the identity lock of serverID and returns its release.
func (r *Registry) lock(serverID int) func() {
	mu, _ := r.locks.LoadOrStore(serverID, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

// Connect opens, authenticates and registers a session for serverID. An
// existing session for serverID is disconnected first. When creds.Username is
// set the Project Zomboid login handshake runs before the session counts as
// connected. On any failure the new session is torn down and not registered.
// Concurrent calls for the same serverID run one after another; later
// Disconnect calls wait for an in-flight Connect to finish.
//
// Parameters:
//   - ctx: Context for cancelling the dial
//   - serverID: The server identity
//   - creds: Endpoint and credentials
//
// Returns:
//   - nil once the session is registered
//   - An *rcon.Error of kind rcon.ErrConnection or rcon.ErrAuth otherwise
func (r *Registry) Connect(ctx context.Context, serverID int, creds credentials.Credentials) error {
	unlock := r.lock(serverID)
	defer unlock()

	r.remove(serverID)

	s := rcon.NewSession(rcon.Config{
		ServerID:       serverID,
		Host:           creds.Host,
		Port:           creds.Port,
		ConnectTimeout: r.config.ConnectTimeout,
		CommandTimeout: r.config.CommandTimeout,
		Dial:           r.config.Dial,
		Logger:         r.config.Logger,
	})

	if err := s.Connect(ctx); err != nil {
		return err
	}

	if err := s.Authenticate(creds.Password); err != nil {
		s.Disconnect()
		return err
	}

	if creds.Username != "" {
		resp, err := s.Login(creds.Username, creds.Password)
		if err != nil {
			s.Disconnect()
			return err
		}

		// The server may drop the connection instead of answering a rejected login.
		if s.State() != rcon.Authenticated {
			s.Disconnect()
			return rcon.NewError(serverID, "login", rcon.ErrConnection, nil)
		}

		r.log.Info("login handshake completed",
			logger.Field{Key: "server_id", Value: serverID},
			logger.Field{Key: "username", Value: creds.Username},
			logger.Field{Key: "response", Value: resp},
		)
	}

	r.mu.Lock()
	r.sessions.Store(serverID, s)
	r.mu.Unlock()

	r.log.Info("session registered", logger.Field{Key: "server_id", Value: serverID})
	return nil
}

// Disconnect removes and disconnects the session of serverID. It is a no-op
// if there is none.
func (r *Registry) Disconnect(serverID int) {
	unlock := r.lock(serverID)
	defer unlock()

	r.remove(serverID)
}

// remove drops the session of serverID. The caller holds the identity lock.
func (r *Registry) remove(serverID int) {
	r.mu.Lock()
	s, ok := r.sessions.LoadAndDelete(serverID)
	r.mu.Unlock()

	if ok {
		s.Disconnect()
		r.log.Info("session removed", logger.Field{Key: "server_id", Value: serverID})
	}
}

// ExecuteCommand runs command on the session of serverID. Calls for the same
// identity are serialized; a call may wait for the previous command's read
// loop to finish. A transport failure evicts the session, so later calls fail
// fast with rcon.ErrNotConnected until Connect is called again.
//
// Parameters:
//   - serverID: The server identity
//   - command: The command text, passed through unchanged
//
// Returns:
//   - The command output
//   - rcon.ErrNotConnected if no session is registered, rcon.ErrConnection on
//     transport failure
func (r *Registry) ExecuteCommand(serverID int, command string) (string, error) {
	s, ok := r.sessions.Load(serverID)
	if !ok {
		return "", rcon.NewError(serverID, "execute", rcon.ErrNotConnected, nil)
	}

	resp, err := s.Execute(command)
	if s.State() != rcon.Authenticated {
		r.evict(serverID, s, err)
	}

	if err != nil {
		if errors.Is(err, rcon.ErrNotAuthenticated) {
			return "", rcon.NewError(serverID, "execute", rcon.ErrNotConnected, err)
		}

		return "", err
	}

	return resp, nil
}

// IsConnected reports whether serverID has a registered, authenticated
// session. This is cached state: a connection that died without a command
// attempt still reports true.
func (r *Registry) IsConnected(serverID int) bool {
	s, ok := r.sessions.Load(serverID)
	return ok && s.State() == rcon.Authenticated
}

// ServerIDs returns the identities that currently have a registered session.
func (r *Registry) ServerIDs() []int {
	return r.sessions.Keys()
}

// DisconnectAll disconnects and removes every session. It is used at shutdown
// and waits for in-flight Connect calls the same way Disconnect does.
func (r *Registry) DisconnectAll() {
	removed := 0
	for _, id := range r.locks.Keys() {
		unlock := r.lock(id)
		r.mu.Lock()
		s, ok := r.sessions.LoadAndDelete(id)
		r.mu.Unlock()

		if ok {
			s.Disconnect()
			removed++
		}
		unlock()
	}

	r.log.Info("all sessions disconnected", logger.Field{Key: "count", Value: removed})
}

// evict removes s if it is still the registered session of serverID.
func (r *Registry) evict(serverID int, s *rcon.Session, cause error) {
	r.mu.Lock()
	evicted := r.sessions.CompareAndDelete(serverID, s)
	r.mu.Unlock()

	s.Disconnect()
	if evicted {
		fields := []logger.Field{{Key: "server_id", Value: serverID}}
		if cause != nil {
			fields = append(fields, logger.Field{Key: "error", Value: cause})
		}

		r.log.Warn("session evicted", fields...)
	}
}
