// Package adminserver exposes RCON session management to operators: connect,
// disconnect and command execution over HTTP, and live server status over
// websockets.
package adminserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/pzrcon/broadcaster"
	"github.com/cyberinferno/pzrcon/credentials"
	"github.com/cyberinferno/pzrcon/logger"
	"github.com/cyberinferno/pzrcon/players"
	"github.com/cyberinferno/pzrcon/rcon"
)

// Registry is the session registry the service drives. *registry.Registry implements it.
type Registry interface {
	Connect(ctx context.Context, serverID int, creds credentials.Credentials) error
	Disconnect(serverID int)
	ExecuteCommand(serverID int, command string) (string, error)
	IsConnected(serverID int) bool
	ServerIDs() []int
	DisconnectAll()
}

// Config holds the collaborators of a Service.
type Config struct {
	Registry    Registry
	Credentials credentials.Source
	Broadcaster *broadcaster.Broadcaster
	Probe       *players.Probe
	// Audit records every Execute call; nil logs entries through Logger.
	Audit  AuditSink
	Logger logger.Logger
}

// Service ties the registry to the broadcaster: every connection change it
// causes is published as a connection_status event for the server.
type Service struct {
	registry Registry
	creds    credentials.Source
	bus      *broadcaster.Broadcaster
	probe    *players.Probe
	audit    AuditSink
	log      logger.Logger
}

// NewService creates a Service.
//
// Parameters:
//   - config: The collaborators; Registry, Credentials, Broadcaster and Probe are required
//
// Returns:
//   - A new *Service
func NewService(config Config) *Service {
	log := config.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	audit := config.Audit
	if audit == nil {
		audit = NewLogAuditSink(log)
	}

	return &Service{
		registry: config.Registry,
		creds:    config.Credentials,
		bus:      config.Broadcaster,
		probe:    config.Probe,
		audit:    audit,
		log:      log.With(logger.Field{Key: "component", Value: "adminserver"}),
	}
}

// Connect looks up the credentials of serverID and opens a session for it,
// replacing any existing one. The outcome is published as connection_status.
//
// Returns:
//   - nil on success
//   - credentials.ErrUnknownServer if serverID is not configured (nothing is published)
//   - The registry error otherwise
func (s *Service) Connect(ctx context.Context, serverID int) error {
	creds, err := s.creds.Lookup(serverID)
	if err != nil {
		return err
	}

	if err := s.registry.Connect(ctx, serverID, creds); err != nil {
		s.log.Warn("connect failed", logger.Field{Key: "server_id", Value: serverID}, logger.Field{Key: "error", Value: err})
		s.publishStatus(serverID, false)
		return err
	}

	// A reconnect may follow a server restart with different options.
	if err := s.probe.Invalidate(ctx, serverID); err != nil {
		s.log.Warn("player limit invalidation failed", logger.Field{Key: "server_id", Value: serverID}, logger.Field{Key: "error", Value: err})
	}

	s.publishStatus(serverID, true)
	return nil
}

// Disconnect closes the session of serverID and publishes connection_status false.
//
// Returns:
//   - An *rcon.Error of kind rcon.ErrNotConnected if serverID has no live session
func (s *Service) Disconnect(serverID int) error {
	if !s.registry.IsConnected(serverID) {
		return rcon.NewError(serverID, "disconnect", rcon.ErrNotConnected, nil)
	}

	s.registry.Disconnect(serverID)
	s.publishStatus(serverID, false)
	return nil
}

// Execute runs command on serverID and records the outcome in the audit sink.
// If the command cost the server its session, connection_status false is published.
//
// Parameters:
//   - ctx: Context passed to the audit sink
//   - serverID: The server identity
//   - command: Opaque command text
//
// Returns:
//   - The command output
//   - The registry error; the session state errors are safe to retry after Connect
func (s *Service) Execute(ctx context.Context, serverID int, command string) (string, error) {
	wasConnected := s.registry.IsConnected(serverID)
	resp, err := s.registry.ExecuteCommand(serverID, command)

	entry := AuditEntry{
		ServerID:  serverID,
		Command:   command,
		Success:   err == nil,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Response = resp
	}

	if aerr := s.audit.Record(ctx, entry); aerr != nil {
		s.log.Error("audit record failed", logger.Field{Key: "server_id", Value: serverID}, logger.Field{Key: "error", Value: aerr})
	}

	if wasConnected && !s.registry.IsConnected(serverID) {
		s.publishStatus(serverID, false)
	}

	return resp, err
}

// Status returns the cached connection state of serverID as an event.
func (s *Service) Status(serverID int) broadcaster.ConnectionStatus {
	return broadcaster.NewConnectionStatus(serverID, s.registry.IsConnected(serverID))
}

// Players probes the player count of serverID. A server without a session,
// or one whose probe fails, reports connected false with zero counts.
func (s *Service) Players(ctx context.Context, serverID int) broadcaster.PlayersCount {
	if !s.registry.IsConnected(serverID) {
		return broadcaster.NewPlayersCount(serverID, false, 0, 0)
	}

	count, err := s.probe.Count(ctx, serverID)
	if err != nil {
		s.log.Warn("player probe failed", logger.Field{Key: "server_id", Value: serverID}, logger.Field{Key: "error", Value: err})
		if !s.registry.IsConnected(serverID) {
			s.publishStatus(serverID, false)
		}

		return broadcaster.NewPlayersCount(serverID, false, 0, 0)
	}

	return broadcaster.NewPlayersCount(serverID, true, count.Current, count.Max)
}

// Options runs the options command on serverID and splits its output.
func (s *Service) Options(ctx context.Context, serverID int) (players.Options, error) {
	resp, err := s.Execute(ctx, serverID, players.OptionsCommand)
	if err != nil {
		return players.Options{}, err
	}

	return players.ParseOptions(resp), nil
}

// AutoConnect connects every id in ids, at most parallelism at a time.
// Failures do not stop the other connects.
//
// Returns:
//   - nil if every connect succeeded, otherwise all failures joined
func (s *Service) AutoConnect(ctx context.Context, ids []int, parallelism int) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(max(parallelism, 1))

	for _, id := range ids {
		g.Go(func() error {
			if err := s.Connect(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("server %d: %w", id, err))
				mu.Unlock()
				return nil
			}

			s.log.Info("auto-connected", logger.Field{Key: "server_id", Value: id})
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

// Shutdown disconnects every session and publishes connection_status false for each.
func (s *Service) Shutdown() {
	ids := s.registry.ServerIDs()
	s.registry.DisconnectAll()
	for _, id := range ids {
		s.publishStatus(id, false)
	}
}

func (s *Service) publishStatus(serverID int, connected bool) {
	s.bus.Publish(serverID, broadcaster.NewConnectionStatus(serverID, connected))
}

// redactCommand hides the password argument of the login handshake command.
func redactCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) >= 3 && strings.EqualFold(fields[0], "login") {
		return fields[0] + " " + fields[1] + " ***"
	}

	return command
}
