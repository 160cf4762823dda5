// Package rcon implements a single RCON session: one TCP connection to one
// game server, driven through connect, authenticate and execute.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/pzrcon/idgenerator"
	"github.com/cyberinferno/pzrcon/logger"
	"github.com/cyberinferno/pzrcon/packet"
)

const (
	// DefaultConnectTimeout bounds dialing and every non-read-loop exchange.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultCommandTimeout is the window of socket silence that ends a command response.
	DefaultCommandTimeout = 2 * time.Second

	// NoResponse is returned by Execute when a command produced no output.
	NoResponse = "(command executed, no response)"
)

// State is the lifecycle state of a Session.
type State int

const (
	Disconnected  State = iota // No connection; initial and post-Disconnect state
	Connected                  // TCP connection open, not yet authenticated
	Authenticated              // Server accepted the password; commands allowed
	Failed                     // A protocol or transport error occurred; the session is unusable
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case Authenticated:
		return "Authenticated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DialFunc opens the transport for a session. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds the settings of a Session.
type Config struct {
	// ServerID is the identity reported in errors and logs.
	ServerID int
	// Host and Port locate the RCON endpoint.
	Host string
	Port int
	// ConnectTimeout bounds dialing, authentication and command writes, and is
	// the read deadline restored after every command. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// CommandTimeout is the inactivity window that ends a command response.
	// Zero means DefaultCommandTimeout.
	CommandTimeout time.Duration
	// Dial replaces the default TCP dialer, mainly for tests.
	Dial DialFunc
	// Logger receives session logs; nil discards them.
	Logger logger.Logger
}

// Session is one connection to one RCON server. Its exchanges are serialized:
// at most one Authenticate or Execute is in flight at a time, so a response
// read loop always runs against an otherwise quiet socket. Disconnect does not
// wait for an in-flight exchange; it closes the socket, which ends the exchange.
type Session struct {
	config Config
	addr   string
	ids    *idgenerator.IdGenerator
	log    logger.Logger

	execMu sync.Mutex

	mu    sync.RWMutex
	conn  net.Conn
	state State
}

// NewSession creates a Session in the Disconnected state.
//
// Parameters:
//   - config: Endpoint, timeouts and collaborators of the session
//
// Returns:
//   - A new *Session; call Connect then Authenticate before Execute
func NewSession(config Config) *Session {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}

	if config.Dial == nil {
		config.Dial = (&net.Dialer{}).DialContext
	}

	if config.Logger == nil {
		config.Logger = logger.NewNopLogger()
	}

	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	return &Session{
		config: config,
		addr:   addr,
		ids:    idgenerator.NewIdGenerator(0),
		log: config.Logger.With(
			logger.Field{Key: "server_id", Value: config.ServerID},
			logger.Field{Key: "addr", Value: addr},
		),
		state: Disconnected,
	}
}

// ServerID returns the server identity of the session.
func (s *Session) ServerID() int {
	return s.config.ServerID
}

// Address returns the "host:port" the session dials.
func (s *Session) Address() string {
	return s.addr
}

// State returns the current state. It reflects the last exchange only; a
// connection that died silently still reports its previous state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect opens the transport, bounded by the configured connect timeout and ctx.
//
// Parameters:
//   - ctx: Context for cancelling the dial
//
// Returns:
//   - nil on success, leaving the session Connected
//   - An *Error of kind ErrConnection if the dial fails or the session is not
//     Disconnected; a failed dial leaves the session Disconnected
func (s *Session) Connect(ctx context.Context) error {
	if state := s.State(); state != Disconnected {
		return NewError(s.config.ServerID, "connect", ErrConnection, fmt.Errorf("session is %s", state))
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	s.log.Info("connecting")
	conn, err := s.config.Dial(dialCtx, "tcp", s.addr)
	if err != nil {
		s.log.Error("connect failed", logger.Field{Key: "error", Value: err})
		return NewError(s.config.ServerID, "connect", ErrConnection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Disconnected {
		_ = conn.Close()
		return NewError(s.config.ServerID, "connect", ErrConnection, fmt.Errorf("session is %s", s.state))
	}

	s.conn = conn
	s.state = Connected
	s.log.Info("connected")
	return nil
}

// Authenticate sends an AUTH packet and reads exactly one response packet.
//
// Parameters:
//   - password: The RCON password
//
// Returns:
//   - nil on success, leaving the session Authenticated
//   - ErrNotConnected if the session is not Connected
//   - ErrAuth if the server answered with request id -1; the session becomes Failed
//   - ErrConnection on transport failure; the session becomes Failed
func (s *Session) Authenticate(password string) error {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	conn, state := s.snapshot()
	if state != Connected {
		return NewError(s.config.ServerID, "authenticate", ErrNotConnected, fmt.Errorf("session is %s", state))
	}

	if err := conn.SetDeadline(time.Now().Add(s.config.ConnectTimeout)); err != nil {
		return s.fail("authenticate", conn, err)
	}

	id := s.ids.Id()
	s.log.Debug("sending auth packet", logger.Field{Key: "request_id", Value: id})
	if err := packet.Write(conn, packet.Packet{ID: id, Type: packet.TypeAuth, Body: password}); err != nil {
		return s.fail("authenticate", conn, err)
	}

	resp, err := packet.Read(conn)
	if err != nil {
		return s.fail("authenticate", conn, err)
	}

	if resp.ID == packet.AuthFailedID {
		s.markFailed(conn)
		s.log.Warn("authentication rejected")
		return NewError(s.config.ServerID, "authenticate", ErrAuth, errors.New("invalid password"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return NewError(s.config.ServerID, "authenticate", ErrConnection, errors.New("session closed during authentication"))
	}

	s.state = Authenticated
	s.log.Info("authenticated")
	return nil
}

// Execute runs a console command and collects its output. Every non-empty
// body arriving before the socket stays silent for the command timeout, or
// before the peer closes the connection, is accumulated; bodies are joined
// with newlines. Completion is inferred from silence, so a reply slower than
// the window is cut short. A peer close still returns what arrived, but the
// session becomes Failed.
//
// Parameters:
//   - command: The command text, passed through unchanged
//
// Returns:
//   - The joined response bodies, or NoResponse if none arrived
//   - ErrNotAuthenticated if the session is not Authenticated
//   - ErrConnection on transport failure; the session becomes Failed
func (s *Session) Execute(command string) (string, error) {
	return s.execute(command, command)
}

// Login issues the Project Zomboid text handshake "login <username> <password>"
// over an authenticated session. The command is never logged verbatim.
//
// Parameters:
//   - username: The in-game admin account
//   - password: Its password
//
// Returns:
//   - The handshake response text
//   - The same errors as Execute
func (s *Session) Login(username, password string) (string, error) {
	return s.execute(fmt.Sprintf("login %s %s", username, password), "login "+username+" ***")
}

// Disconnect closes the transport if open and moves the session to
// Disconnected. It is idempotent and never fails.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Debug("close failed", logger.Field{Key: "error", Value: err})
		}

		s.conn = nil
		s.log.Info("disconnected")
	}

	s.state = Disconnected
}

func (s *Session) execute(command string, logged string) (string, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	conn, state := s.snapshot()
	if state != Authenticated {
		return "", NewError(s.config.ServerID, "execute", ErrNotAuthenticated, fmt.Errorf("session is %s", state))
	}

	id := s.ids.Id()
	s.log.Debug("executing command",
		logger.Field{Key: "request_id", Value: id},
		logger.Field{Key: "command", Value: logged},
	)

	if err := conn.SetWriteDeadline(time.Now().Add(s.config.ConnectTimeout)); err != nil {
		return "", s.fail("execute", conn, err)
	}

	if err := packet.Write(conn, packet.Packet{ID: id, Type: packet.TypeExec, Body: command}); err != nil {
		return "", s.fail("execute", conn, err)
	}

	rd := acquireReadDeadline(conn, s.config.CommandTimeout, s.config.ConnectTimeout)
	defer rd.release()

	var parts []string
	for {
		if err := rd.extend(); err != nil {
			return "", s.fail("execute", conn, err)
		}

		resp, err := packet.Read(conn)
		if err != nil {
			if peerClosed(err) {
				s.log.Warn("server closed the connection")
				s.markFailed(conn)
				break
			}

			if inactive(err) {
				break
			}

			return "", s.fail("execute", conn, err)
		}

		s.log.Debug("received packet",
			logger.Field{Key: "request_id", Value: resp.ID},
			logger.Field{Key: "type", Value: resp.Type},
			logger.Field{Key: "bytes", Value: len(resp.Body)},
		)

		if resp.Body != "" {
			parts = append(parts, resp.Body)
		}
	}

	if len(parts) == 0 {
		return NoResponse, nil
	}

	return strings.Join(parts, "\n"), nil
}

func (s *Session) snapshot() (net.Conn, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn, s.state
}

// markFailed closes conn and marks the session Failed, unless the session
// was disconnected in the meantime.
func (s *Session) markFailed(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = conn.Close()
		s.conn = nil
		s.state = Failed
	}
}

// fail marks the session Failed and wraps err as a connection error.
func (s *Session) fail(op string, conn net.Conn, err error) error {
	s.markFailed(conn)

	if framingError(err) {
		err = fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	s.log.Error(op+" failed", logger.Field{Key: "error", Value: err})
	return NewError(s.config.ServerID, op, ErrConnection, err)
}

func framingError(err error) bool {
	return errors.Is(err, packet.ErrTruncated) || errors.Is(err, packet.ErrMalformed)
}

// peerClosed reports a clean close between frames.
func peerClosed(err error) bool {
	return !framingError(err) && errors.Is(err, io.EOF)
}

// inactive reports that the inactivity window elapsed between frames.
func inactive(err error) bool {
	if framingError(err) {
		return false
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// readDeadline narrows a connection's read deadline to a short window for a
// response read loop. release restores the long deadline and must run on
// every exit path.
type readDeadline struct {
	conn    net.Conn
	window  time.Duration
	restore time.Duration
}

func acquireReadDeadline(conn net.Conn, window, restore time.Duration) *readDeadline {
	return &readDeadline{conn: conn, window: window, restore: restore}
}

func (d *readDeadline) extend() error {
	return d.conn.SetReadDeadline(time.Now().Add(d.window))
}

func (d *readDeadline) release() {
	_ = d.conn.SetReadDeadline(time.Now().Add(d.restore))
}
