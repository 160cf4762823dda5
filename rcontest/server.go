// Package rcontest provides an in-process RCON server for tests. It speaks the
// real wire format over TCP on the loopback interface and answers commands
// from a scripted Handler.
package rcontest

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/pzrcon/idgenerator"
	"github.com/cyberinferno/pzrcon/logger"
	"github.com/cyberinferno/pzrcon/packet"
	"github.com/cyberinferno/pzrcon/safemap"
)

// Reply scripts the server's answer to one command.
type Reply struct {
	// Bodies are sent as separate RESPONSE_VALUE packets, in order.
	Bodies []string
	// Delay is waited before each packet.
	Delay time.Duration
	// Split writes every packet in two halves with Delay between them.
	Split bool
	// Close drops the connection instead of answering.
	Close bool
}

// Handler produces the Reply for a received command.
type Handler func(command string) Reply

// Text is a Handler answering every command with a single body.
func Text(body string) Handler {
	return func(string) Reply {
		return Reply{Bodies: []string{body}}
	}
}

// Server is a fake RCON server. Create it with NewServer, configure the
// exported fields, then call Start.
type Server struct {
	Logger   logger.Logger
	Password string
	Handler  Handler
	// AuthResponseID overrides the id of every auth response when non-zero;
	// use packet.AuthFailedID to reject all logins.
	AuthResponseID int32

	listener    net.Listener
	conns       *safemap.SafeMap[int32, net.Conn]
	idGenerator *idgenerator.IdGenerator
	running     atomic.Bool
	wg          sync.WaitGroup

	mu       sync.Mutex
	commands []string
	accepted int
}

// NewServer creates a server accepting password and answering with handler.
//
// Parameters:
//   - password: The RCON password the server accepts
//   - handler: Scripted answers; nil answers nothing
//
// Returns:
//   - A new, stopped *Server
func NewServer(password string, handler Handler) *Server {
	if handler == nil {
		handler = func(string) Reply { return Reply{} }
	}

	return &Server{
		Logger:      logger.NewNopLogger(),
		Password:    password,
		Handler:     handler,
		conns:       safemap.NewSafeMap[int32, net.Conn](),
		idGenerator: idgenerator.NewIdGenerator(0),
	}
}

// Start listens on an ephemeral loopback port and begins accepting.
//
// Returns:
//   - An error if the server is already running or listening fails
func (s *Server) Start() error {
	if s.running.Load() {
		return errors.New("rcontest: server already running")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("rcontest: listen: %w", err)
	}

	s.listener = ln
	s.running.Store(true)
	s.Logger.Info("fake rcon server started", logger.Field{Key: "addr", Value: ln.Addr().String()})

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to exit. Safe to call when not running.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	_ = s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
}

// DropConnections closes every open client connection, simulating a server
// crash or network failure. The listener stays open.
func (s *Server) DropConnections() {
	s.conns.Range(func(id int32, conn net.Conn) bool {
		_ = conn.Close()
		s.conns.Delete(id)
		return true
	})
}

// Addr returns the listening "host:port".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Commands returns every EXEC body received so far, in arrival order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// OpenConnections returns the number of client connections currently open.
func (s *Server) OpenConnections() int {
	return s.conns.Len()
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			s.Logger.Error("fake rcon server accept error", logger.Field{Key: "error", Value: err})
			continue
		}

		id := s.idGenerator.Id()
		s.conns.Store(id, conn)

		// Stop may have swept the connections before this one was stored.
		if !s.running.Load() {
			s.conns.Delete(id)
			_ = conn.Close()
			return
		}

		s.mu.Lock()
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(id, conn)
	}
}

func (s *Server) handle(id int32, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		s.conns.Delete(id)
	}()

	for {
		req, err := packet.Read(conn)
		if err != nil {
			return
		}

		switch req.Type {
		case packet.TypeAuth:
			respID := req.ID
			if s.AuthResponseID != 0 {
				respID = s.AuthResponseID
			} else if req.Body != s.Password {
				respID = packet.AuthFailedID
			}

			if err := packet.Write(conn, packet.Packet{ID: respID, Type: packet.TypeAuthResponse}); err != nil {
				return
			}

		case packet.TypeExec:
			s.mu.Lock()
			s.commands = append(s.commands, req.Body)
			s.mu.Unlock()

			reply := s.Handler(req.Body)
			if reply.Close {
				return
			}

			if err := s.reply(conn, req.ID, reply); err != nil {
				return
			}
		}
	}
}

func (s *Server) reply(conn net.Conn, id int32, reply Reply) error {
	for _, body := range reply.Bodies {
		time.Sleep(reply.Delay)

		b := packet.Encode(id, packet.TypeResponseValue, body)
		if !reply.Split {
			if _, err := conn.Write(b); err != nil {
				return err
			}

			continue
		}

		half := len(b) / 2
		if _, err := conn.Write(b[:half]); err != nil {
			return err
		}

		time.Sleep(reply.Delay)
		if _, err := conn.Write(b[half:]); err != nil {
			return err
		}
	}

	return nil
}
