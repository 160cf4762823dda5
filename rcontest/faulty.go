package rcontest

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

// ErrBroken is returned by a FaultyConn after Break.
var ErrBroken = errors.New("rcontest: connection broken")

// FaultyConn wraps a client connection so a test can make its transport fail
// deterministically.
type FaultyConn struct {
	net.Conn
	broken atomic.Bool
}

// Break makes every following Read and Write fail with ErrBroken.
func (c *FaultyConn) Break() {
	c.broken.Store(true)
}

// Read implements net.Conn.
func (c *FaultyConn) Read(b []byte) (int, error) {
	if c.broken.Load() {
		return 0, ErrBroken
	}

	return c.Conn.Read(b)
}

// Write implements net.Conn.
func (c *FaultyConn) Write(b []byte) (int, error) {
	if c.broken.Load() {
		return 0, ErrBroken
	}

	return c.Conn.Write(b)
}

// FaultyDialer dials real TCP connections and wraps them in FaultyConn.
type FaultyDialer struct {
	mu    sync.Mutex
	conns []*FaultyConn
}

// DialContext has the signature of net.Dialer.DialContext.
func (d *FaultyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	fc := &FaultyConn{Conn: conn}
	d.mu.Lock()
	d.conns = append(d.conns, fc)
	d.mu.Unlock()
	return fc, nil
}

// BreakAll breaks every connection dialed so far.
func (d *FaultyDialer) BreakAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		c.Break()
	}
}
