// Package programmer implements the TCP "programmer" state machine and
// server (component F): the vendor's PC configuration tool talks a framed
// protocol distinct from CAN-bound traffic — short system queries with no
// module/group addressing — multiplexed over the same TCP connection that
// also carries full HAPCAN frames (spec.md §4.6). Grounded on
// hapcansocket.c's opcode/response table and internal/server's
// connect/read/write worker shape; the live-traffic fanout reuses
// internal/hub's broadcast hub unchanged.
package programmer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hapcan/gw-server/internal/hapcan"
	"github.com/hapcan/gw-server/internal/hub"
	"github.com/hapcan/gw-server/internal/logging"
	"github.com/hapcan/gw-server/internal/metrics"
)

// Server owns the TCP listener for the programmer protocol and the shared
// hub used to fan live CAN traffic out to every connected client.
type Server struct {
	addr     string
	Identity Identity
	Hub      *hub.Hub
	Inject   func(hapcan.Frame) error

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*Conn
	logger   *slog.Logger

	readyOnce sync.Once
	readyCh   chan struct{}
	wg        sync.WaitGroup
}

// NewServer builds a programmer server bound to addr, reusing hb for
// broadcasting CAN traffic and id as the gateway's own TCP-system-query
// identity (hardware type, description, uptime, etc).
func NewServer(addr string, id Identity, hb *hub.Hub, inject func(hapcan.Frame) error) *Server {
	return &Server{
		addr:     addr,
		Identity: id,
		Hub:      hb,
		Inject:   inject,
		conns:    make(map[string]*Conn),
		logger:   logging.L(),
		readyCh:  make(chan struct{}),
	}
}

// Addr returns the bound listen address; valid only after Serve starts listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Ready closes once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Serve accepts connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("programmer: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("programmer_listen", "addr", ln.Addr().String())

	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			return fmt.Errorf("programmer: accept: %w", err)
		}
		if tcp, ok := nc.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
			_ = tcp.SetKeepAlive(true)
			_ = tcp.SetKeepAlivePeriod(30 * time.Second)
		}
		id := uuid.NewString()
		conn := NewConn(id, nc, s.Identity, s.Inject, s.Hub, s.logger)
		s.mu.Lock()
		s.conns[id] = conn
		s.mu.Unlock()
		metrics.IncTCPRx()
		s.logger.Info("programmer_client_connected", "conn_id", id, "remote", nc.RemoteAddr().String())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, id)
				s.mu.Unlock()
				s.logger.Info("programmer_client_disconnected", "conn_id", id)
			}()
			conn.Serve(ctx.Done())
		}()
	}
}

// Shutdown closes the listener and all active connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		c.close()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
