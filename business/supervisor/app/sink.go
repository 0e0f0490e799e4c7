// Package app implements the Supervisor, RestartChecker, and the two
// opaque outbound transport sinks (TCP, IPC).
package app

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/internal/logger"
)

// Sink is the opaque transport capability the core depends on: publish
// a whole frame, nothing more. TCP and IPC adapters below are the only
// two implementations wired up; both just fan out accepted connections.
type Sink interface {
	Run(ctx context.Context)
	Close() error
}

// socketSink accepts connections on a net.Listener and writes every
// frame read from a Bus receiver to all currently connected clients.
// A slow client is dropped from the fan-out rather than allowed to
// block the others — the Bus already protects producers; this protects
// one socket client from another.
type socketSink struct {
	name     string
	listener net.Listener
	receiver *app.Receiver
	log      logger.LoggerInterface

	mu      sync.Mutex
	clients map[net.Conn]chan []byte
}

func newSocketSink(name string, listener net.Listener, receiver *app.Receiver, log logger.LoggerInterface) *socketSink {
	return &socketSink{
		name:     name,
		listener: listener,
		receiver: receiver,
		log:      log,
		clients:  make(map[net.Conn]chan []byte),
	}
}

// NewTCPSink listens on addr and republishes bus frames to every
// connected TCP client.
func NewTCPSink(addr string, receiver *app.Receiver, log logger.LoggerInterface) (Sink, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newSocketSink("tcp", l, receiver, log), nil
}

// NewIPCSink listens on a Unix domain socket at path and republishes
// bus frames to every connected local client.
func NewIPCSink(path string, receiver *app.Receiver, log logger.LoggerInterface) (Sink, error) {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return newSocketSink("ipc", l, receiver, log), nil
}

func (s *socketSink) Run(ctx context.Context) {
	go s.acceptLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.receiver.Frames():
			if !ok {
				return
			}
			s.broadcast(frame)
		}
	}
}

func (s *socketSink) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.Warn(ctx, "sink accept failed", "sink", s.name, "error", err)
				return
			}
		}
		ch := make(chan []byte, 1024)
		s.mu.Lock()
		s.clients[conn] = ch
		s.mu.Unlock()
		go s.writeLoop(ctx, conn, ch)
	}
}

func (s *socketSink) writeLoop(ctx context.Context, conn net.Conn, ch chan []byte) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}
}

func (s *socketSink) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- frame:
		default:
			// slow client: drop this frame for it rather than block
			// the rest of the fan-out.
			_ = conn
		}
	}
}

func (s *socketSink) Close() error {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()
	return s.listener.Close()
}
