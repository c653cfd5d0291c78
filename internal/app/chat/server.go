/*
Package chat contains the connection lifecycle and message fan-out of the relay.

This file defines the Server struct, the explicit context object shared by every connection.
It owns the credential store, the history log and the broadcast bus, tracks live sessions,
and keeps history order and broadcast order identical.
*/
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"textrelay/internal/app/bus"
	"textrelay/internal/app/history"
	"textrelay/internal/app/message"
	"textrelay/internal/app/user"
	"textrelay/internal/pkg/logx"
	"textrelay/internal/pkg/randx"
)

const (
	// DefaultAuthTimeout bounds the wait for the control envelope.
	DefaultAuthTimeout = 10 * time.Second

	// DefaultIdleTimeout is how long an authenticated connection may stay silent,
	// pongs included, before it is dropped.
	DefaultIdleTimeout = 60 * time.Second
)

// ErrServerClosed is returned by Serve once Shutdown has started.
var ErrServerClosed = errors.New("chat: server closed")

// Options tunes per-connection timeouts.
type Options struct {
	AuthTimeout time.Duration
	IdleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = DefaultAuthTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	return o
}

// Server coordinates all sessions around the shared relay state.
type Server struct {
	// store is the credential registry consulted during authentication.
	store user.Store

	// history is the append-only log replayed to each new session.
	history *history.Log

	// bus fans accepted messages out to every authenticated session.
	bus *bus.Bus

	opts Options

	// feedMu makes append+publish and snapshot+subscribe atomic with respect to each other.
	// It is only held for in-memory operations.
	feedMu sync.Mutex

	// mu protects sessions and closing.
	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool

	// wg tracks running sessions for Shutdown.
	wg sync.WaitGroup

	// structured logger with Server context.
	logger zerolog.Logger
}

// NewServer constructs a Server around the given shared instances.
func NewServer(store user.Store, log *history.Log, b *bus.Bus, opts Options) *Server {
	return &Server{
		store:    store,
		history:  log,
		bus:      b,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
		logger:   logx.Component("Server"),
	}
}

// Serve runs one session on conn until the connection closes.
// It takes ownership of conn and always closes it.
func (s *Server) Serve(ctx context.Context, conn *websocket.Conn, remoteAddr string) error {
	session := newSession(randx.SessionID(), s, conn, remoteAddr)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		session.kick("server shutting down")
		return ErrServerClosed
	}
	s.sessions[session.ID] = session
	s.wg.Add(1)
	active := len(s.sessions)
	s.mu.Unlock()

	s.logger.Debug().
		Str("session_id", session.ID).
		Int("active_sessions", active).
		Msg("Session accepted.")

	defer func() {
		s.mu.Lock()
		delete(s.sessions, session.ID)
		active := len(s.sessions)
		s.mu.Unlock()
		s.wg.Done()

		s.logger.Debug().
			Str("session_id", session.ID).
			Int("active_sessions", active).
			Msg("Session finished.")
	}()

	session.run(ctx)
	return nil
}

// Join atomically snapshots the history and subscribes to the bus, so every accepted
// message is either in the snapshot or delivered through the subscription, never both.
func (s *Server) Join() ([]message.Message, *bus.Subscription) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	return s.history.Snapshot(), s.bus.Subscribe()
}

// Publish appends m to the history and broadcasts it to every subscription.
// It returns the number of subscriptions reached.
func (s *Server) Publish(m message.Message) int {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.history.Append(m)
	return s.bus.Publish(m)
}

// History returns a snapshot of the accepted messages.
func (s *Server) History() []message.Message {
	return s.history.Snapshot()
}

// Credentials returns the credential store shared by all sessions.
func (s *Server) Credentials() user.Store {
	return s.store
}

// ActiveSessions returns the number of connections currently being served.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Shutdown refuses new sessions, closes every live one and waits for them to exit
// or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down relay server...")

	s.mu.Lock()
	s.closing = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.kick("server shutting down")
	}
	s.bus.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Int("closed_sessions", len(sessions)).Msg("Relay server shutdown complete.")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Relay server shutdown timed out with sessions still running.")
		return ctx.Err()
	}
}
