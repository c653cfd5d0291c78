/*
Package chat contains the connection lifecycle and message fan-out of the relay.

This file defines the Session struct, the per-connection state machine. A session reads one
control envelope to register or log in, replays the history, and then runs a read pump that
publishes client messages next to a write pump that forwards broadcast messages.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"textrelay/internal/app/bus"
	"textrelay/internal/app/message"
	"textrelay/internal/app/user"
	"textrelay/internal/pkg/errs"
	"textrelay/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192
)

// Notices sent as plain text frames during authentication.
const (
	NoticeRegistered         = "Registration successful"
	NoticeRegistrationFailed = "Registration failed: "
	NoticeAuthenticated      = "Authentication successful"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateAwaitingAuth State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

var validate = validator.New()

// controlEnvelope is the first frame of every connection.
type controlEnvelope struct {
	Type     string  `json:"type" validate:"required,oneof=register login"`
	Username string  `json:"username" validate:"required"`
	Password *string `json:"password" validate:"required"`
}

// Session drives a single WebSocket connection.
type Session struct {
	// ID tags every log line of this connection.
	ID string

	// server gives access to the shared relay state.
	server *Server

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// username is set once authentication succeeds.
	username string

	// sub is this session's bus subscription, nil until authenticated.
	sub *bus.Subscription

	state atomic.Int32

	closeOnce sync.Once

	// structured logger with session context.
	logger zerolog.Logger
}

func newSession(id string, server *Server, conn *websocket.Conn, remoteAddr string) *Session {
	return &Session{
		ID:     id,
		server: server,
		conn:   conn,
		logger: logx.Logger().With().
			Str("session_id", id).
			Str("remote_ip", logx.AnonymizeIP(remoteAddr)).
			Logger(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// run drives the session from AwaitingAuth to Closed.
func (s *Session) run(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)

	notice, customErr := s.authenticate(ctx)
	if customErr != nil {
		if notice != "" {
			s.logger.Info().Err(customErr).Msg("Authentication refused, closing session.")
			s.rejectAndClose(notice)
		}
		return
	}

	history, sub := s.server.Join()
	s.sub = sub
	s.state.Store(int32(StateAuthenticated))
	s.logger = s.logger.With().Str("username", s.username).Logger()

	if err := s.writeText([]byte(notice)); err != nil {
		s.logTransportFailure(err, "Failed to send authentication notice")
		return
	}

	for _, m := range history {
		if err := s.writeMessage(m); err != nil {
			s.logTransportFailure(err, "Failed to replay history")
			return
		}
	}

	s.logger.Info().Int("history_replayed", len(history)).Msg("Session authenticated.")

	pumpCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(pumpCtx)
	}()
	go func() {
		defer wg.Done()
		s.pingLoop(pumpCtx)
	}()

	s.readPump()

	cancel()
	wg.Wait()
}

// authenticate reads the control envelope and consults the credential store.
// On success it returns the notice to send once the session has joined the feed.
// On failure it returns the notice to send before closing, which is empty when
// the connection is already gone.
func (s *Session) authenticate(ctx context.Context) (string, *errs.CustomError) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.server.opts.AuthTimeout)); err != nil {
		return "", errs.Wrap(errs.ErrTransportFailure, err)
	}

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		s.logger.Info().Err(err).Msg("Connection closed before authentication.")
		return "", errs.Wrap(errs.ErrTransportFailure, err)
	}

	var env controlEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return invalidControl(err)
	}
	if err := validate.Struct(env); err != nil {
		return invalidControl(err)
	}

	switch env.Type {
	case "register":
		err := s.server.store.Register(ctx, env.Username, *env.Password)
		if err != nil {
			if errors.Is(err, user.ErrAlreadyExists) {
				conflict := errs.Wrap(errs.ErrAuthConflict, err)
				return NoticeRegistrationFailed + conflict.Message, conflict
			}

			s.logger.Error().Err(err).Str("username", env.Username).Msg("Credential store failed during registration.")
			unknown := errs.Wrap(errs.ErrUnknown, err)
			return NoticeRegistrationFailed + unknown.Message, unknown
		}
		s.username = env.Username
		return NoticeRegistered, nil

	case "login":
		ok, err := s.server.store.Authenticate(ctx, env.Username, *env.Password)
		if err != nil {
			s.logger.Error().Err(err).Str("username", env.Username).Msg("Credential store failed during login.")
			rejected := errs.Wrap(errs.ErrAuthRejected, err)
			return rejected.Message, rejected
		}
		if !ok {
			rejected := errs.NewError(errs.ErrAuthRejected)
			return rejected.Message, rejected
		}
		s.username = env.Username
		return NoticeAuthenticated, nil
	}

	return invalidControl(errors.New("unreachable control type"))
}

func invalidControl(cause error) (string, *errs.CustomError) {
	customErr := errs.Wrap(errs.ErrMalformedControl, cause)
	return customErr.Message, customErr
}

// readPump publishes every well-formed client message until the connection fails.
func (s *Session) readPump() {
	idle := s.server.opts.IdleTimeout

	if err := s.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
		s.logTransportFailure(err, "Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logTransportFailure(err, "Error reading message")
			}
			return
		}

		m, err := message.Parse(raw)
		if err != nil {
			s.logger.Warn().
				Err(errs.Wrap(errs.ErrMalformedMessage, err)).
				Int("bytes", len(raw)).
				Msg("Discarding malformed message.")
			continue
		}

		if m.Sender != s.username {
			s.logger.Debug().Str("sender", m.Sender).Msg("Message sender differs from authenticated username.")
		}

		reached := s.server.Publish(m)
		s.logger.Debug().Int("subscribers", reached).Msg("Message broadcast.")
	}
}

// writePump forwards bus messages to the client until ctx ends, the bus closes,
// or a write fails.
func (s *Session) writePump(ctx context.Context) {
	defer s.conn.Close()

	for {
		m, err := s.sub.Recv(ctx)
		if err != nil {
			var lagged *bus.LaggedError
			if errors.As(err, &lagged) {
				s.logger.Warn().Uint64("skipped", lagged.Skipped).Msg("Session fell behind, older messages dropped.")
				continue
			}
			return
		}

		if err := s.writeMessage(m); err != nil {
			s.logTransportFailure(err, "Error writing message")
			return
		}
	}
}

// pingLoop keeps the read deadline of the peer alive.
// WriteControl may run concurrently with writePump.
func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.server.opts.IdleTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logTransportFailure(err, "Error writing ping")
				s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) writeMessage(m message.Message) error {
	payload, err := m.Encode()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error marshaling message for client.")
		return nil
	}
	return s.writeText(payload)
}

func (s *Session) writeText(payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// rejectAndClose sends the final notice of a refused session followed by a close frame.
func (s *Session) rejectAndClose(notice string) {
	if err := s.writeText([]byte(notice)); err != nil {
		s.logTransportFailure(err, "Failed to send authentication notice")
		return
	}

	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send close frame.")
	}
}

// kick sends a going-away close frame and closes the connection. It is called from
// outside the session's goroutines, which then observe the failure and clean up.
func (s *Session) kick(reason string) {
	closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		s.server.logger.Debug().Err(err).Str("session_id", s.ID).Msg("Failed to send close frame on kick.")
	}

	if err := s.conn.Close(); err != nil {
		s.server.logger.Debug().Err(err).Str("session_id", s.ID).Msg("Connection close error on kick.")
	}
}

// close releases the subscription and the connection. It runs on the session goroutine.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		if s.sub != nil {
			s.sub.Close()
		}

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error.")
		}

		s.logger.Info().Msg("Session closed.")
	})
}

func (s *Session) logTransportFailure(err error, msg string) {
	s.logger.Info().Err(errs.Wrap(errs.ErrTransportFailure, err)).Msg(msg)
}
