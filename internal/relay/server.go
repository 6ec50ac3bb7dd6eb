package relay

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Server.
type State int32

const (
	StateStarting State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server accepts client connections and relays each one to the configured
// target through its own upstream connection.
type Server struct {
	ctx    context.Context
	cfg    Config
	log    zerolog.Logger
	state  atomic.Int32
	nextID atomic.Uint64
}

// NewServer returns a Server in the starting state. Canceling ctx aborts
// in-flight sessions and makes a subsequent accept failure a clean stop.
func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{ctx: ctx, cfg: cfg, log: cfg.Logger}
}

// State reports the server's current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Serve accepts connections on ln until accepting fails. Failures of
// individual sessions never stop it. If the server's context has been
// canceled when Accept fails, Serve returns nil; otherwise it returns the
// accept error.
func (s *Server) Serve(ln net.Listener) error {
	s.state.Store(int32(StateListening))
	defer s.state.Store(int32(StateStopped))

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(c)
	}
}

func (s *Server) handle(client net.Conn) {
	defer client.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	log := s.log.With().
		Uint64("session", s.nextID.Add(1)).
		Stringer("client", client.RemoteAddr()).
		Logger()

	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", s.cfg.Target.String())
	if err != nil {
		log.Warn().Err(err).Msg("handshake failed")
		return
	}

	setNoDelay(client)
	setNoDelay(up)

	log.Debug().Msg("relay started")
	start := time.Now()

	err = CopyBidirectional(ctx, client, up)
	log.Debug().Err(err).Dur("duration", time.Since(start)).Msg("relay finished")
}
