// Package driftdb is the server side of a small in-memory key-value store
// speaking RESP over TCP: strings with optional TTLs, lists with a
// blocking pop, and append-only streams.
package driftdb

import (
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/flonle/driftdb/app/driftdb/store"
)

type Server struct {
	// MaxFrameBytes caps incoming bulk string payloads and array lengths.
	// Zero picks the codec default.
	MaxFrameBytes int

	listener  net.Listener
	quitch    chan os.Signal
	done      chan struct{}
	closeOnce sync.Once
	wg        *sync.WaitGroup
	store     *store.Store
	log       *logrus.Logger
}

func MakeServer(st *store.Store, logger *logrus.Logger) *Server {
	var wg sync.WaitGroup
	st.OnExpire = func(string) { keysExpiredTotal.Inc() }
	return &Server{
		quitch: make(chan os.Signal, 1),
		done:   make(chan struct{}),
		wg:     &wg,
		store:  st,
		log:    logger,
	}
}

// Listen binds addr without accepting yet. Split from Start so tests can
// bind :0 and read the assigned port back.
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	return nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start serves until SIGINT/SIGTERM, then waits for open sessions to
// drain.
func (s *Server) Start(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	s.log.WithField("addr", s.Addr().String()).Info("listening")

	go s.Serve()
	signal.Notify(s.quitch, syscall.SIGINT, syscall.SIGTERM)

	<-s.quitch // blocks until any signal arrives
	s.log.Info("shutting down")
	s.Close()
	s.wg.Wait()
	s.log.Info("shutdown complete")
	return nil
}

// Serve accepts connections until the listener closes. One goroutine per
// connection; each connection handles its requests strictly in order.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.WithError(err).Error("accepting connection")
			continue
		}
		connectionsTotal.Inc()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close stops accepting and wakes blocked waiters so sessions can wind
// down.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	liveConnections.Inc()
	defer liveConnections.Dec()

	sess := newSession(s, conn)
	sess.handle()
}
