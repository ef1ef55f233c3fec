package driftdb

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flonle/driftdb/app/driftdb/resp"
	"github.com/flonle/driftdb/app/driftdb/store"
)

// Session owns one client connection: a decoder for requests, an encoder
// reused across replies, and the teardown path for anything the session
// left blocked in the store.
type session struct {
	srv   *Server
	conn  net.Conn
	dec   *resp.Decoder
	enc   resp.Encoder
	store *store.Store
	log   *logrus.Entry
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		srv:   srv,
		conn:  conn,
		dec:   resp.NewDecoder(conn, srv.MaxFrameBytes),
		store: srv.store,
		log:   srv.log.WithField("remote", conn.RemoteAddr().String()),
	}
}

// handle runs the request/reply loop until EOF, a protocol error, or a
// blocking wait canceled by a hang-up or server shutdown. Shutdown does
// not end a session that is waiting for its next request.
func (s *session) handle() {
	defer s.conn.Close()

	for {
		req, err := s.dec.ReadValue()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if resp.IsProtocolError(err) {
				s.log.WithError(err).Warn("malformed frame, closing connection")
				s.write(resp.Err("ERR Protocol error")) // best effort
				return
			}
			s.log.WithError(err).Debug("connection read failed")
			return
		}

		reply, err := s.dispatch(req)
		if err != nil {
			// Only the shutdown/cancellation path lands here; the client
			// gets no reply for an aborted blocking wait.
			return
		}
		if reply.Kind == resp.KindError {
			commandErrorsTotal.Inc()
		}
		if !s.write(reply) {
			return
		}
	}
}

// watchPeer guards one blocking wait: the returned channel closes if the
// client disconnects or the server shuts down while this session is
// parked in the store, so the store can deregister the waiter right away
// instead of leaking it. While the session is blocked its goroutine is
// not reading the socket, so the watcher peeks the decoder in its place:
// the peek returns buffered data if the client pipelines its next
// request, and an error the moment the peer hangs up.
//
// disarm must be called before the session touches the decoder again. It
// interrupts a still pending peek with a read deadline and waits for the
// watcher to get off the connection.
func (s *session) watchPeer() (cancel <-chan struct{}, disarm func()) {
	ch := make(chan struct{})
	var once sync.Once
	fire := func() { once.Do(func() { close(ch) }) }

	peeked := make(chan struct{})
	go func() {
		defer close(peeked)
		if _, err := s.dec.Peek(1); err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			fire()
		}
	}()

	stop := make(chan struct{})
	go func() {
		select {
		case <-s.srv.done:
			fire()
		case <-stop:
		}
	}()

	disarm = func() {
		close(stop)
		s.conn.SetReadDeadline(time.Now()) // unblocks the peek
		<-peeked
		s.conn.SetReadDeadline(time.Time{})
	}
	return ch, disarm
}

// write serializes one reply as a single conn.Write.
func (s *session) write(v resp.Value) bool {
	s.enc.Reset()
	s.enc.WriteValue(v)
	if _, err := s.conn.Write(s.enc.Buf); err != nil {
		s.log.WithError(err).Debug("connection write failed")
		return false
	}
	return true
}
