package driftdb

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flonle/driftdb/app/driftdb/resp"
	"github.com/flonle/driftdb/app/driftdb/store"
)

func startServer(t *testing.T) string {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := MakeServer(store.New(), logger)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go srv.Serve()
	t.Cleanup(srv.Close)
	return srv.Addr().String()
}

type client struct {
	conn net.Conn
	dec  *resp.Decoder
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, dec: resp.NewDecoder(conn, 0)}
}

func (c *client) send(t *testing.T, parts ...string) {
	t.Helper()
	var e resp.Encoder
	e.WriteArrHeader(len(parts))
	for _, part := range parts {
		e.WriteBulkStr(part)
	}
	_, err := c.conn.Write(e.Buf)
	require.NoError(t, err)
}

func (c *client) roundTrip(t *testing.T, parts ...string) resp.Value {
	t.Helper()
	c.send(t, parts...)
	v, err := c.dec.ReadValue()
	require.NoError(t, err)
	return v
}

// S1: the exact bytes of a PING exchange.
func TestWirePing(t *testing.T) {
	c := dial(t, startServer(t))

	_, err := c.conn.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)

	got := make([]byte, len("+PONG\r\n"))
	_, err = io.ReadFull(c.conn, got)
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", string(got))
}

// S2: SET then GET, exact bytes.
func TestWireSetGet(t *testing.T) {
	c := dial(t, startServer(t))

	_, err := c.conn.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	require.NoError(t, err)
	got := make([]byte, len("+OK\r\n"))
	_, err = io.ReadFull(c.conn, got)
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", string(got))

	_, err = c.conn.Write([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	got = make([]byte, len("$3\r\nbar\r\n"))
	_, err = io.ReadFull(c.conn, got)
	require.NoError(t, err)
	assert.Equal(t, "$3\r\nbar\r\n", string(got))
}

// S3: list push and range.
func TestListScenario(t *testing.T) {
	c := dial(t, startServer(t))

	assert.Equal(t, resp.Int(3), c.roundTrip(t, "RPUSH", "mylist", "a", "b", "c"))
	want := resp.Arr(resp.Bulk("a"), resp.Bulk("b"), resp.Bulk("c"))
	assert.Equal(t, want, c.roundTrip(t, "LRANGE", "mylist", "0", "-1"))
}

// S4: stream IDs over the wire.
func TestStreamScenario(t *testing.T) {
	c := dial(t, startServer(t))

	assert.Equal(t, resp.Bulk("1-1"), c.roundTrip(t, "XADD", "s", "1-1", "f", "v"))

	v := c.roundTrip(t, "XADD", "s", "1-1", "f2", "v2")
	require.Equal(t, resp.KindError, v.Kind)
	assert.Contains(t, v.Str, "equal or smaller")

	v = c.roundTrip(t, "XADD", "s", "*", "f3", "v3")
	require.Equal(t, resp.KindBulkString, v.Kind)
	ms := strings.SplitN(v.Str, "-", 2)[0]
	assert.Greater(t, len(ms), 3, "auto ID %q should carry a wall-clock ms", v.Str)
}

// S5: a blocked BLPOP completes when another connection pushes.
func TestBlockingPopAcrossConnections(t *testing.T) {
	addr := startServer(t)
	a := dial(t, addr)
	b := dial(t, addr)

	a.send(t, "BLPOP", "q", "0")
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, resp.Int(1), b.roundTrip(t, "RPUSH", "q", "hello"))

	v, err := a.dec.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, resp.Arr(resp.Bulk("q"), resp.Bulk("hello")), v)
}

// A client that drops its connection mid-BLPOP must not leave a stale
// waiter behind to swallow a later push.
func TestBLPopDisconnectFreesWaiter(t *testing.T) {
	addr := startServer(t)

	a := dial(t, addr)
	a.send(t, "BLPOP", "q", "0")
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, a.conn.Close())
	time.Sleep(100 * time.Millisecond)

	c := dial(t, addr)
	c.send(t, "BLPOP", "q", "0")
	time.Sleep(100 * time.Millisecond)

	b := dial(t, addr)
	assert.Equal(t, resp.Int(1), b.roundTrip(t, "RPUSH", "q", "hello"))

	v, err := c.dec.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, resp.Arr(resp.Bulk("q"), resp.Bulk("hello")), v)
}

// S6: TTL expiry observed over the wire.
func TestExpiryScenario(t *testing.T) {
	c := dial(t, startServer(t))

	require.Equal(t, resp.OK, c.roundTrip(t, "SET", "k", "v", "PX", "100"))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, resp.NullBulk, c.roundTrip(t, "GET", "k"))
	assert.Equal(t, resp.Simple("none"), c.roundTrip(t, "TYPE", "k"))
}

func TestRequestsAnsweredInOrder(t *testing.T) {
	c := dial(t, startServer(t))

	// pipeline a few commands in one write
	var e resp.Encoder
	for _, parts := range [][]string{
		{"SET", "n", "1"},
		{"GET", "n"},
		{"RPUSH", "l", "x"},
		{"LLEN", "l"},
	} {
		e.WriteArrHeader(len(parts))
		for _, part := range parts {
			e.WriteBulkStr(part)
		}
	}
	_, err := c.conn.Write(e.Buf)
	require.NoError(t, err)

	for _, want := range []resp.Value{resp.OK, resp.Bulk("1"), resp.Int(1), resp.Int(1)} {
		v, err := c.dec.ReadValue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestUnknownCommandOverWire(t *testing.T) {
	c := dial(t, startServer(t))
	v := c.roundTrip(t, "FROB", "x")
	assert.Equal(t, resp.Err("ERR unknown command 'FROB'"), v)

	// the connection survives an error reply
	assert.Equal(t, resp.Pong, c.roundTrip(t, "PING"))
}

func TestProtocolErrorClosesConnection(t *testing.T) {
	c := dial(t, startServer(t))

	_, err := c.conn.Write([]byte("!bogus\r\n"))
	require.NoError(t, err)

	v, err := c.dec.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, resp.Err("ERR Protocol error"), v)

	_, err = c.dec.ReadValue()
	assert.Error(t, err, "connection should be closed after a protocol error")
}

func TestConcurrentClientsSameKey(t *testing.T) {
	addr := startServer(t)

	const clients = 8
	const pushes = 25
	done := make(chan struct{}, clients)
	for i := range clients {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Errorf("client %d: dial: %v", id, err)
				return
			}
			defer conn.Close()
			dec := resp.NewDecoder(conn, 0)
			for range pushes {
				if _, err := conn.Write(resp.Encode(cmd("RPUSH", "shared", "x"))); err != nil {
					t.Errorf("client %d: write: %v", id, err)
					return
				}
				v, err := dec.ReadValue()
				if err != nil || v.Kind != resp.KindInteger {
					t.Errorf("client %d: unexpected reply %#v (%v)", id, v, err)
					return
				}
			}
		}(i)
	}
	for range clients {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("clients did not finish")
		}
	}

	c := dial(t, addr)
	assert.Equal(t, resp.Int(clients*pushes), c.roundTrip(t, "LLEN", "shared"))
}
