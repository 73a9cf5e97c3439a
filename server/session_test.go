package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keldcache/keld/storage"
)

// pipeSession runs a session over an in-process pipe and returns the
// client side of it.
func pipeSession(t *testing.T, store *storage.Storage) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	sess := newSession(server, store, 8192)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer server.Close()
		sess.serve(context.Background())
	}()
	t.Cleanup(func() {
		client.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("session did not terminate")
		}
	})
	return client
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, req, want string) {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	buf := make([]byte, len(want))
	_, err = readFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, want, string(buf))
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSessionPingPong(t *testing.T) {
	conn := pipeSession(t, storage.New(64, 8))
	r := bufio.NewReader(conn)

	roundTrip(t, conn, r, "*1\r\n$4\r\nPING\r\n", "+PONG\r\n")
	roundTrip(t, conn, r, "*2\r\n$4\r\nPING\r\n$5\r\nhello\r\n", "$5\r\nhello\r\n")
}

func TestSessionSetGetDel(t *testing.T) {
	conn := pipeSession(t, storage.New(64, 8))
	r := bufio.NewReader(conn)

	roundTrip(t, conn, r, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", "+OK\r\n")
	roundTrip(t, conn, r, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n", "+v\r\n")
	roundTrip(t, conn, r, "*2\r\n$3\r\nGET\r\n$7\r\nmissing\r\n", "_\r\n")

	roundTrip(t, conn, r, "*3\r\n$3\r\nSET\r\n$2\r\nk2\r\n$1\r\nv\r\n", "+OK\r\n")
	roundTrip(t, conn, r, "*3\r\n$3\r\nDEL\r\n$1\r\nk\r\n$2\r\nk2\r\n", ":2\r\n")
	roundTrip(t, conn, r, "*3\r\n$3\r\nDEL\r\n$1\r\nk\r\n$2\r\nk2\r\n", ":0\r\n")
}

func TestSessionUnknownCommand(t *testing.T) {
	conn := pipeSession(t, storage.New(64, 8))
	r := bufio.NewReader(conn)

	roundTrip(t, conn, r, "*1\r\n$3\r\nFOO\r\n", "-unknown command: FOO\r\n")
	// the session is still usable afterwards
	roundTrip(t, conn, r, "*1\r\n$4\r\nPING\r\n", "+PONG\r\n")
}

func TestSessionRecoversFromProtocolErrors(t *testing.T) {
	conn := pipeSession(t, storage.New(64, 8))
	r := bufio.NewReader(conn)

	// every byte of an unknown marker line is answered with its own error
	// reply; drain them all before the next command
	const garbage = "?oops\r\n"
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte(garbage))
	require.NoError(t, err)
	for i := 0; i < len(garbage); i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(line, "-"), "want error reply, got %q", line)
	}

	// the session is still usable afterwards
	roundTrip(t, conn, r, "*1\r\n$4\r\nPING\r\n", "+PONG\r\n")
}

func TestSessionMalformedCommandArity(t *testing.T) {
	conn := pipeSession(t, storage.New(64, 8))
	r := bufio.NewReader(conn)

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte("*2\r\n$3\r\nSET\r\n$1\r\nk\r\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "-SET command takes 2 or 4 arguments\r\n", line)

	roundTrip(t, conn, r, "*1\r\n$4\r\nPING\r\n", "+PONG\r\n")
}

func TestSessionEndsOnClientClose(t *testing.T) {
	client, server := net.Pipe()
	sess := newSession(server, storage.New(64, 8), 8192)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.serve(context.Background())
	}()

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not end on client close")
	}
}
