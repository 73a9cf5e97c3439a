package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/keldcache/keld/command"
	"github.com/keldcache/keld/internal/kcontext"
	"github.com/keldcache/keld/resp"
	"github.com/keldcache/keld/storage"
)

// session services one client connection: it decodes a frame, maps it to a
// command, applies it against shared storage and writes the reply, one
// command at a time. A slow client only ever stalls itself.
type session struct {
	conn    net.Conn
	dec     *resp.Decoder
	enc     *resp.Encoder
	storage *storage.Storage
}

func newSession(conn net.Conn, store *storage.Storage, bufferSize int) *session {
	return &session{
		conn:    conn,
		dec:     resp.NewDecoder(bufio.NewReaderSize(conn, bufferSize)),
		enc:     resp.NewEncoder(bufio.NewWriterSize(conn, bufferSize)),
		storage: store,
	}
}

// serve runs the session until the peer closes cleanly or the connection
// can no longer carry traffic. Non-fatal protocol errors are answered with
// an error reply and the loop continues.
func (s *session) serve(ctx context.Context) {
	ctx = kcontext.WithValue(ctx, "session.id", uuid.NewString())
	ctx = kcontext.WithValue(ctx, "peer.addr", s.conn.RemoteAddr().String())
	log := kcontext.GetLogger(ctx, "session.id", "peer.addr")

	log.Debug("session opened")
	defer log.Debug("session closed")

	sessionsGauge.Inc(1)
	defer sessionsGauge.Dec(1)

	for {
		frame, err := s.dec.Decode()
		if err != nil {
			if !s.recover(log, err) {
				return
			}
			continue
		}

		cmd, err := command.FromFrame(frame)
		if err != nil {
			if !s.recover(log, err) {
				return
			}
			continue
		}

		commandsCounter.WithValues(commandLabel(cmd)).Inc(1)
		reply := s.apply(cmd)
		if err := s.enc.Encode(reply); err != nil {
			// the session exits on the next failed read
			log.WithError(err).Warn("failed to write reply")
		}
	}
}

// recover handles a decode or parse failure. It reports whether the
// session can continue: fatal network errors and clean closes end it,
// anything else is reported to the client as a simple error.
func (s *session) recover(log kcontext.Logger, err error) bool {
	if resp.IsFatal(err) {
		if errors.Is(err, resp.ErrEOF) {
			log.Debug("client closed connection")
		} else {
			log.WithError(err).Error("fatal network error")
		}
		return false
	}

	decodeErrorsCounter.Inc(1)
	reply, ferr := resp.SimpleError(sanitizeErrorLine(err.Error()))
	if ferr != nil {
		reply, _ = resp.SimpleError("invalid frame")
	}
	if werr := s.enc.Encode(reply); werr != nil {
		log.WithError(werr).Warn("failed to write error reply")
	}
	return true
}

// apply executes a command against storage and builds the reply frame.
func (s *session) apply(cmd command.Command) resp.Frame {
	switch c := cmd.(type) {
	case command.Ping:
		if !c.HasMessage {
			pong, _ := resp.SimpleString("PONG")
			return pong
		}
		return resp.BulkString(c.Message)

	case command.Get:
		value, ok := s.storage.Get(c.Key)
		if !ok {
			return resp.Null()
		}
		if reply, err := resp.SimpleString(value); err == nil {
			return reply
		}
		// values are binary safe but simple strings are not
		return resp.BulkString(value)

	case command.Set:
		s.storage.Set(c.Key, c.Value, c.TTL)
		entriesGauge.Set(float64(s.storage.Len()))
		ok, _ := resp.SimpleString("OK")
		return ok

	case command.Del:
		n := s.storage.Del(c.Keys...)
		entriesGauge.Set(float64(s.storage.Len()))
		return resp.Integer(n)

	case command.Unknown:
		reply, err := resp.SimpleError("unknown command: " + sanitizeErrorLine(c.Cmd))
		if err != nil {
			reply, _ = resp.SimpleError("unknown command")
		}
		return reply

	case command.Malformed:
		reply, _ := resp.SimpleError(c.Message)
		return reply
	}

	// all command types are handled above
	reply, _ := resp.SimpleError("unhandled command")
	return reply
}

// commandLabel keeps the metric label space bounded regardless of what
// clients send.
func commandLabel(cmd command.Command) string {
	switch cmd.(type) {
	case command.Ping, command.Get, command.Set, command.Del:
		return cmd.Name()
	case command.Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// sanitizeErrorLine makes an arbitrary message safe to carry in a simple
// error frame.
func sanitizeErrorLine(msg string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, msg)
}
