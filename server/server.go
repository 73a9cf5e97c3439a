package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/sync/semaphore"

	"github.com/keldcache/keld/configuration"
	"github.com/keldcache/keld/internal/kcontext"
	"github.com/keldcache/keld/storage"
)

// shardedParameters are the tuning knobs of the sharded storage engine,
// decoded from the configuration's engine parameter map.
type shardedParameters struct {
	// Capacity is an initial allocation hint for the whole store, not a
	// hard cap.
	Capacity int `mapstructure:"capacity"`

	// Shards is the fixed shard fan-out. It must be a power of two.
	Shards int `mapstructure:"shards"`
}

const (
	defaultCapacity = 1_000_000
	defaultShards   = 8
)

// Server owns the listening socket and admission control. Each accepted
// connection is handed to a session goroutine holding one admission permit
// for its whole lifetime, which caps concurrent sessions at MaxConn.
type Server struct {
	config   *configuration.Configuration
	storage  *storage.Storage
	listener net.Listener
	permits  *semaphore.Weighted
}

// NewServer builds the storage engine from the configuration and binds the
// listening socket. It fails fast on invalid engine parameters or an
// unbindable address.
func NewServer(ctx context.Context, config *configuration.Configuration) (*Server, error) {
	store, err := newStorage(config.Storage)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Addr, config.Server.Port)
	ln, err := newListener(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	kcontext.GetLogger(ctx).Infof("listening on %v", ln.Addr())
	return &Server{
		config:   config,
		storage:  store,
		listener: ln,
		permits:  semaphore.NewWeighted(int64(config.Server.MaxConn)),
	}, nil
}

func newStorage(config configuration.Storage) (*storage.Storage, error) {
	engine := config.Type()
	if engine != "sharded" {
		return nil, fmt.Errorf("unsupported storage engine: %q", engine)
	}

	params := shardedParameters{
		Capacity: defaultCapacity,
		Shards:   defaultShards,
	}
	if err := mapstructure.Decode(map[string]interface{}(config.Parameters()), &params); err != nil {
		return nil, fmt.Errorf("invalid storage parameters: %w", err)
	}
	if params.Shards <= 0 || params.Shards&(params.Shards-1) != 0 {
		return nil, fmt.Errorf("storage shards must be a power of two, got %d", params.Shards)
	}
	return storage.New(params.Capacity, params.Shards), nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Storage exposes the underlying store.
func (s *Server) Storage() *storage.Storage {
	return s.storage
}

// ListenAndServe accepts connections until the listener is closed or ctx
// is cancelled. A permit is acquired before each accept and travels with
// the spawned session; it is released when the session ends on any path,
// so at most MaxConn sessions run at once.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := kcontext.GetLogger(ctx)
	log.Debug("server started listening for new connections")

	for {
		if err := s.permits.Acquire(ctx, 1); err != nil {
			// ctx cancelled: we are shutting down
			return nil
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.permits.Release(1)
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			acceptErrorsCounter.Inc(1)
			log.WithError(err).Debug("error accepting client connection")
			continue
		}

		log.Debugf("new connection established: %v", conn.RemoteAddr())
		sess := newSession(conn, s.storage, s.config.Server.BufferSize)
		go func() {
			defer s.permits.Release(1)
			defer conn.Close()
			sess.serve(ctx)
		}()
	}
}

// Close stops the listener, unblocking ListenAndServe. In-flight sessions
// keep running until their connections close.
func (s *Server) Close() error {
	return s.listener.Close()
}
