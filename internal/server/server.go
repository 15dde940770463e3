package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"minikv/internal/protocol"
	"minikv/internal/replication"
	"minikv/internal/scripting"
	"minikv/internal/storage"
)

// Server owns the shared store, the fixed role, and the listening socket.
// Each accepted connection runs in its own goroutine against this state.
type Server struct {
	config        *Config
	listener      net.Listener
	store         *storage.Store
	role          replication.Role
	scripts       *scripting.Engine
	connections   sync.Map
	connIDCounter atomic.Int64
	wg            sync.WaitGroup
	mu            sync.RWMutex
	isShutdown    bool
}

// New constructs the server state. A replica dials its primary and completes
// the handshake here, before any client connection is accepted; a handshake
// failure aborts startup.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var role replication.Role
	if cfg.IsReplica() {
		replica, err := replication.NewReplica(cfg.PrimaryHost, cfg.PrimaryPort)
		if err != nil {
			return nil, err
		}
		if err := replica.Handshake(cfg.Port); err != nil {
			replica.Close()
			return nil, err
		}
		role = replica
		log.Printf("Replication mode: replica of %s:%d", cfg.PrimaryHost, cfg.PrimaryPort)
	} else {
		role = replication.NewPrimary()
		log.Printf("Replication mode: primary")
	}

	store := storage.NewStore()

	return &Server{
		config:  cfg,
		store:   store,
		role:    role,
		scripts: scripting.NewEngine(store),
	}, nil
}

// Listen binds the listening socket without starting the accept loop.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	s.listener = listener
	log.Printf("Listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound listener address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start binds the listener if needed, serves until ctx is cancelled, then
// returns.
func (s *Server) Start(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go s.acceptConnections(ctx)

	<-ctx.Done()
	return nil
}

func (s *Server) acceptConnections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				s.mu.RLock()
				shutdown := s.isShutdown
				s.mu.RUnlock()
				if shutdown {
					return
				}
				log.Printf("Error accepting connection: %v", err)
				continue
			}

			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}
}

// handleConnection runs the per-connection loop: read a chunk, parse as many
// complete frames as the carry buffer holds, execute each, write the full
// response. Parse and dispatch errors drop the connection without a reply.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := s.connIDCounter.Add(1)
	s.connections.Store(connID, conn)
	defer s.connections.Delete(connID)
	defer conn.Close()

	var pending []byte
	chunk := make([]byte, s.config.ReadBufferSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("Connection [%d] read error: %v", connID, err)
			}
			return
		}

		for len(pending) > 0 {
			el, rest, err := protocol.ParseElement(pending)
			if errors.Is(err, protocol.ErrShortRead) {
				// Frame split across reads; wait for more bytes.
				break
			}
			if err != nil {
				log.Printf("Connection [%d] dropped: %v", connID, err)
				return
			}
			pending = rest

			cmd, err := protocol.ToCommand(el)
			if err != nil {
				log.Printf("Connection [%d] dropped: %v", connID, err)
				return
			}

			response, err := s.execute(cmd)
			if err != nil {
				log.Printf("Connection [%d] dropped: %v", connID, err)
				return
			}

			if _, err := conn.Write(protocol.EncodeElement(response)); err != nil {
				log.Printf("Connection [%d] write error: %v", connID, err)
				return
			}
		}
	}
}

func (s *Server) execute(cmd protocol.Command) (protocol.Element, error) {
	switch c := cmd.(type) {
	case protocol.Ping:
		if c.Message != nil {
			return protocol.SimpleString(*c.Message), nil
		}
		return protocol.SimpleString("PONG"), nil

	case protocol.Echo:
		return protocol.SimpleString(c.Message), nil

	case protocol.Set:
		s.store.Set(c.Key, c.Value, c.TTL)
		return protocol.SimpleString("OK"), nil

	case protocol.Get:
		val, ok := s.store.Get(c.Key)
		if !ok {
			return protocol.NullBulkString{}, nil
		}
		return protocol.BulkString(val), nil

	case protocol.Del:
		count := 0
		for _, key := range c.Keys {
			if s.store.Delete(key) {
				count++
			}
		}
		return protocol.Integer(count), nil

	case protocol.Exists:
		count := 0
		for _, key := range c.Keys {
			if s.store.Exists(key) {
				count++
			}
		}
		return protocol.Integer(count), nil

	case protocol.Info:
		return protocol.BulkString(s.role.InfoSection()), nil

	case protocol.ReplConf:
		return protocol.SimpleString("OK"), nil

	case protocol.Psync:
		return replication.HandlePsync(s.role, c)

	case protocol.Eval:
		return scriptResult(s.scripts.Eval(c.Script, c.Keys, c.Args))

	case protocol.EvalSHA:
		el, err := s.scripts.EvalSHA(c.SHA, c.Keys, c.Args)
		if errors.Is(err, scripting.ErrNoScript) {
			return protocol.Error("NOSCRIPT No matching script. Please use EVAL."), nil
		}
		return scriptResult(el, err)

	case protocol.ScriptLoad:
		return protocol.BulkString(s.scripts.Load(c.Script)), nil

	case protocol.ScriptExists:
		results := s.scripts.Exists(c.SHAs)
		elements := make(protocol.Array, len(results))
		for i, ok := range results {
			if ok {
				elements[i] = protocol.Integer(1)
			} else {
				elements[i] = protocol.Integer(0)
			}
		}
		return elements, nil

	default:
		return nil, fmt.Errorf("unhandled command %T", cmd)
	}
}

// scriptResult maps a script failure onto an error reply. A failing script
// is a successfully dispatched command; the connection stays open.
func scriptResult(el protocol.Element, err error) (protocol.Element, error) {
	if err != nil {
		return protocol.Error(fmt.Sprintf("ERR %v", err)), nil
	}
	return el, nil
}

// Shutdown closes the listener and all live connections, then waits briefly
// for handlers to drain.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		return
	}
	s.isShutdown = true
	s.mu.Unlock()

	log.Println("Initiating graceful shutdown...")

	if s.listener != nil {
		s.listener.Close()
	}

	s.connections.Range(func(key, value interface{}) bool {
		if conn, ok := value.(net.Conn); ok {
			conn.Close()
		}
		return true
	})

	if replica, ok := s.role.(*replication.Replica); ok {
		replica.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All connections closed gracefully")
	case <-time.After(5 * time.Second):
		log.Println("Shutdown timeout reached, forcing exit")
	}
}
