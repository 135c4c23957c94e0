package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nevermined-io/weather-mcp-demo/gateway/sessionstore"
	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
)

// Session is the stateful binding between one client and a server surface,
// identified by an opaque id. It also carries the server-to-client
// notification stream consumed by the transport's GET handler.
type Session struct {
	id        string
	createdAt time.Time
	server    *Server

	mu              sync.Mutex
	protocolVersion string
	closed          bool
	done            chan struct{}
	notifyCh        chan jsonrpc.Message
}

func newSession(id string, srv *Server) *Session {
	return &Session{
		id:        id,
		createdAt: time.Now().UTC(),
		server:    srv,
		done:      make(chan struct{}),
		notifyCh:  make(chan jsonrpc.Message, 16),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Server returns the capability surface bound to this session.
func (s *Session) Server() *Server { return s.server }

// ProtocolVersion returns the negotiated protocol version, if any.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

func (s *Session) setProtocolVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolVersion = v
}

// Notify queues a server-to-client message on the notification stream.
// Delivery is best-effort: if the session is closed or the stream is
// saturated the message is dropped.
func (s *Session) Notify(msg jsonrpc.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.notifyCh <- msg:
		return true
	default:
		return false
	}
}

// Messages exposes the notification stream.
func (s *Session) Messages() <-chan jsonrpc.Message { return s.notifyCh }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionLogger sets the manager's logger.
func WithSessionLogger(log *slog.Logger) SessionManagerOption {
	return func(m *SessionManager) { m.log = log }
}

// SessionManager owns the set of live sessions. The injected store is the
// single source of truth for liveness; the in-process map only holds the
// transport handles bound on this replica.
type SessionManager struct {
	store     sessionstore.Store
	newServer func() *Server
	log       *slog.Logger

	mu   sync.RWMutex
	live map[string]*Session
}

// NewSessionManager builds a manager that binds a freshly constructed
// server surface (via newServer) to every session it creates or adopts.
func NewSessionManager(store sessionstore.Store, newServer func() *Server, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		store:     store,
		newServer: newServer,
		log:       slog.Default(),
		live:      make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession allocates a fresh unique identifier, binds a new server
// surface to it, and records the session. Identifier generation is
// collision-free within the process lifetime.
func (m *SessionManager) CreateSession(ctx context.Context) (*Session, error) {
	sess := newSession(uuid.NewString(), m.newServer())

	if err := m.store.Put(ctx, sessionstore.Record{
		ID:        sess.id,
		CreatedAt: sess.createdAt,
	}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.live[sess.id] = sess
	m.mu.Unlock()

	m.log.InfoContext(ctx, "session.create.ok", slog.String("session_id", sess.id))
	return sess, nil
}

// LookupSession resolves a session id to its live handle. A session known
// to the store but not yet bound on this replica is adopted with a fresh
// server surface.
func (m *SessionManager) LookupSession(ctx context.Context, id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.live[id]
	m.mu.RUnlock()
	if ok {
		return sess, true
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, sessionstore.ErrNotFound) {
			m.log.ErrorContext(ctx, "session.lookup.fail", slog.String("session_id", id), slog.String("err", err.Error()))
		}
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.live[id]; ok {
		return existing, true
	}
	adopted := newSession(rec.ID, m.newServer())
	adopted.createdAt = rec.CreatedAt
	adopted.protocolVersion = rec.ProtocolVersion
	m.live[id] = adopted
	return adopted, true
}

// HasSession reports whether a session with the given id is alive.
func (m *SessionManager) HasSession(ctx context.Context, id string) bool {
	if _, err := m.store.Get(ctx, id); err == nil {
		return true
	}
	return false
}

// RemoveSession tears down a session and reports whether it existed. It is
// idempotent: a second call for the same id returns false.
func (m *SessionManager) RemoveSession(ctx context.Context, id string) bool {
	existed, err := m.store.Delete(ctx, id)
	if err != nil {
		m.log.ErrorContext(ctx, "session.remove.fail", slog.String("session_id", id), slog.String("err", err.Error()))
		existed = false
	}

	m.mu.Lock()
	sess, ok := m.live[id]
	if ok {
		delete(m.live, id)
	}
	m.mu.Unlock()
	if ok {
		sess.close()
		existed = true
	}

	if existed {
		m.log.InfoContext(ctx, "session.remove.ok", slog.String("session_id", id))
	}
	return existed
}

// negotiateProtocolVersion persists the version agreed during initialize.
func (m *SessionManager) negotiateProtocolVersion(ctx context.Context, sess *Session, version string) {
	sess.setProtocolVersion(version)
	if err := m.store.Put(ctx, sessionstore.Record{
		ID:              sess.id,
		ProtocolVersion: version,
		CreatedAt:       sess.createdAt,
	}); err != nil {
		m.log.ErrorContext(ctx, "session.update.fail", slog.String("session_id", sess.id), slog.String("err", err.Error()))
	}
}
