package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/worker"
)

const component = "session"

var (
	// ErrNoSession is returned by Require when no session is live for the
	// address.
	ErrNoSession = errors.New("session: no session for address")

	// ErrSignerRequired is returned when an address has no local key and
	// no wallet signer was supplied to create one.
	ErrSignerRequired = errors.New("session: wallet signer required to create inbox")

	// ErrNoopSigner is returned if a restored client asks to sign.
	ErrNoopSigner = errors.New("session: restored session cannot sign")
)

// noopSigner stands in for the wallet when restoring from a stored key.
type noopSigner struct{ addr domain.Address }

func (n noopSigner) Address() domain.Address { return n.addr }

func (n noopSigner) SignMessage(context.Context, []byte) ([]byte, error) {
	return nil, ErrNoopSigner
}

// Manager is the session arena.
type Manager struct {
	worker.Worker

	log      *logging.Logger
	reporter *observe.Reporter
	factory  domain.DMClientFactory
	keys     domain.KeyStore

	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]chan struct{}
}

// New returns an empty Manager.
func New(
	factory domain.DMClientFactory,
	keys domain.KeyStore,
	backend *log.Backend,
	reporter *observe.Reporter,
) *Manager {
	return &Manager{
		log:      backend.GetLogger(component),
		reporter: reporter,
		factory:  factory,
		keys:     keys,
		sessions: make(map[string]*Session),
		locks:    make(map[string]chan struct{}),
	}
}

// lockFor returns the creation lock of addr, creating it on demand. The
// lock is a one-slot channel so waiters can give up when ctx is done.
func (m *Manager) lockFor(addr domain.Address) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[addr.Key()]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[addr.Key()] = l
	}
	return l
}

// Ensure returns the live session for addr, creating or restoring it.
//
// Steps, all under the per-address creation lock:
//  1. Load the DM database key from the key store.
//  2. No key: signer is required. Generate a fresh key, construct the
//     client with the signer, persist the key and the active-address
//     marker, cache the session and start a background sync.
//  3. Key present and session cached: start a background sync and return
//     the cached session.
//  4. Key present, nothing cached: rebuild the client from the key with a
//     signer that refuses to sign, cache it and start a background sync.
//
// On any failure nothing is cached.
func (m *Manager) Ensure(ctx context.Context, addr domain.Address, signer domain.Signer) (*Session, error) {
	addr, err := domain.ParseAddress(addr.String())
	if err != nil {
		return nil, err
	}

	lock := m.lockFor(addr)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-lock }()

	key, ok, err := m.keys.LoadKey(domain.KeyDM, addr)
	if err != nil {
		return nil, fmt.Errorf("session: load key: %w", err)
	}
	if !ok {
		return m.create(ctx, addr, signer)
	}
	defer crypto.Wipe(key)

	if s := m.Lookup(addr); s != nil {
		m.syncInBackground(s)
		return s, nil
	}
	client, err := m.factory.NewClient(ctx, noopSigner{addr: addr}, key)
	if err != nil {
		return nil, fmt.Errorf("session: restore %s: %w", addr, err)
	}
	m.log.Debugf("Restored session for %s", addr)
	return m.install(addr, client), nil
}

func (m *Manager) create(ctx context.Context, addr domain.Address, signer domain.Signer) (*Session, error) {
	if signer == nil {
		return nil, ErrSignerRequired
	}
	if !signer.Address().Equal(addr) {
		return nil, fmt.Errorf("%w: signer is for %s", ErrSignerRequired, signer.Address())
	}
	key, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	client, err := m.factory.NewClient(ctx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("session: create %s: %w", addr, err)
	}
	if err := m.keys.SaveKey(domain.KeyDM, addr, key); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: save key: %w", err)
	}
	if err := m.keys.MarkActive(addr); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: mark active: %w", err)
	}
	m.log.Infof("Created session for %s", addr)
	return m.install(addr, client), nil
}

func (m *Manager) install(addr domain.Address, client domain.DMClient) *Session {
	s := newSession(addr, client)
	m.mu.Lock()
	m.sessions[addr.Key()] = s
	m.mu.Unlock()
	m.syncInBackground(s)
	return s
}

func (m *Manager) syncInBackground(s *Session) {
	m.Go(func() {
		if err := s.Sync(m.Context()); err != nil {
			m.reporter.Report(component, fmt.Errorf("background sync %s: %w", s.Address(), err))
			return
		}
		m.log.Debugf("Synced conversations for %s", s.Address())
	})
}

// Lookup returns the cached session for addr, or nil.
func (m *Manager) Lookup(addr domain.Address) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[addr.Key()]
}

// Require returns the cached session for addr or ErrNoSession.
func (m *Manager) Require(addr domain.Address) (*Session, error) {
	if s := m.Lookup(addr); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSession, addr)
}

// Logout closes the session of addr and purges its local keys.
func (m *Manager) Logout(ctx context.Context, addr domain.Address) error {
	lock := m.lockFor(addr)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	m.mu.Lock()
	s := m.sessions[addr.Key()]
	delete(m.sessions, addr.Key())
	m.mu.Unlock()

	if s != nil {
		if err := s.client.Close(); err != nil {
			m.reporter.Report(component, fmt.Errorf("close %s: %w", addr, err))
		}
	}
	if err := m.keys.Purge(addr); err != nil {
		return fmt.Errorf("session: purge %s: %w", addr, err)
	}
	m.log.Infof("Logged out %s", addr)
	return nil
}

// Close halts background syncs and closes every live session.
func (m *Manager) Close() {
	m.Halt()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.client.Close(); err != nil {
			m.reporter.Report(component, err)
		}
	}
}
