package setup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/services/session"
)

const component = "setup"

// State is a setup machine state.
type State int

const (
	Initial State = iota
	RegisterDM
	RegisterGroup
	QuerySubscriptions
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case RegisterDM:
		return "register-dm"
	case RegisterGroup:
		return "register-group"
	case QuerySubscriptions:
		return "query-subscriptions"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrMustRestart is returned by every call on a machine in Error until
	// Reset is called.
	ErrMustRestart = errors.New("setup: failed, restart from initial")

	// ErrNotStarted is returned by Step before Start.
	ErrNotStarted = errors.New("setup: not started")

	// ErrBusy is returned by Start while another address is in progress.
	ErrBusy = errors.New("setup: another setup is in progress")
)

// Inbox creates the DM inbox of an address.
type Inbox interface {
	Ensure(ctx context.Context, addr domain.Address, signer domain.Signer) (*session.Session, error)
}

// Group registers an address with the group protocol.
type Group interface {
	Register(ctx context.Context, signer domain.Signer) (domain.GroupUser, error)
	Subscriptions(ctx context.Context, addr domain.Address) ([]domain.Subscription, error)
}

// Machine is the onboarding state machine. It is safe for concurrent use;
// steps are serialized.
type Machine struct {
	log      *logging.Logger
	reporter *observe.Reporter
	keys     domain.KeyStore
	inbox    Inbox
	group    Group

	mu         sync.Mutex
	state      State
	addr       domain.Address
	signer     domain.Signer
	needsGroup bool
	subs       []domain.Subscription
	err        error
}

// New returns a Machine in Initial.
func New(keys domain.KeyStore, inbox Inbox, group Group, backend *log.Backend, reporter *observe.Reporter) *Machine {
	return &Machine{
		log:      backend.GetLogger(component),
		reporter: reporter,
		keys:     keys,
		inbox:    inbox,
		group:    group,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the failure that moved the machine to Error.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Subscriptions returns the channels found by QuerySubscriptions.
func (m *Machine) Subscriptions() []domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Subscription(nil), m.subs...)
}

// Reset returns the machine to Initial and forgets all progress.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Initial
	m.addr = ""
	m.signer = nil
	m.needsGroup = false
	m.subs = nil
	m.err = nil
}

// Start begins setup of addr. An address that already holds both keys
// completes immediately and signer is not used. Starting a completed
// machine again re-evaluates the new address.
func (m *Machine) Start(addr domain.Address, signer domain.Signer) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Error:
		return m.state, ErrMustRestart
	case Initial, Complete:
	default:
		if !m.addr.Equal(addr) {
			return m.state, ErrBusy
		}
		return m.state, nil
	}

	addr, err := domain.ParseAddress(addr.String())
	if err != nil {
		return m.state, err
	}
	needsDM, err := m.missing(domain.KeyDM, addr)
	if err != nil {
		return m.state, err
	}
	needsGroup, err := m.missing(domain.KeyGroup, addr)
	if err != nil {
		return m.state, err
	}

	m.addr = addr
	m.subs = nil
	m.needsGroup = needsGroup
	switch {
	case !needsDM && !needsGroup:
		m.state = Complete
		m.log.Debugf("%s already set up", addr)
		return m.state, nil
	case signer == nil || !signer.Address().Equal(addr):
		return m.fail(session.ErrSignerRequired)
	case needsDM:
		m.state = RegisterDM
	default:
		m.state = RegisterGroup
	}
	m.signer = signer
	return m.state, nil
}

func (m *Machine) missing(kind domain.KeyKind, addr domain.Address) (bool, error) {
	_, ok, err := m.keys.LoadKey(kind, addr)
	if err != nil {
		return false, fmt.Errorf("setup: load %s key: %w", kind, err)
	}
	return !ok, nil
}

// Step performs the work of the current state and advances.
func (m *Machine) Step(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Initial:
		return m.state, ErrNotStarted
	case Error:
		return m.state, ErrMustRestart
	case Complete:
		return m.state, nil

	case RegisterDM:
		if _, err := m.inbox.Ensure(ctx, m.addr, m.signer); err != nil {
			return m.fail(fmt.Errorf("setup: dm inbox: %w", err))
		}
		m.log.Infof("Registered DM inbox for %s", m.addr)
		if m.needsGroup {
			m.state = RegisterGroup
		} else {
			m.state = QuerySubscriptions
		}

	case RegisterGroup:
		if _, err := m.group.Register(ctx, m.signer); err != nil {
			return m.fail(fmt.Errorf("setup: group user: %w", err))
		}
		m.log.Infof("Registered group user for %s", m.addr)
		m.state = QuerySubscriptions

	case QuerySubscriptions:
		subs, err := m.group.Subscriptions(ctx, m.addr)
		if err != nil {
			m.reporter.Report(component, err)
		}
		m.subs = subs
		m.signer = nil
		m.state = Complete
	}
	return m.state, nil
}

func (m *Machine) fail(err error) (State, error) {
	m.state = Error
	m.signer = nil
	m.err = err
	m.log.Errorf("Setup of %s failed: %v", m.addr, err)
	return m.state, err
}

// Run starts setup of addr and steps until Complete or Error.
func (m *Machine) Run(ctx context.Context, addr domain.Address, signer domain.Signer) (State, error) {
	state, err := m.Start(addr, signer)
	for err == nil && state != Complete {
		state, err = m.Step(ctx)
	}
	return state, err
}
