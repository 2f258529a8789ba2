// Package resolve caches name resolution results in the local store.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
)

const component = "resolve"

// ErrUnresolved is returned when a name has no address.
var ErrUnresolved = errors.New("resolve: name has no address")

// Cache resolves names through a NameResolver and remembers every answer.
// Entries are overwritten on refresh and never expire.
type Cache struct {
	log      *logging.Logger
	reporter *observe.Reporter
	resolver domain.NameResolver
	store    domain.ResolutionStore
	now      func() time.Time
}

// New returns a Cache over resolver and store.
func New(resolver domain.NameResolver, store domain.ResolutionStore, backend *log.Backend, reporter *observe.Reporter) *Cache {
	return &Cache{
		log:      backend.GetLogger(component),
		reporter: reporter,
		resolver: resolver,
		store:    store,
		now:      time.Now,
	}
}

// ReverseResolve returns the display name of addr, or "" when it has none
// or the lookup failed. Failures are reported, not returned.
func (c *Cache) ReverseResolve(ctx context.Context, addr domain.Address) string {
	subject := addr.Key()
	if r, ok, err := c.store.LoadResolution(subject); err != nil {
		c.reporter.Report(component, err)
	} else if ok {
		return r.Name
	}

	name, err := c.resolver.ReverseResolve(ctx, addr)
	if err != nil {
		c.reporter.Report(component, fmt.Errorf("reverse resolve %s: %w", addr, err))
		return ""
	}
	c.save(domain.Resolution{Subject: subject, Address: addr.Checksum(), Name: name, Resolved: c.now()})
	return name
}

// ForwardResolve returns the address name points at.
func (c *Cache) ForwardResolve(ctx context.Context, name string) (domain.Address, error) {
	subject := strings.ToLower(strings.TrimSpace(name))
	if r, ok, err := c.store.LoadResolution(subject); err != nil {
		c.reporter.Report(component, err)
	} else if ok && !r.Address.IsZero() {
		return r.Address, nil
	}

	addr, err := c.resolver.Resolve(ctx, subject)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	if addr.IsZero() {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, name)
	}
	c.save(domain.Resolution{Subject: subject, Address: addr.Checksum(), Name: subject, Resolved: c.now()})
	return addr.Checksum(), nil
}

func (c *Cache) save(r domain.Resolution) {
	if err := c.store.SaveResolution(r); err != nil {
		c.reporter.Report(component, err)
		return
	}
	c.log.Debugf("Cached resolution %s -> %s", r.Subject, r.Address)
}

// Static is a fixed, in-memory NameResolver.
type Static struct {
	mu     sync.RWMutex
	byName map[string]domain.Address
}

// NewStatic returns an empty Static resolver.
func NewStatic() *Static {
	return &Static{byName: make(map[string]domain.Address)}
}

// Set binds name to addr.
func (s *Static) Set(name string, addr domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[strings.ToLower(name)] = addr.Checksum()
}

// Resolve implements domain.NameResolver.
func (s *Static) Resolve(_ context.Context, name string) (domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, name)
	}
	return addr, nil
}

// ReverseResolve implements domain.NameResolver.
func (s *Static) ReverseResolve(_ context.Context, addr domain.Address) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, a := range s.byName {
		if a.Equal(addr) {
			return name, nil
		}
	}
	return "", nil
}

var _ domain.NameResolver = (*Static)(nil)
