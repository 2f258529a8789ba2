package consent

import (
	"context"
	"fmt"

	"dualinbox/internal/domain"
	"dualinbox/internal/observe"
)

// ForwardResolver maps a domain name to the address that owns it.
type ForwardResolver interface {
	ForwardResolve(ctx context.Context, name string) (domain.Address, error)
}

// PreferenceSource loads legacy consent preferences from the backend index.
type PreferenceSource struct {
	index    domain.IndexClient
	resolver ForwardResolver
	reporter *observe.Reporter
}

// NewPreferenceSource returns a PreferenceSource. resolver may be nil when
// only address lookups are needed.
func NewPreferenceSource(index domain.IndexClient, resolver ForwardResolver, reporter *observe.Reporter) *PreferenceSource {
	return &PreferenceSource{index: index, resolver: resolver, reporter: reporter}
}

// ForAddress returns the legacy preferences stored for owner. Transport
// failures are reported and yield nil, which Resolve treats as "no legacy
// record".
func (p *PreferenceSource) ForAddress(ctx context.Context, owner domain.Address) *domain.ConsentPreferences {
	prefs, err := p.index.ConsentPreferences(ctx, owner)
	if err != nil {
		p.reporter.Report(component, fmt.Errorf("load preferences for %s: %w", owner, err))
		return nil
	}
	return prefs
}

// ForDomain resolves name to its owning address, then loads that
// address's preferences.
func (p *PreferenceSource) ForDomain(ctx context.Context, name string) *domain.ConsentPreferences {
	if p.resolver == nil {
		return nil
	}
	owner, err := p.resolver.ForwardResolve(ctx, name)
	if err != nil {
		p.reporter.Report(component, observe.Expected(err))
		return nil
	}
	return p.ForAddress(ctx, owner)
}
