package consent

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/domain"
	"dualinbox/internal/log"
)

const component = "consent"

// ErrConflictingPreference is returned when a topic is both accepted and
// blocked in the legacy preferences.
var ErrConflictingPreference = errors.New("consent: topic is both accepted and blocked")

// Engine migrates legacy consent into the native store.
type Engine struct {
	log *logging.Logger
}

// New returns an Engine.
func New(backend *log.Backend) *Engine {
	return &Engine{log: backend.GetLogger(component)}
}

// Resolve returns the consent state of conv. prefs may be nil.
//
// A native state other than unknown is returned as is. Otherwise a topic in
// the legacy accepted set is written as allowed, a topic in the blocked set
// as denied. A topic in both sets is an error and nothing is written.
func (e *Engine) Resolve(ctx context.Context, conv domain.Conversation, prefs *domain.ConsentPreferences) (domain.ConsentState, error) {
	state, err := conv.ConsentState(ctx)
	if err != nil {
		return domain.ConsentUnknown, fmt.Errorf("consent: read %s: %w", conv.Topic(), err)
	}
	if state != domain.ConsentUnknown || prefs == nil {
		return state, nil
	}

	topic := conv.Topic()
	accepted, blocked := prefs.Accepted(topic), prefs.Blocked(topic)
	var next domain.ConsentState
	switch {
	case accepted && blocked:
		return domain.ConsentUnknown, fmt.Errorf("%w: %s", ErrConflictingPreference, topic)
	case accepted:
		next = domain.ConsentAllowed
	case blocked:
		next = domain.ConsentDenied
	default:
		return domain.ConsentUnknown, nil
	}

	if err := conv.SetConsentState(ctx, next); err != nil {
		return domain.ConsentUnknown, fmt.Errorf("consent: migrate %s: %w", topic, err)
	}
	e.log.Debugf("Migrated legacy consent for %s: %s", topic, next)
	return next, nil
}
