package index

import (
	"context"
	"errors"

	"dualinbox/internal/domain"
	"dualinbox/internal/observe"
)

// ErrDisabled is returned by Disabled when asked to register topics.
var ErrDisabled = errors.New("index: no index configured")

// Disabled stands in for the index when none is configured. It holds no
// preferences and registers nothing.
type Disabled struct{}

// RegisterTopics implements domain.IndexClient.
func (Disabled) RegisterTopics(context.Context, domain.RegistrationRequest) (int, error) {
	return 0, observe.Expected(ErrDisabled)
}

// ConsentPreferences implements domain.IndexClient.
func (Disabled) ConsentPreferences(context.Context, domain.Address) (*domain.ConsentPreferences, error) {
	return nil, nil
}

var _ domain.IndexClient = Disabled{}
