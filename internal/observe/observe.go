// Package observe is the error reporting hook for orchestration code.
//
// Transport failures that should not block the surrounding user action are
// handed to a Reporter instead of being returned. The Reporter decides the
// severity, logs the error under the reporting component and counts it.
package observe

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/log"
	"dualinbox/internal/retry"
)

// Severity classifies a reported error.
type Severity int

const (
	// Warning marks conditions the system expects to happen occasionally.
	Warning Severity = iota
	// Error marks everything else.
	Error
)

// String returns the label used for logs and metrics.
func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

type expected struct{ err error }

func (e expected) Error() string { return e.err.Error() }
func (e expected) Unwrap() error { return e.err }

// Expected marks err as an anticipated condition, reported as a Warning.
func Expected(err error) error {
	if err == nil {
		return nil
	}
	return expected{err: err}
}

// Classify returns the severity Report would use for err.
func Classify(err error) Severity {
	var e expected
	switch {
	case errors.As(err, &e),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		retry.IsTransientError(err):
		return Warning
	default:
		return Error
	}
}

// Reporter logs and counts errors per component.
type Reporter struct {
	backend *log.Backend
	errors  *prometheus.CounterVec

	mu      sync.Mutex
	loggers map[string]*logging.Logger
}

// NewReporter returns a Reporter writing to backend. The counter is
// registered with reg when reg is non-nil.
func NewReporter(backend *log.Backend, reg prometheus.Registerer) (*Reporter, error) {
	r := &Reporter{
		backend: backend,
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dualinbox",
			Name:      "reported_errors_total",
			Help:      "Errors reported by orchestration components, by severity.",
		}, []string{"component", "severity"}),
		loggers: make(map[string]*logging.Logger),
	}
	if reg != nil {
		if err := reg.Register(r.errors); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Report records err for component and returns its severity. A nil err is ignored.
func (r *Reporter) Report(component string, err error) Severity {
	if err == nil {
		return Warning
	}
	sev := Classify(err)
	r.errors.WithLabelValues(component, sev.String()).Inc()

	l := r.logger(component)
	if sev == Warning {
		l.Warningf("%v", err)
	} else {
		l.Errorf("%v", err)
	}
	return sev
}

// Counter exposes the underlying counter for one component and severity.
func (r *Reporter) Counter(component string, sev Severity) prometheus.Counter {
	return r.errors.WithLabelValues(component, sev.String())
}

func (r *Reporter) logger(component string) *logging.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loggers[component]
	if !ok {
		l = r.backend.GetLogger(component)
		r.loggers[component] = l
	}
	return l
}
