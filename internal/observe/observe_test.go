package observe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"dualinbox/internal/log"
)

func TestClassify(t *testing.T) {
	require.Equal(t, Warning, Classify(context.Canceled))
	require.Equal(t, Warning, Classify(fmt.Errorf("sync: %w", context.DeadlineExceeded)))
	require.Equal(t, Warning, Classify(Expected(errors.New("not found"))))
	require.Equal(t, Warning, Classify(errors.New("read: connection reset by peer")))
	require.Equal(t, Error, Classify(errors.New("disk full")))
}

func TestReporter_CountsBySeverity(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewReporter(log.Discard(), reg)
	require.NoError(t, err)

	require.Equal(t, Error, r.Report("registration", errors.New("boom")))
	require.Equal(t, Warning, r.Report("registration", context.Canceled))
	r.Report("registration", nil)

	require.Equal(t, 1.0, testutil.ToFloat64(r.Counter("registration", Error)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.Counter("registration", Warning)))

	// Registering a second reporter on the same registry collides.
	_, err = NewReporter(log.Discard(), reg)
	require.Error(t, err)
}
