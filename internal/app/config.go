package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"dualinbox/internal/config"
	"dualinbox/internal/domain"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Config *config.Config

	DM       domain.DMClientFactory // optional; defaults to an in-process DM network
	Group    domain.GroupClient     // optional; defaults to an in-process group network
	Resolver domain.NameResolver    // optional; defaults to an empty static resolver
	Blobs    domain.BlobStorage     // optional; defaults to the configured storage endpoint

	Registry prometheus.Registerer // optional
}
