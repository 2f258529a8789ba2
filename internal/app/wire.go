package app

import (
	"fmt"
	"path/filepath"
	"time"

	"dualinbox/internal/config"
	"dualinbox/internal/domain"
	"dualinbox/internal/index"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/protocol/memdm"
	"dualinbox/internal/protocol/memgroup"
	"dualinbox/internal/resolve"
	"dualinbox/internal/retry"
	"dualinbox/internal/services/attachment"
	"dualinbox/internal/services/consent"
	"dualinbox/internal/services/conversation"
	"dualinbox/internal/services/group"
	"dualinbox/internal/services/identity"
	"dualinbox/internal/services/notify"
	"dualinbox/internal/services/registration"
	"dualinbox/internal/services/session"
	"dualinbox/internal/services/setup"
	"dualinbox/internal/storage"
	"dualinbox/internal/store"
)

// localBlobBase is the URL prefix of the in-process blob store used when no
// storage endpoint is configured.
const localBlobBase = "https://blobs.localhost"

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config   *config.Config
	Backend  *log.Backend
	Reporter *observe.Reporter

	Store   *store.DB
	Wallets *identity.Service
	Names   *resolve.Cache
	Index   domain.IndexClient
	Blobs   domain.BlobStorage

	Sessions     *session.Manager
	Consent      *consent.Engine
	Preferences  *consent.PreferenceSource
	Registration *registration.Service
	Sync         *conversation.Synchronizer
	Listener     *conversation.Listener
	Attachments  *attachment.Pipeline
	Group        *group.Adapter
	Setup        *setup.Machine
	Hub          *notify.Hub
	Feed         *notify.Feed

	feed *notify.Subscription
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	c := cfg.Config
	if c == nil {
		c = config.Default()
	}

	backend, err := log.New(c.Logging.File, c.Logging.Level, c.Logging.Disable)
	if err != nil {
		return nil, err
	}
	reporter, err := observe.NewReporter(backend, cfg.Registry)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(c.Store.Path, c.Store.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	// Protocol clients
	dm := cfg.DM
	if dm == nil {
		dm = memdm.NewNetwork()
	}
	groupClient := cfg.Group
	if groupClient == nil {
		groupClient = memgroup.NewNetwork()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = resolve.NewStatic()
	}

	// Backend endpoints
	var idx domain.IndexClient = index.Disabled{}
	if c.Index.URL != "" {
		idx = index.NewHTTP(c.Index.URL, c.Index.Timeout())
	}
	blobs := cfg.Blobs
	switch {
	case blobs != nil:
	case c.Storage.URL != "":
		blobs = storage.NewHTTP(c.Storage.URL, c.Storage.Timeout())
	default:
		blobs = storage.NewMemory(localBlobBase)
	}

	// High-level services
	names := resolve.New(resolver, db, backend, reporter)
	sessions := session.New(dm, db, backend, reporter)
	engine := consent.New(backend)
	prefs := consent.NewPreferenceSource(idx, names, reporter)
	topics := registration.New(sessions, idx, c.Sync.SigningConcurrency, backend, reporter)
	sync := conversation.New(sessions, engine, topics, conversation.Options{
		PreviewConcurrency: c.Sync.PreviewConcurrency,
		SelfMarker:         c.Sync.SelfMarker,
		Preferences:        prefs.ForAddress,
	}, backend, reporter)
	hub := notify.NewHub(backend, reporter)
	feed := notify.NewFeed(c.Notify.FeedCapacity)
	groups := group.New(groupClient, db, db, c.Group.PageSize, hub, backend, reporter)
	poll := retry.DefaultPolicy()
	poll.MaxAttempts = c.Attachments.PollAttempts
	poll.BaseDelay = time.Duration(c.Attachments.PollBaseDelayMillis) * time.Millisecond
	poll.MaxDelay = time.Duration(c.Attachments.PollMaxDelayMillis) * time.Millisecond

	return &Wire{
		Config:       c,
		Backend:      backend,
		Reporter:     reporter,
		Store:        db,
		Wallets:      identity.New(store.NewWalletFileStore(filepath.Dir(c.Store.Path))),
		Names:        names,
		Index:        idx,
		Blobs:        blobs,
		Sessions:     sessions,
		Consent:      engine,
		Preferences:  prefs,
		Registration: topics,
		Sync:         sync,
		Listener:     conversation.NewListener(sync, hub),
		Attachments:  attachment.New(blobs, c.Attachments.MaxBytes, poll, backend, reporter),
		Group:        groups,
		Setup:        setup.New(db, sessions, groups, backend, reporter),
		Hub:          hub,
		Feed:         feed,
		feed:         feed.Attach(hub),
	}, nil
}

// Close stops background work and closes the store.
func (w *Wire) Close() error {
	w.feed.Close()
	w.Hub.Close()
	w.Sessions.Close()
	return w.Store.Close()
}
