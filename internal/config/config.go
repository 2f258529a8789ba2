// Package config provides the dualinbox configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultLogLevel           = "NOTICE"
	defaultStorePath          = "dualinbox.db"
	defaultHTTPTimeout        = 30
	defaultPreviewConcurrency = 10
	defaultSigningConcurrency = 3
	defaultSelfMarker         = "You:"
	defaultMaxAttachmentBytes = 10 << 20
	defaultPollAttempts       = 6
	defaultPollBaseDelay      = 250
	defaultPollMaxDelay       = 4000
	defaultGroupPageSize      = 20
	defaultFeedCapacity       = 200
	defaultListen             = ":8080"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Store is the local key/cache store configuration.
type Store struct {
	// Path is the bbolt database file.
	Path string

	// Passphrase, when set, seals protocol keys at rest.
	Passphrase string
}

// Endpoint is a backend HTTP service.
type Endpoint struct {
	URL            string
	TimeoutSeconds int
}

// Timeout returns the request timeout.
func (e *Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e *Endpoint) fixupAndValidate(section string) error {
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = defaultHTTPTimeout
	}
	if e.URL == "" {
		return nil
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("config: %s: URL '%v' is invalid: %w", section, e.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s: URL '%v' must be http or https", section, e.URL)
	}
	e.URL = strings.TrimRight(e.URL, "/")
	return nil
}

// Sync tunes the conversation synchronizer and topic registration.
type Sync struct {
	PreviewConcurrency int
	SigningConcurrency int

	// SelfMarker prefixes previews of messages sent by the local inbox.
	SelfMarker string
}

// Attachments tunes the attachment pipeline.
type Attachments struct {
	MaxBytes            int64
	PollAttempts        int
	PollBaseDelayMillis int
	PollMaxDelayMillis  int
}

// Group tunes the group messaging adapter.
type Group struct {
	PageSize int
}

// Notify tunes the notification feed.
type Notify struct {
	FeedCapacity int
}

// Server is the cmd/indexd listener configuration.
type Server struct {
	Listen string
}

// Config is the top level dualinbox configuration.
type Config struct {
	Logging     *Logging
	Store       *Store
	Index       *Endpoint
	Storage     *Endpoint
	Sync        *Sync
	Attachments *Attachments
	Group       *Group
	Notify      *Notify
	Server      *Server
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.
func (c *Config) FixupAndValidate() error {
	if c.Logging == nil {
		l := defaultLogging
		c.Logging = &l
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}

	if c.Store == nil {
		c.Store = &Store{}
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}

	if c.Index == nil {
		c.Index = &Endpoint{}
	}
	if err := c.Index.fixupAndValidate("Index"); err != nil {
		return err
	}
	if c.Storage == nil {
		c.Storage = &Endpoint{}
	}
	if err := c.Storage.fixupAndValidate("Storage"); err != nil {
		return err
	}

	if c.Sync == nil {
		c.Sync = &Sync{}
	}
	if c.Sync.PreviewConcurrency <= 0 {
		c.Sync.PreviewConcurrency = defaultPreviewConcurrency
	}
	if c.Sync.SigningConcurrency <= 0 {
		c.Sync.SigningConcurrency = defaultSigningConcurrency
	}
	if c.Sync.SelfMarker == "" {
		c.Sync.SelfMarker = defaultSelfMarker
	}

	if c.Attachments == nil {
		c.Attachments = &Attachments{}
	}
	a := c.Attachments
	if a.MaxBytes < 0 {
		return errors.New("config: Attachments: MaxBytes must not be negative")
	}
	if a.MaxBytes == 0 {
		a.MaxBytes = defaultMaxAttachmentBytes
	}
	if a.PollAttempts <= 0 {
		a.PollAttempts = defaultPollAttempts
	}
	if a.PollBaseDelayMillis <= 0 {
		a.PollBaseDelayMillis = defaultPollBaseDelay
	}
	if a.PollMaxDelayMillis <= 0 {
		a.PollMaxDelayMillis = defaultPollMaxDelay
	}
	if a.PollMaxDelayMillis < a.PollBaseDelayMillis {
		return errors.New("config: Attachments: PollMaxDelayMillis is below PollBaseDelayMillis")
	}

	if c.Group == nil {
		c.Group = &Group{}
	}
	if c.Group.PageSize <= 0 {
		c.Group.PageSize = defaultGroupPageSize
	}
	if c.Notify == nil {
		c.Notify = &Notify{}
	}
	if c.Notify.FeedCapacity <= 0 {
		c.Notify.FeedCapacity = defaultFeedCapacity
	}
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	return nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
