// Package storage implements content-addressed blob storage clients for
// attachment ciphertext.
//
// Blobs are addressed by the hex SHA-256 of their bytes. HTTP talks to the
// blob endpoints of cmd/indexd; Memory is an in-process store whose reads
// can be made to lag behind writes.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
	"dualinbox/internal/index"
)

// BlobPath is the URL path prefix of blobs.
const BlobPath = "/v1/blobs/"

// maxBlobSize bounds downloads.
const maxBlobSize = 64 << 20

// ErrNotYetAvailable is returned for a blob that has been written but cannot
// be read back yet.
var ErrNotYetAvailable error = notYet{}

type notYet struct{}

func (notYet) Error() string   { return "storage: blob not yet available" }
func (notYet) Transient() bool { return true }

// DigestFromURL returns the content digest a blob URL refers to.
func DigestFromURL(u string) (string, error) {
	i := strings.LastIndex(u, BlobPath)
	if i < 0 {
		return "", fmt.Errorf("storage: not a blob url: %q", u)
	}
	d := u[i+len(BlobPath):]
	if len(d) != 64 {
		return "", fmt.Errorf("storage: malformed digest in %q", u)
	}
	return d, nil
}

// HTTP is the blob storage client.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for base. A zero timeout means none.
func NewHTTP(base string, timeout time.Duration) *HTTP {
	return &HTTP{Base: base, HTTP: &http.Client{Timeout: timeout}}
}

// Upload stores data and returns its URL.
func (c *HTTP) Upload(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.Base+BlobPath, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", &index.StatusError{Method: req.Method, Path: BlobPath, Code: resp.StatusCode, Status: resp.Status}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	u := strings.TrimSpace(string(b))
	if u == "" {
		u = c.Base + BlobPath + crypto.Digest(data)
	}
	return u, nil
}

// Download fetches the blob at u. A 404 is reported as ErrNotYetAvailable.
func (c *HTTP) Download(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotYetAvailable
	}
	if resp.StatusCode/100 != 2 {
		return nil, &index.StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Status: resp.Status}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBlobSize {
		return nil, errors.New("storage: blob too large")
	}
	return b, nil
}

// Memory is an in-process blob store.
type Memory struct {
	mu    sync.Mutex
	base  string
	blobs map[string][]byte
	lag   int
	stale []byte

	uploads   int
	downloads int
}

// NewMemory returns an empty store whose URLs start with base.
func NewMemory(base string) *Memory {
	return &Memory{base: strings.TrimRight(base, "/"), blobs: make(map[string][]byte)}
}

// SetLag makes the next n downloads fail as not yet available, or serve
// stale bytes when stale is non-nil.
func (m *Memory) SetLag(n int, stale []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lag, m.stale = n, stale
}

// Calls returns how many uploads and downloads have been served.
func (m *Memory) Calls() (uploads, downloads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads, m.downloads
}

// Put stores data under an explicit digest, for tests that need a blob whose
// bytes do not match its address.
func (m *Memory) Put(digest string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[digest] = bytes.Clone(data)
	return m.base + BlobPath + digest
}

// Upload implements domain.BlobStorage.
func (m *Memory) Upload(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
	return m.Put(crypto.Digest(data), data), nil
}

// Download implements domain.BlobStorage.
func (m *Memory) Download(ctx context.Context, u string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := DigestFromURL(u)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads++
	if m.lag > 0 {
		m.lag--
		if m.stale != nil {
			return bytes.Clone(m.stale), nil
		}
		return nil, ErrNotYetAvailable
	}
	b, ok := m.blobs[d]
	if !ok {
		return nil, ErrNotYetAvailable
	}
	return bytes.Clone(b), nil
}

var (
	_ domain.BlobStorage = (*HTTP)(nil)
	_ domain.BlobStorage = (*Memory)(nil)
)
