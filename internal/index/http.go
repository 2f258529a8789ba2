package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"dualinbox/internal/domain"
)

// Paths served by the backend index.
const (
	RegisterPath = "/v1/topics/register"
	ConsentPath  = "/v1/consent/"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("index %s %s: %s", e.Method, e.Path, e.Status)
}

// Transient reports whether retrying the request may succeed.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// RegisterResponse is the reply to a topic registration.
type RegisterResponse struct {
	Count int `json:"count"`
}

// HTTP is the index client.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for base. A zero timeout means none.
func NewHTTP(base string, timeout time.Duration) *HTTP {
	return &HTTP{Base: base, HTTP: &http.Client{Timeout: timeout}}
}

// RegisterTopics submits one signed registration batch and returns how many
// topics the index accepted.
func (c *HTTP) RegisterTopics(ctx context.Context, req domain.RegistrationRequest) (int, error) {
	var out RegisterResponse
	if err := c.post(ctx, RegisterPath, req, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// ConsentPreferences returns the legacy preferences of owner, or nil when
// the index holds none.
func (c *HTTP) ConsentPreferences(ctx context.Context, owner domain.Address) (*domain.ConsentPreferences, error) {
	var out domain.PreferencesResponse
	err := c.getJSON(ctx, ConsentPath+url.PathEscape(owner.Checksum().String()), &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.NewConsentPreferences(out.AcceptedTopics, out.BlockedTopics), nil
}

func (c *HTTP) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *HTTP) do(req *http.Request, path string, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Method: req.Method, Path: path, Code: resp.StatusCode, Status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ domain.IndexClient = (*HTTP)(nil)
