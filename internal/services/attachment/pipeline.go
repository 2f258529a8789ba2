package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/retry"
)

const (
	component = "attachment"

	// DefaultMaxBytes is the largest file Send accepts.
	DefaultMaxBytes = 10 << 20
)

var (
	// ErrTooLarge is returned before any network call for oversized files.
	ErrTooLarge = errors.New("attachment: file exceeds size limit")
	// ErrUnavailable is returned when an upload never became readable.
	ErrUnavailable = errors.New("attachment: upload not available")
	// ErrDigestMismatch is returned when downloaded bytes do not match the
	// descriptor digest.
	ErrDigestMismatch = errors.New("attachment: content digest mismatch")
	// ErrInsecureURL is returned for descriptors not served over https.
	ErrInsecureURL = errors.New("attachment: descriptor url is not https")
	// ErrNotAttachment is returned when loading a message of another kind.
	ErrNotAttachment = errors.New("attachment: message is not a remote attachment")
)

// Pipeline moves attachments through blob storage.
type Pipeline struct {
	log      *logging.Logger
	reporter *observe.Reporter
	storage  domain.BlobStorage
	maxBytes int64
	poll     retry.Policy
}

// New returns a Pipeline. maxBytes <= 0 selects DefaultMaxBytes.
func New(storage domain.BlobStorage, maxBytes int64, poll retry.Policy, backend *log.Backend, reporter *observe.Reporter) *Pipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Pipeline{
		log:      backend.GetLogger(component),
		reporter: reporter,
		storage:  storage,
		maxBytes: maxBytes,
		poll:     poll,
	}
}

// MaxBytes returns the configured size limit.
func (p *Pipeline) MaxBytes() int64 { return p.maxBytes }

// Fallback is the text shown by clients that cannot render file.
func Fallback(filename, appDomain string) string {
	if appDomain == "" {
		return fmt.Sprintf("Attachment %q. This client cannot display attachments.", filename)
	}
	return fmt.Sprintf("Attachment %q. Open %s to view it.", filename, appDomain)
}

// Send encrypts file, uploads it, waits until the upload reads back intact
// and sends the descriptor on conv. It returns the sent message as stored
// by the network.
func (p *Pipeline) Send(ctx context.Context, conv domain.Conversation, file domain.Attachment, appDomain string) (domain.DecodedMessage, error) {
	if int64(len(file.Data)) > p.maxBytes {
		return domain.DecodedMessage{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(file.Data), p.maxBytes)
	}
	payload, err := cbor.Marshal(file)
	if err != nil {
		return domain.DecodedMessage{}, err
	}
	sealed, err := crypto.SealAttachment(payload)
	if err != nil {
		return domain.DecodedMessage{}, err
	}

	url, err := p.storage.Upload(ctx, sealed.Ciphertext)
	if err != nil {
		return domain.DecodedMessage{}, fmt.Errorf("attachment: upload: %w", err)
	}
	if !strings.HasPrefix(url, domain.AttachmentScheme) {
		return domain.DecodedMessage{}, fmt.Errorf("%w: %s", ErrInsecureURL, url)
	}
	if err := p.awaitAvailable(ctx, url, sealed.Digest); err != nil {
		return domain.DecodedMessage{}, err
	}

	content := domain.RemoteAttachmentContent{
		Descriptor: domain.RemoteAttachment{
			URL:           url,
			ContentDigest: sealed.Digest,
			Salt:          sealed.Salt,
			Nonce:         sealed.Nonce,
			Secret:        sealed.Secret,
			Scheme:        domain.AttachmentScheme,
			Filename:      file.Filename,
			ContentLength: len(file.Data),
		},
		Fallback: Fallback(file.Filename, appDomain),
	}
	id, err := conv.Send(ctx, content)
	if err != nil {
		return domain.DecodedMessage{}, fmt.Errorf("attachment: send: %w", err)
	}
	msg, err := conv.MessageByID(ctx, id)
	if err != nil {
		return domain.DecodedMessage{}, fmt.Errorf("attachment: fetch sent message: %w", err)
	}
	p.log.Debugf("Sent %s (%d bytes) on %s", file.Filename, len(file.Data), conv.Topic())
	return msg, nil
}

// awaitAvailable polls url until it serves bytes matching digest.
func (p *Pipeline) awaitAvailable(ctx context.Context, url, digest string) error {
	attempts := 0
	err := retry.Poll(ctx, p.poll, func(ctx context.Context) (bool, error) {
		attempts++
		b, err := p.storage.Download(ctx, url)
		if err != nil {
			return false, err
		}
		return crypto.DigestMatches(b, digest), nil
	})
	if err != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, attempts, err)
	}
	if attempts > 1 {
		p.log.Debugf("Upload %s readable after %d attempts", url, attempts)
	}
	return nil
}

// Load downloads and decrypts the attachment of msg. The ciphertext digest
// is checked before decryption; nothing is returned on mismatch.
func (p *Pipeline) Load(ctx context.Context, msg domain.DecodedMessage) (domain.Attachment, error) {
	c, ok := msg.Content.(domain.RemoteAttachmentContent)
	if !ok {
		return domain.Attachment{}, ErrNotAttachment
	}
	d := c.Descriptor
	if d.Scheme != domain.AttachmentScheme || !strings.HasPrefix(d.URL, d.Scheme) {
		return domain.Attachment{}, fmt.Errorf("%w: %s", ErrInsecureURL, d.URL)
	}

	ct, err := p.storage.Download(ctx, d.URL)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("attachment: download: %w", err)
	}
	if !crypto.DigestMatches(ct, d.ContentDigest) {
		return domain.Attachment{}, ErrDigestMismatch
	}
	pt, err := crypto.OpenAttachment(ct, d.Secret, d.Salt, d.Nonce)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("attachment: decrypt: %w", err)
	}
	var att domain.Attachment
	if err := cbor.Unmarshal(pt, &att); err != nil {
		return domain.Attachment{}, fmt.Errorf("attachment: decode: %w", err)
	}
	if att.Filename == "" {
		att.Filename = d.Filename
	}
	return att, nil
}

// LoadOrFallback is Load for rendering: on failure it reports the error and
// returns the message's fallback text instead.
func (p *Pipeline) LoadOrFallback(ctx context.Context, msg domain.DecodedMessage) (*domain.Attachment, string) {
	att, err := p.Load(ctx, msg)
	if err == nil {
		return &att, ""
	}
	p.reporter.Report(component, err)
	if c, ok := msg.Content.(domain.RemoteAttachmentContent); ok {
		return nil, c.Fallback
	}
	return nil, ""
}
