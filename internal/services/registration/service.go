package registration

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
	"dualinbox/internal/log"
	"dualinbox/internal/observe"
	"dualinbox/internal/services/session"
)

const (
	component = "registration"

	// DefaultSigningConcurrency bounds in-flight per-topic signatures.
	DefaultSigningConcurrency = 3
)

// ErrMalformed is returned for a batch entry that cannot be registered.
var ErrMalformed = errors.New("registration: malformed topic")

// Sessions yields the live session of an address.
type Sessions interface {
	Require(addr domain.Address) (*session.Session, error)
}

// SigningPayload is the message an inbox signs to register topic for owner.
func SigningPayload(owner domain.Address, topic string) []byte {
	return []byte("dualinbox topic registration\nowner:" + owner.Checksum().String() + "\ntopic:" + topic)
}

// Service registers topics with the backend index.
type Service struct {
	log      *logging.Logger
	reporter *observe.Reporter
	sessions Sessions
	index    domain.IndexClient
	limit    int
}

// New returns a Service signing with at most signingConcurrency topics in
// flight.
func New(
	sessions Sessions,
	index domain.IndexClient,
	signingConcurrency int,
	backend *log.Backend,
	reporter *observe.Reporter,
) *Service {
	if signingConcurrency <= 0 {
		signingConcurrency = DefaultSigningConcurrency
	}
	return &Service{
		log:      backend.GetLogger(component),
		reporter: reporter,
		sessions: sessions,
		index:    index,
		limit:    signingConcurrency,
	}
}

// Validate checks every entry of a batch. A peer may not be accepted by one
// entry and blocked by another.
func Validate(topics []domain.TopicMetadata) error {
	decisions := make(map[string]bool)
	for i, t := range topics {
		if t.Topic == "" {
			return fmt.Errorf("%w: entry %d has no topic", ErrMalformed, i)
		}
		if _, err := domain.ParseAddress(t.PeerAddress.String()); err != nil {
			return fmt.Errorf("%w: %s: peer %q: %v", ErrMalformed, t.Topic, t.PeerAddress, err)
		}
		if t.Accept && t.Block {
			return fmt.Errorf("%w: %s is both accepted and blocked", ErrMalformed, t.Topic)
		}
		if !t.Accept && !t.Block {
			continue
		}
		k := t.PeerAddress.Key()
		if accept, ok := decisions[k]; ok && accept != t.Accept {
			return fmt.Errorf("%w: peer %s is both accepted and blocked", ErrMalformed, t.PeerAddress)
		}
		decisions[k] = t.Accept
	}
	return nil
}

// RegisterTopics registers topics for addr and returns how many the index
// accepted.
//
// Steps:
//  1. Validate the batch and look up the live session.
//  2. Obtain one public key proof for the whole batch.
//  3. Apply the allow set and the block set to native consent, one call each.
//  4. Sign (addr, topic) for every topic with bounded concurrency.
//  5. Submit the proof and all registrations in one request.
//
// Validation and missing-session errors are returned. Network failures are
// reported and yield 0 without undoing step 3.
func (s *Service) RegisterTopics(ctx context.Context, addr domain.Address, topics []domain.TopicMetadata) (int, error) {
	if err := Validate(topics); err != nil {
		return 0, err
	}
	if len(topics) == 0 {
		return 0, nil
	}
	sess, err := s.sessions.Require(addr)
	if err != nil {
		return 0, err
	}
	client := sess.Client()
	owner := sess.Address()

	proof, err := client.PublicKeyProof(ctx)
	if err != nil {
		s.reporter.Report(component, fmt.Errorf("public key proof for %s: %w", owner, err))
		return 0, nil
	}

	allow, block := partition(topics)
	if len(allow) > 0 {
		if err := client.Allow(ctx, allow); err != nil {
			s.reporter.Report(component, fmt.Errorf("allow %d peers: %w", len(allow), err))
		}
	}
	if len(block) > 0 {
		if err := client.Deny(ctx, block); err != nil {
			s.reporter.Report(component, fmt.Errorf("deny %d peers: %w", len(block), err))
		}
	}

	regs := make([]domain.TopicRegistration, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, t := range topics {
		g.Go(func() error {
			sig, err := client.Sign(gctx, SigningPayload(owner, t.Topic))
			if err != nil {
				return fmt.Errorf("sign %s: %w", t.Topic, err)
			}
			regs[i] = domain.TopicRegistration{
				Topic:       t.Topic,
				PeerAddress: t.PeerAddress.Checksum().String(),
				Signature:   crypto.B64(sig),
				Accept:      flag(t.Accept),
				Block:       flag(t.Block),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.reporter.Report(component, err)
		return 0, nil
	}

	n, err := s.index.RegisterTopics(ctx, domain.RegistrationRequest{
		OwnerAddress:    owner.String(),
		SignedPublicKey: crypto.B64(proof),
		Registrations:   regs,
	})
	if err != nil {
		s.reporter.Report(component, fmt.Errorf("submit %d topics: %w", len(regs), err))
		return 0, nil
	}
	s.log.Debugf("Registered %d/%d topics for %s", n, len(regs), owner)
	return n, nil
}

func partition(topics []domain.TopicMetadata) (allow, block []domain.Address) {
	seen := make(map[string]bool)
	for _, t := range topics {
		if !t.Accept && !t.Block {
			continue
		}
		k := t.PeerAddress.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if t.Accept {
			allow = append(allow, t.PeerAddress.Checksum())
		} else {
			block = append(block, t.PeerAddress.Checksum())
		}
	}
	return allow, block
}

func flag(v bool) *bool {
	if !v {
		return nil
	}
	return &v
}
