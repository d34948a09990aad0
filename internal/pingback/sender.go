package pingback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

// Fault codes a pingback server may answer with.
const (
	faultAlreadyRegistered = 48
	faultUpstream          = 50
)

// ErrNoEndpoint is returned when a target advertises no pingback server.
var ErrNoEndpoint = errors.New("target has no pingback endpoint")

// Job is one outbound pingback: source links to target.
type Job struct {
	Source string
	Target string
}

// Caller performs XML-RPC calls.
type Caller interface {
	Call(ctx context.Context, url, method string, args ...any) (any, error)
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// URLChecker refuses URLs the engine must not contact.
type URLChecker interface {
	Check(rawURL string) error
}

// Sender discovers endpoints and delivers pingbacks.
type Sender struct {
	fetcher PageFetcher
	client  Caller
	limiter Waiter
	policy  URLChecker
}

// NewSender builds a Sender. limiter and policy may be nil.
func NewSender(fetcher PageFetcher, client Caller, limiter Waiter, policy URLChecker) *Sender {
	return &Sender{fetcher: fetcher, client: client, limiter: limiter, policy: policy}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Discover returns the pingback endpoint of target from its X-Pingback
// header or its <link rel="pingback"> element.
func (s *Sender) Discover(ctx context.Context, target string) (string, error) {
	if err := s.wait(ctx, target); err != nil {
		return "", err
	}
	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		if IsStatus(err) && !IsStatus(err, 429, 500, 502, 503, 504) {
			return "", Permanent(err)
		}
		return "", err
	}
	if endpoint := strings.TrimSpace(page.Header.Get("X-Pingback")); endpoint != "" {
		return endpoint, nil
	}
	if page.PingbackLink != "" {
		return page.PingbackLink, nil
	}
	return "", Permanent(ErrNoEndpoint)
}

// Send delivers one pingback. Errors that retrying cannot fix are marked
// Permanent. A target that already recorded the ping counts as success.
func (s *Sender) Send(ctx context.Context, job Job) error {
	if s.policy != nil {
		if err := s.policy.Check(job.Target); err != nil {
			return Permanent(err)
		}
	}
	endpoint, err := s.Discover(ctx, job.Target)
	if err != nil {
		return err
	}
	if s.policy != nil {
		if err := s.policy.Check(endpoint); err != nil {
			return Permanent(err)
		}
	}
	if err := s.wait(ctx, endpoint); err != nil {
		return err
	}
	_, err = s.client.Call(ctx, endpoint, "pingback.ping", job.Source, job.Target)
	var f *xmlrpc.Fault
	switch {
	case err == nil:
		return nil
	case errors.As(err, &f) && f.Code == faultAlreadyRegistered:
		return nil
	case errors.As(err, &f) && f.Code != faultUpstream:
		return Permanent(fmt.Errorf("pingback %s: %w", job.Target, err))
	default:
		return fmt.Errorf("pingback %s: %w", job.Target, err)
	}
}

func (s *Sender) wait(ctx context.Context, rawURL string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx, rawURL)
}
