// Package simple decides which remote URLs the engine may fetch when it
// verifies inbound pingbacks or discovers pingback endpoints.
package simple

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrBlocked is returned for URLs the policy refuses.
var ErrBlocked = errors.New("url blocked by policy")

// Config controls the policy.
type Config struct {
	// Blocklist holds exact hosts and "*.suffix" or ".suffix" wildcards.
	Blocklist []string
	// AllowPrivate permits loopback and private network addresses.
	AllowPrivate bool
}

// Policy checks remote URLs before they are fetched.
type Policy struct {
	blocked      *domainPatternBlocklist
	allowPrivate bool
}

// New creates a new Policy.
func New(cfg Config) *Policy {
	return &Policy{
		blocked:      newDomainPatternBlocklist(cfg.Blocklist),
		allowPrivate: cfg.AllowPrivate,
	}
}

// Check returns ErrBlocked for non-http(s) URLs, blocklisted hosts and,
// unless allowed, literal private addresses.
func (p *Policy) Check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlocked, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrBlocked, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrBlocked)
	}
	if p.blocked.IsBlocked(host) {
		return fmt.Errorf("%w: host %s", ErrBlocked, host)
	}
	if !p.allowPrivate && isPrivateHost(host) {
		return fmt.Errorf("%w: private address %s", ErrBlocked, host)
	}
	return nil
}

// Allowed is the boolean form of Check.
func (p *Policy) Allowed(raw string) bool {
	return p.Check(raw) == nil
}

func isPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// domainPatternBlocklist stores exact hosts and suffix wildcards derived from configuration.
type domainPatternBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainPatternBlocklist(patterns []string) *domainPatternBlocklist {
	matcher := &domainPatternBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *domainPatternBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

func (b *domainPatternBlocklist) IsBlocked(host string) bool {
	if b == nil || host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
