// Package discovery lets a client enumerate the destinations a
// server.ServerProxy has registered sinks for, gated by the same IP/token
// access control a reflection endpoint would use.
package discovery

import (
	"fmt"
	"net"
	"sort"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
)

// TokenValidator checks the raw token value from the configured AuthHeader.
// Return nil if the token is valid.
type TokenValidator func(ctx context.Context, token string) error

// Config gates access to a Server's ListDestinations. Both an IP
// restriction and token validation are checked (AND logic) when both are
// configured; either one left unset doesn't restrict on that axis.
type Config struct {
	// AllowedCIDRs lists the CIDR ranges permitted to call ListDestinations.
	// Empty means no IP restriction.
	AllowedCIDRs []string

	// AuthHeader names the metadata key carrying the auth token. Defaults
	// to "authorization".
	AuthHeader string

	// TokenValidator validates AuthHeader's value. Nil means no token
	// validation.
	TokenValidator TokenValidator

	mu          sync.RWMutex
	parsedCIDRs []*net.IPNet
}

// Validate parses AllowedCIDRs and fills in AuthHeader's default. Must be
// called once before the Config is used.
func (c *Config) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.parsedCIDRs = make([]*net.IPNet, 0, len(c.AllowedCIDRs))
	for _, cidr := range c.AllowedCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return fmt.Errorf("discovery: invalid CIDR %q: %w", cidr, err)
		}
		c.parsedCIDRs = append(c.parsedCIDRs, ipNet)
	}
	if c.AuthHeader == "" {
		c.AuthHeader = "authorization"
	}
	return nil
}

func (c *Config) isIPAllowed(ip net.IP) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.parsedCIDRs) == 0 {
		return true
	}
	for _, ipNet := range c.parsedCIDRs {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func (c *Config) validateToken(ctx context.Context, token string) error {
	c.mu.RLock()
	validator := c.TokenValidator
	c.mu.RUnlock()
	if validator == nil {
		return nil
	}
	return validator(ctx, token)
}

// Lister returns the destination names currently registered with sinks.
// server.ServerProxy satisfies this.
type Lister interface {
	ListDestinations() []string
}

// ErrAccessDenied is returned by Server.ListDestinations when the caller's
// remote address or token fails the configured Config.
var ErrAccessDenied = fmt.Errorf("discovery: access denied")

// Server answers ListDestinations requests against a Lister, enforcing cfg.
type Server struct {
	lister Lister
	cfg    *Config
}

// NewServer returns a Server listing lister's destinations, gated by cfg.
// cfg must already have had Validate called on it.
func NewServer(lister Lister, cfg *Config) *Server {
	return &Server{lister: lister, cfg: cfg}
}

// ListDestinations returns the sorted destination names lister has sinks
// for, after checking remoteAddr against cfg's CIDR restriction and token
// against cfg's TokenValidator.
func (s *Server) ListDestinations(ctx context.Context, remoteAddr net.Addr, token string) ([]string, error) {
	if s.cfg != nil {
		if remoteAddr != nil {
			if ip := extractIP(remoteAddr); ip != nil && !s.cfg.isIPAllowed(ip) {
				return nil, ErrAccessDenied
			}
		}
		if err := s.cfg.validateToken(ctx, token); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}

	names := s.lister.ListDestinations()
	sort.Strings(names)
	return names, nil
}

// extractIP extracts the IP from a net.Addr.
func extractIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return net.ParseIP(addr.String())
		}
		return net.ParseIP(host)
	}
}
