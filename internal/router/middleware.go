// Package router assembles the named middleware chain every SSH session
// passes through before it reaches the console handler.
package router

import (
	"net"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
)

type contextKey string

const (
	sessionIdentityKey contextKey = "console-identity"
)

// Identity is the per-session metadata the chain attaches for downstream
// consumers (the console handler, logging).
type Identity struct {
	User     string
	RemoteIP string
}

// Descriptor names one middleware so the runtime can log the active chain.
type Descriptor struct {
	Name       string
	Middleware wish.Middleware
}

// Limits carries the knobs the default chain needs from configuration.
type Limits struct {
	RateLimitPerMinute int
	RateLimitBurst     int
	MaxSessions        int
}

// DefaultChain wires the startup middleware in order: rate limiting, the
// concurrent-session cap, and identity tagging.
func DefaultChain(limits Limits) []Descriptor {
	return []Descriptor{
		{Name: "rate-limit", Middleware: RateLimitMiddleware(limits.RateLimitPerMinute, limits.RateLimitBurst)},
		{Name: "session-cap", Middleware: MaxSessionsMiddleware(limits.MaxSessions)},
		{Name: "identity", Middleware: identityTagging()},
	}
}

// MiddlewareFromDescriptors strips the names off for wish server construction.
func MiddlewareFromDescriptors(chain []Descriptor) []wish.Middleware {
	out := make([]wish.Middleware, 0, len(chain))
	for _, descriptor := range chain {
		out = append(out, descriptor.Middleware)
	}
	return out
}

// IdentityFromSession returns the identity the chain attached, if any.
func IdentityFromSession(s ssh.Session) (Identity, bool) {
	identity, ok := s.Context().Value(sessionIdentityKey).(Identity)
	return identity, ok
}

func identityTagging() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			s.Context().SetValue(sessionIdentityKey, Identity{
				User:     s.User(),
				RemoteIP: remoteIP(s),
			})
			next(s)
		}
	}
}

func remoteIP(s ssh.Session) string {
	remote := s.RemoteAddr()
	if remote == nil {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return remote.String()
	}

	if host == "" {
		return "unknown"
	}
	return host
}
