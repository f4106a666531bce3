package router

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/ssh"
)

type fakeContext struct {
	context.Context
	mu     sync.Mutex
	values map[any]any
	remote net.Addr
	local  net.Addr
	user   string
}

func newFakeContext(ctx context.Context, user string, remote net.Addr) *fakeContext {
	return &fakeContext{
		Context: ctx,
		values:  map[any]any{},
		remote:  remote,
		local:   &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222},
		user:    user,
	}
}

func (f *fakeContext) Lock()                         { f.mu.Lock() }
func (f *fakeContext) Unlock()                       { f.mu.Unlock() }
func (f *fakeContext) User() string                  { return f.user }
func (f *fakeContext) SessionID() string             { return "router-test-session" }
func (f *fakeContext) ClientVersion() string         { return "ssh-test-client" }
func (f *fakeContext) ServerVersion() string         { return "ssh-test-server" }
func (f *fakeContext) RemoteAddr() net.Addr          { return f.remote }
func (f *fakeContext) LocalAddr() net.Addr           { return f.local }
func (f *fakeContext) Permissions() *ssh.Permissions { return &ssh.Permissions{} }
func (f *fakeContext) SetValue(key, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}
func (f *fakeContext) Value(key interface{}) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return v
	}
	return f.Context.Value(key)
}

type fakeSession struct {
	ctx    *fakeContext
	remote net.Addr
	user   string
	mu     sync.Mutex
	writes bytes.Buffer
}

func newFakeSession(user, remote string) *fakeSession {
	addr, err := net.ResolveTCPAddr("tcp", remote)
	if err != nil {
		addr = &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 40000}
	}
	return &fakeSession{
		ctx:    newFakeContext(context.Background(), user, addr),
		remote: addr,
		user:   user,
	}
}

func (f *fakeSession) Read(p []byte) (int, error) { return 0, io.EOF }
func (f *fakeSession) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes.Write(p)
}
func (f *fakeSession) Close() error      { return nil }
func (f *fakeSession) CloseWrite() error { return nil }
func (f *fakeSession) SendRequest(string, bool, []byte) (bool, error) {
	return false, nil
}
func (f *fakeSession) Stderr() io.ReadWriter          { return &bytes.Buffer{} }
func (f *fakeSession) User() string                   { return f.user }
func (f *fakeSession) RemoteAddr() net.Addr           { return f.remote }
func (f *fakeSession) LocalAddr() net.Addr            { return f.ctx.local }
func (f *fakeSession) Environ() []string              { return nil }
func (f *fakeSession) Exit(int) error                 { return nil }
func (f *fakeSession) Command() []string              { return nil }
func (f *fakeSession) RawCommand() string             { return "" }
func (f *fakeSession) Subsystem() string              { return "" }
func (f *fakeSession) PublicKey() ssh.PublicKey       { return nil }
func (f *fakeSession) Context() ssh.Context           { return f.ctx }
func (f *fakeSession) Permissions() ssh.Permissions   { return ssh.Permissions{} }
func (f *fakeSession) EmulatedPty() bool              { return false }
func (f *fakeSession) Signals(chan<- ssh.Signal)      {}
func (f *fakeSession) Break(chan<- bool)              {}
func (f *fakeSession) Pty() (ssh.Pty, <-chan ssh.Window, bool) {
	return ssh.Pty{}, nil, false
}

func (f *fakeSession) output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes.String()
}

func testLimits() Limits {
	return Limits{RateLimitPerMinute: 60, RateLimitBurst: 10, MaxSessions: 4}
}

func TestDefaultChainOrder(t *testing.T) {
	chain := DefaultChain(testLimits())
	want := []string{"rate-limit", "session-cap", "identity"}
	if len(chain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(want))
	}
	for i := range want {
		if chain[i].Name != want[i] {
			t.Fatalf("chain[%d] = %q, want %q", i, chain[i].Name, want[i])
		}
	}
}

func TestChainAttachesIdentityBeforeHandler(t *testing.T) {
	s := newFakeSession("operator", "203.0.113.5:50000")
	middleware := MiddlewareFromDescriptors(DefaultChain(testLimits()))

	called := false
	h := ssh.Handler(func(sess ssh.Session) {
		called = true
		identity, ok := IdentityFromSession(sess)
		if !ok {
			t.Fatal("expected identity metadata before handler execution")
		}
		if identity.User != "operator" || identity.RemoteIP != "203.0.113.5" {
			t.Fatalf("identity = %+v", identity)
		}
	})
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	h(s)

	if !called {
		t.Fatal("expected inner handler to run")
	}
}

func TestRateLimitMiddlewareThrottlesBurst(t *testing.T) {
	const burst = 3
	mw := RateLimitMiddleware(1, burst)

	passed := 0
	h := mw(func(ssh.Session) { passed++ })

	var last *fakeSession
	for i := 0; i < burst+1; i++ {
		last = newFakeSession("operator", "203.0.113.7:51000")
		h(last)
	}

	if passed != burst {
		t.Fatalf("passed = %d, want %d", passed, burst)
	}
	if last.output() != "rate limit exceeded\n" {
		t.Fatalf("throttled session got %q", last.output())
	}
}

func TestConnLimiterRefillsOverTime(t *testing.T) {
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	limiter := newConnLimiter(60, 2, func() time.Time { return current })

	const ip = "203.0.113.50"
	if !limiter.allow(ip) || !limiter.allow(ip) {
		t.Fatal("burst tokens should admit the first connections")
	}
	if limiter.allow(ip) {
		t.Fatal("empty bucket should throttle")
	}

	// 60 per minute refills one token per second.
	current = current.Add(time.Second)
	if !limiter.allow(ip) {
		t.Fatal("refilled bucket should admit again")
	}
	if limiter.allow(ip) {
		t.Fatal("refill should not exceed the elapsed budget")
	}

	// Tokens cap at the burst even after a long quiet spell.
	current = current.Add(time.Hour)
	if !limiter.allow(ip) || !limiter.allow(ip) {
		t.Fatal("bucket should refill to the full burst")
	}
	if limiter.allow(ip) {
		t.Fatal("bucket should cap at the burst")
	}
}

func TestRateLimitMiddlewareIsolatesAddresses(t *testing.T) {
	mw := RateLimitMiddleware(1, 1)

	passed := 0
	h := mw(func(ssh.Session) { passed++ })

	h(newFakeSession("a", "203.0.113.10:50001"))
	h(newFakeSession("b", "203.0.113.11:50002"))

	if passed != 2 {
		t.Fatalf("distinct IPs should not share a bucket, passed = %d", passed)
	}
}

func TestMaxSessionsMiddlewareRejectsOverCap(t *testing.T) {
	mw := MaxSessionsMiddleware(2)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	h := mw(func(ssh.Session) {
		started <- struct{}{}
		<-release
	})

	for i := 0; i < 2; i++ {
		go h(newFakeSession("operator", "203.0.113.20:52000"))
	}
	<-started
	<-started

	rejected := newFakeSession("operator", "203.0.113.20:52001")
	h(rejected)
	if rejected.output() != "too many concurrent sessions\n" {
		t.Fatalf("over-cap session got %q", rejected.output())
	}

	close(release)
}

func TestMaxSessionsMiddlewareReleasesSlots(t *testing.T) {
	mw := MaxSessionsMiddleware(1)

	passed := 0
	h := mw(func(ssh.Session) { passed++ })

	h(newFakeSession("operator", "203.0.113.30:53000"))
	h(newFakeSession("operator", "203.0.113.30:53001"))

	if passed != 2 {
		t.Fatalf("sequential sessions should reuse the slot, passed = %d", passed)
	}
}

func TestRemoteIPFallbacks(t *testing.T) {
	s := newFakeSession("operator", "203.0.113.40:54000")
	if got := remoteIP(s); got != "203.0.113.40" {
		t.Fatalf("remoteIP = %q, want 203.0.113.40", got)
	}

	s.remote = nil
	if got := remoteIP(s); got != "unknown" {
		t.Fatalf("remoteIP with nil addr = %q, want unknown", got)
	}
}
