package server

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"

	"console-terminal/internal/config"
	"console-terminal/internal/router"
)

// Version is the value reported by the version command; overridden at build
// time via -ldflags.
var Version = "dev"

// Runtime wires config + middleware + Wish server as a testable unit.
type Runtime struct {
	cfg           config.Config
	middlewareIDs []string
	server        *ssh.Server
}

// New builds the SSH front end: the router chain runs in slice order, then
// the console session handler.
func New(cfg config.Config, chain []router.Descriptor) (*Runtime, error) {
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	handler := composeChain(router.MiddlewareFromDescriptors(chain), sessionHandler(cfg))

	wishServer, err := wish.NewServer(
		wish.WithAddress(address),
		wish.WithHostKeyPath(cfg.HostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			func(ssh.Handler) ssh.Handler { return handler },
			logging.Middleware(),
		),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chain))
	for _, descriptor := range chain {
		ids = append(ids, descriptor.Name)
	}

	return &Runtime{cfg: cfg, middlewareIDs: ids, server: wishServer}, nil
}

func (r *Runtime) MiddlewareIDs() []string {
	out := make([]string, len(r.middlewareIDs))
	copy(out, r.middlewareIDs)
	return out
}

func (r *Runtime) Address() string {
	return r.server.Addr
}

func (r *Runtime) Run(ctx context.Context) error {
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		<-ctx.Done()
		_ = r.server.Shutdown(context.Background())
	}()

	log.Printf("level=info event=startup version=%s host=%s port=%d middleware=%v host_key_path=%s idle_timeout=%s max_sessions=%d echo=%t theme=%s", Version, r.cfg.Host, r.cfg.Port, r.middlewareIDs, r.cfg.HostKeyPath, r.cfg.IdleTimeout, r.cfg.MaxSessions, r.cfg.Echo, r.cfg.ThemeVariant)
	err := r.server.ListenAndServe()
	if errors.Is(err, ssh.ErrServerClosed) || err == nil {
		return nil
	}

	return err
}

// composeChain nests middleware so that execution order matches slice order,
// ending at final.
func composeChain(middleware []wish.Middleware, final ssh.Handler) ssh.Handler {
	h := final
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
