package server

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/charmbracelet/ssh"

	"console-terminal/internal/builtin"
	"console-terminal/internal/config"
	"console-terminal/internal/console"
	"console-terminal/internal/router"
	"console-terminal/internal/theme"
	"console-terminal/internal/tui"
)

// pollInterval bounds how long a quiet session waits between console polls
// when no input notification arrives.
const pollInterval = 50 * time.Millisecond

// sessionHandler runs one console per SSH session: banner, prompt loop,
// dispatch, until the client hangs up or the session context ends.
func sessionHandler(cfg config.Config) ssh.Handler {
	return func(s ssh.Session) {
		pty, _, hasPTY := s.Pty()
		if !hasPTY {
			_, _ = s.Write([]byte("interactive terminal requires an attached PTY\n"))
			_ = s.Exit(1)
			return
		}

		user := s.User()
		if identity, ok := router.IdentityFromSession(s); ok {
			user = identity.User
		}
		remote := "unknown"
		if addr := s.RemoteAddr(); addr != nil {
			remote = addr.String()
		}

		variant, bundle, err := theme.ResolveFromEnv(cfg.ThemeVariant, pty.Term)
		if err != nil {
			log.Printf("level=warn event=theme_resolve_failed variant=%s error=%v", variant, err)
			bundle, _ = theme.Resolve(theme.VariantMono, pty.Term)
		}
		profile := theme.DetectTermProfile(pty.Term)
		model := tui.NewModel(Version, user, remote, bundle, profile)

		stream := newSessionStream(s)
		defer stream.shutdown()
		c := console.New(stream, cfg.Echo)

		defs := builtin.Catalog(builtin.Info{User: user, Version: Version, StartedAt: time.Now()})
		if cfg.EnableShell {
			defs = append(defs, shellDefinition(cfg.ShellCommand, stream, pty))
		}
		if !builtin.Install(c, defs) {
			log.Printf("level=warn event=command_table_full user=%s max=%d", user, console.MaxHandlers)
			_, _ = io.WriteString(s, model.WarningView("some commands are unavailable: command table is full")+"\n")
		}
		c.RegisterDefault(func(args console.Args, _ io.Writer) string {
			return model.WarningView(fmt.Sprintf("Unknown command %q.", args.Word(0))) + "\n"
		})

		_, _ = io.WriteString(s, model.BannerView())
		_, _ = io.WriteString(s, model.StatusView(c.HandlerCount())+"\n")
		log.Printf("level=info event=session_open user=%s remote=%q commands=%d echo=%t", user, remote, c.HandlerCount(), cfg.Echo)

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			if err := c.Run(); err != nil {
				log.Printf("level=info event=session_close user=%s remote=%q reason=%v", user, remote, err)
				_ = s.Exit(0)
				return
			}
			select {
			case <-s.Context().Done():
				log.Printf("level=info event=session_close user=%s remote=%q reason=context", user, remote)
				return
			case <-stream.Ready():
			case <-ticker.C:
			}
		}
	}
}
