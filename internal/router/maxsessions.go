package router

import (
	"log"
	"sync"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
)

// MaxSessionsMiddleware caps the number of concurrently active sessions.
// Connections over the cap get a short notice and are closed before the
// console handler runs.
func MaxSessionsMiddleware(max int) wish.Middleware {
	if max <= 0 {
		max = 16
	}

	var mu sync.Mutex
	active := 0

	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			mu.Lock()
			if active >= max {
				mu.Unlock()
				log.Printf("level=warn event=session_cap_rejected remote_ip=%s active=%d max=%d", remoteIP(s), max, max)
				_, _ = s.Write([]byte("too many concurrent sessions\n"))
				return
			}
			active++
			mu.Unlock()

			defer func() {
				mu.Lock()
				active--
				mu.Unlock()
			}()
			next(s)
		}
	}
}
