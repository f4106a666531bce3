package tui

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"console-terminal/internal/theme"
)

const bannerRule = "--------------------------------"

// Model carries everything needed to render the chrome around one console
// session: the connect banner written before the first prompt and the status
// line handlers can request.
type Model struct {
	version string
	user    string
	styles  theme.Bundle
	profile theme.TermProfile

	observerHash string
	motd         []string
}

// NewModel builds the session chrome from caller/session metadata. The
// observer hash pseudonymizes the remote address so it can be shown without
// leaking it.
func NewModel(version, user, remoteAddr string, styles theme.Bundle, profile theme.TermProfile) Model {
	return Model{
		version:      version,
		user:         user,
		styles:       styles,
		profile:      profile,
		observerHash: deriveObserverHash(remoteAddr),
		motd: []string{
			"Line console ready.",
			"Commands are one line, terminated by carriage return.",
			"Ctrl-D on an empty line repeats the previous command.",
		},
	}
}

// BannerView renders the connect banner. It ends with a newline so the first
// prompt starts on a fresh line.
func (m Model) BannerView() string {
	head := fmt.Sprintf("CONSOLE TERMINAL %s // USER: %s", m.version, m.user)
	lines := []string{
		m.styles.Banner.Render(head, m.profile),
		bannerRule,
		fmt.Sprintf("OBSERVER: [%s]", m.observerHash),
	}
	for _, line := range m.motd {
		lines = append(lines, m.styles.Response.Render(line, m.profile))
	}
	lines = append(lines, "", `Type "help" for a list of commands.`, "")
	return strings.Join(lines, "\n")
}

// StatusView renders a one-line session summary, used by diagnostics output.
func (m Model) StatusView(handlerCount int) string {
	s := fmt.Sprintf("user=%s observer=%s commands=%d", m.user, m.observerHash, handlerCount)
	return m.styles.Status.Render(s, m.profile)
}

// WarningView styles an operator-facing warning line.
func (m Model) WarningView(text string) string {
	return m.styles.Warning.Render(text, m.profile)
}

func deriveObserverHash(remoteAddr string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(remoteAddr)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:12]
}
