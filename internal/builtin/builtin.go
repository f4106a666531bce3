// Package builtin carries the stock command set every console session starts
// with. Commands are described as definitions so transports can render help
// and register handlers from the same catalog.
package builtin

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"console-terminal/internal/console"
)

// Definition describes one command: its name, how to invoke it, and the
// handler that services it.
type Definition struct {
	Name        string
	Usage       string
	Description string
	Handler     console.Handler
}

// Info is the per-session context the stock commands close over.
type Info struct {
	User      string
	Version   string
	StartedAt time.Time
	Now       func() time.Time
}

// Catalog builds the stock definitions for one session. The help text is
// derived from the catalog itself, so commands added here show up without
// further wiring.
func Catalog(info Info) []Definition {
	if info.Now == nil {
		info.Now = time.Now
	}

	var defs []Definition
	help := func(_ console.Args, _ io.Writer) string {
		return helpText(defs)
	}

	defs = []Definition{
		{
			Name:        "help",
			Usage:       "help",
			Description: "Display this text.",
			Handler:     help,
		},
		{
			Name:        "h",
			Usage:       "h",
			Description: "Same as help.",
			Handler:     help,
		},
		{
			Name:        "maxcmds",
			Usage:       "maxcmds",
			Description: "Display the maximum number of commands.",
			Handler: func(console.Args, io.Writer) string {
				return fmt.Sprintf("The maximum number of commands currently supported is %d.\n", console.MaxHandlers)
			},
		},
		{
			Name:        "echo",
			Usage:       "echo <int>",
			Description: "Echo the integer given as the first parameter.",
			Handler:     echoHandler,
		},
		{
			Name:        "whoami",
			Usage:       "whoami",
			Description: "Display the authenticated session user.",
			Handler: func(console.Args, io.Writer) string {
				return info.User + "\n"
			},
		},
		{
			Name:        "uptime",
			Usage:       "uptime",
			Description: "Display how long this session has been connected.",
			Handler: func(console.Args, io.Writer) string {
				elapsed := info.Now().Sub(info.StartedAt).Round(time.Second)
				return fmt.Sprintf("up %s\n", elapsed)
			},
		},
		{
			Name:        "version",
			Usage:       "version",
			Description: "Display the server version.",
			Handler: func(console.Args, io.Writer) string {
				return info.Version + "\n"
			},
		},
	}
	return defs
}

// Install registers every definition on the console in catalog order. It
// reports false as soon as the command table runs out of slots.
func Install(c *console.Console, defs []Definition) bool {
	for _, def := range defs {
		if !c.Register(def.Name, def.Handler) {
			return false
		}
	}
	return true
}

// Missing or malformed parameters are the handler's problem, not the
// dispatcher's: the core only promises an empty word for absent arguments.
func echoHandler(args console.Args, _ io.Writer) string {
	word := args.Word(1)
	if word == "" {
		return "Expected an integer to echo; got nothing.\n"
	}
	n, err := strconv.Atoi(word)
	if err != nil {
		return fmt.Sprintf("Expected an integer to echo; got %q.\n", word)
	}
	return fmt.Sprintf("The echo command received %d.\n", n)
}

func helpText(defs []Definition) string {
	rows := make([]Definition, len(defs))
	copy(rows, defs)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	width := len("Command")
	for _, def := range rows {
		if len(def.Usage) > width {
			width = len(def.Usage)
		}
	}

	var b strings.Builder
	b.WriteString("Command")
	b.WriteString(strings.Repeat(" ", width-len("Command")+2))
	b.WriteString("Function\n")
	b.WriteString(strings.Repeat("=", width))
	b.WriteString("  ")
	b.WriteString(strings.Repeat("=", 48))
	b.WriteString("\n")
	for _, def := range rows {
		b.WriteString(def.Usage)
		b.WriteString(strings.Repeat(" ", width-len(def.Usage)+2))
		b.WriteString(def.Description)
		b.WriteString("\n")
	}
	return b.String()
}
