package console

import (
	"fmt"
	"io"
	"strings"
)

// Args gives a handler word-level access to the line it was dispatched for.
// It is the read-only accessor surface; calling it repeatedly returns the
// same results.
type Args interface {
	// Word returns the ix-th word of the line, "" when absent. Word 0 is the
	// command name.
	Word(ix int) string
	// Line returns the whole trimmed line.
	Line() string
}

// Handler is the entry point for one command. It may write to the stream
// directly through w (interactive pass-through style), return a response
// string, or both. A returned response is written to the stream verbatim,
// with no trailing newline added.
type Handler func(args Args, w io.Writer) string

type entry struct {
	name    string
	handler Handler
}

// Register appends a handler for name at the next free table slot. It returns
// false, without mutating the table, once MaxHandlers entries exist.
//
// Registering the same name twice is allowed but the second entry is
// unreachable: lookup always takes the first match in registration order.
func (c *Console) Register(name string, handler Handler) bool {
	if len(c.table) >= MaxHandlers {
		return false
	}
	c.table = append(c.table, entry{name: name, handler: handler})
	return true
}

// RegisterDefault replaces the handler invoked for unrecognized commands.
// Passing nil disables default handling entirely.
func (c *Console) RegisterDefault(handler Handler) {
	c.defaultHandler = handler
}

// HandlerCount reports how many command handlers are registered.
func (c *Console) HandlerCount() int {
	return len(c.table)
}

// HandlerFor returns the handler that a line starting with name would
// dispatch to: the first table match, or the default handler when nothing
// matches. Callers routing commands through another transport can invoke the
// result with ParseLine output.
func (c *Console) HandlerFor(name string) Handler {
	for _, e := range c.table {
		if e.name == name {
			return e.handler
		}
	}
	return c.defaultHandler
}

// dispatch routes the just-terminated line. Blank lines are ignored; an
// unmatched command goes to the default handler, which may be nil.
func (c *Console) dispatch() {
	c.line = []byte(strings.Trim(string(c.line), " "))
	cmd := c.Word(0)
	if cmd == "" {
		return
	}
	handler := c.HandlerFor(cmd)
	if handler == nil {
		return
	}
	if response := handler(c, c.stream); response != "" {
		_, _ = io.WriteString(c.stream, response)
	}
}

// ParseLine wraps a raw line in an Args accessor with the same trimming and
// word-splitting rules the editor applies, for transports that bypass the
// byte-level state machine.
func ParseLine(raw string) Args {
	return lineArgs(strings.Trim(raw, " "))
}

type lineArgs string

func (l lineArgs) Word(ix int) string { return wordAt(string(l), ix) }
func (l lineArgs) Line() string       { return string(l) }

// UnrecognizedHandler is the built-in default handler: it names the offending
// command and moves on.
func UnrecognizedHandler(args Args, _ io.Writer) string {
	return fmt.Sprintf("Unknown command %q.\n", args.Word(0))
}
