// Package console implements a line-oriented command interpreter over a raw
// byte stream. It accumulates keystrokes into a line buffer with terminal-like
// editing, recognizes carriage-return termination, and dispatches the finished
// line to a registered handler keyed by its first word.
//
// A Console never blocks: Run drains only the bytes the stream reports as
// currently available and returns. The embedding program is expected to call
// Run repeatedly from its own loop.
package console

import (
	"io"
	"strings"
)

const (
	// Prompt is written to the stream before each new line when echo is on.
	Prompt = "> "

	// MaxHandlers caps the command table. Registrations beyond the cap are
	// rejected with a false return.
	MaxHandlers = 16
)

// Control bytes with editing semantics. Everything else is accumulated
// verbatim.
const (
	byteBackspace = 0x08
	byteTab       = 0x09
	byteLineFeed  = 0x0a
	byteReturn    = 0x0d
	byteRecall    = 0x04 // ctrl-D: recall the previous line into an empty buffer
)

// Stream is the byte transport a Console is bound to. Available reports
// whether a byte can be read without blocking; ReadByte must only be called
// after Available returned true. Writes carry echo output, prompts, and
// handler responses.
type Stream interface {
	Available() bool
	ReadByte() (byte, error)
	io.Writer
}

// Console owns the line buffer, the editing state machine, and the command
// table. It is not safe for concurrent use; the single-threaded polling
// discipline is the caller's responsibility.
type Console struct {
	stream  Stream
	echoing bool

	line     []byte
	lastLine []byte
	newCmd   bool

	table          []entry
	defaultHandler Handler
}

// New binds a Console to its stream. With echo enabled, every accepted byte's
// visual effect is written back to the stream as it is typed.
func New(stream Stream, echo bool) *Console {
	return &Console{
		stream:         stream,
		echoing:        echo,
		newCmd:         true,
		table:          make([]entry, 0, MaxHandlers),
		defaultHandler: UnrecognizedHandler,
	}
}

// Run services the stream: it drains the currently available bytes through the
// editor and, if a carriage return arrived, dispatches the completed line
// exactly once before returning. A call that sees no terminator only buffers.
//
// Run returns the stream's read error, if any; io.EOF means the peer is gone
// and the Console should not be polled again.
func (c *Console) Run() error {
	if c.newCmd {
		if c.echoing {
			if _, err := io.WriteString(c.stream, Prompt); err != nil {
				return err
			}
		}
		c.lastLine = append(c.lastLine[:0], c.line...)
		c.line = c.line[:0]
		c.newCmd = false
	}
	for c.stream.Available() {
		b, err := c.stream.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case byteBackspace:
			if len(c.line) > 0 {
				c.line = c.line[:len(c.line)-1]
				c.echo("\b \b")
			}
		case byteReturn:
			c.echo("\n")
			c.dispatch()
			c.newCmd = true
			// Anything still buffered on the stream waits for the next call.
			return nil
		case byteLineFeed:
			// Ignored.
		case byteTab:
			c.line = append(c.line, ' ')
			c.echo(" ")
		case byteRecall:
			if len(c.line) == 0 && len(c.lastLine) != 0 {
				c.line = append(c.line, c.lastLine...)
				c.echo(string(c.line))
			}
		default:
			c.line = append(c.line, b)
			c.echo(string([]byte{b}))
		}
	}
	return nil
}

// Cancel abandons the input accumulated so far. The next Run call re-emits the
// prompt and starts a fresh line, exactly as if the user had never typed.
func (c *Console) Cancel() {
	c.newCmd = true
}

// Word returns the ix-th whitespace-delimited word of the current line, with
// word 0 being the command name. Absent words come back as "". Repeated calls
// are idempotent.
func (c *Console) Word(ix int) string {
	return wordAt(c.Line(), ix)
}

// Line returns the current line, trimmed of leading and trailing spaces.
func (c *Console) Line() string {
	return strings.Trim(string(c.line), " ")
}

func (c *Console) echo(s string) {
	if c.echoing {
		_, _ = io.WriteString(c.stream, s)
	}
}

func wordAt(line string, ix int) string {
	words := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' })
	if ix < 0 || ix >= len(words) {
		return ""
	}
	return words[ix]
}
