package server

import (
	"io"
	"sync"
)

const streamBufferBytes = 1024

// sessionStream adapts a blocking session reader/writer to the console's
// non-blocking Stream contract. A pump goroutine owns the session's read side
// and queues bytes; Available and ReadByte never block.
type sessionStream struct {
	rw       io.ReadWriter
	data     chan byte
	ready    chan struct{}
	done     chan struct{}
	quit     chan struct{}
	pumpDone chan struct{}

	mu       sync.Mutex
	err      error
	quitOnce sync.Once
}

func newSessionStream(rw io.ReadWriter) *sessionStream {
	s := &sessionStream{
		rw:       rw,
		data:     make(chan byte, streamBufferBytes),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *sessionStream) pump() {
	defer close(s.pumpDone)
	buf := make([]byte, 256)
	for {
		n, err := s.rw.Read(buf)
		for i := 0; i < n; i++ {
			// The consumer may be gone with the queue full; quit is the
			// pump's way out of an otherwise permanent blocked send.
			select {
			case s.data <- buf[i]:
			case <-s.quit:
				return
			}
		}
		if n > 0 {
			s.kick()
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			close(s.done)
			s.kick()
			return
		}
	}
}

// shutdown releases the pump goroutine once the session stops consuming.
// Queued bytes are abandoned.
func (s *sessionStream) shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *sessionStream) kick() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready signals that new input (or stream teardown) arrived since the last
// poll, so the embedding loop can sleep between Run calls without burning CPU.
func (s *sessionStream) Ready() <-chan struct{} { return s.ready }

func (s *sessionStream) Available() bool {
	if len(s.data) > 0 {
		return true
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *sessionStream) ReadByte() (byte, error) {
	select {
	case b := <-s.data:
		return b, nil
	default:
	}
	select {
	case <-s.done:
		return 0, s.readErr()
	default:
		return 0, io.ErrNoProgress
	}
}

func (s *sessionStream) Write(p []byte) (int, error) {
	return s.rw.Write(p)
}

func (s *sessionStream) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return io.EOF
	}
	return s.err
}
