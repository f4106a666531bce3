package server

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// chunkReadWriter scripts the blocking side of the adapter: Read hands out
// queued chunks and blocks in between, like a live session.
type chunkReadWriter struct {
	chunks chan []byte

	mu     sync.Mutex
	writes bytes.Buffer
}

func newChunkReadWriter() *chunkReadWriter {
	return &chunkReadWriter{chunks: make(chan []byte, 8)}
}

func (c *chunkReadWriter) feed(data string) { c.chunks <- []byte(data) }
func (c *chunkReadWriter) closeInput()      { close(c.chunks) }

func (c *chunkReadWriter) Read(p []byte) (int, error) {
	chunk, ok := <-c.chunks
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (c *chunkReadWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes.Write(p)
}

func (c *chunkReadWriter) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes.String()
}

func waitReady(t *testing.T, s *sessionStream) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream readiness")
	}
}

func TestSessionStreamDeliversBytesInOrder(t *testing.T) {
	rw := newChunkReadWriter()
	s := newSessionStream(rw)
	defer rw.closeInput()

	rw.feed("ab")
	waitReady(t, s)

	if !s.Available() {
		t.Fatal("expected Available after input arrived")
	}
	for _, want := range []byte{'a', 'b'} {
		b, err := s.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte: %v", err)
		}
		if b != want {
			t.Fatalf("ReadByte = %q, want %q", b, want)
		}
	}

	if s.Available() {
		t.Fatal("expected drained stream to report no input")
	}
	if _, err := s.ReadByte(); !errors.Is(err, io.ErrNoProgress) {
		t.Fatalf("ReadByte on drained stream = %v, want ErrNoProgress", err)
	}
}

func TestSessionStreamReportsEOFAfterClose(t *testing.T) {
	rw := newChunkReadWriter()
	s := newSessionStream(rw)

	rw.closeInput()
	waitReady(t, s)

	if !s.Available() {
		t.Fatal("teardown should count as pending input so the console observes it")
	}
	if _, err := s.ReadByte(); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadByte after close = %v, want EOF", err)
	}
}

func TestSessionStreamDrainsQueuedBytesBeforeEOF(t *testing.T) {
	rw := newChunkReadWriter()
	s := newSessionStream(rw)

	rw.feed("x")
	rw.closeInput()
	waitReady(t, s)

	// Give the pump a moment to observe EOF after queuing the byte.
	deadline := time.Now().Add(2 * time.Second)
	for !s.Available() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	b, err := s.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if b != 'x' {
		t.Fatalf("ReadByte = %q, want %q", b, byte('x'))
	}
}

func TestSessionStreamShutdownUnblocksFullPump(t *testing.T) {
	rw := newChunkReadWriter()
	s := newSessionStream(rw)
	defer rw.closeInput()

	// Overfill the queue so the pump ends up parked on a blocked send.
	chunk := strings.Repeat("a", 256)
	for i := 0; i < 6; i++ {
		rw.feed(chunk)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(s.data) < streamBufferBytes && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(s.data) < streamBufferBytes {
		t.Fatal("pump never filled the queue")
	}

	s.shutdown()
	select {
	case <-s.pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("pump still blocked after shutdown")
	}
}

func TestSessionStreamWritePassesThrough(t *testing.T) {
	rw := newChunkReadWriter()
	s := newSessionStream(rw)
	defer rw.closeInput()

	if _, err := s.Write([]byte("pong")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rw.output() != "pong" {
		t.Fatalf("underlying writer got %q, want %q", rw.output(), "pong")
	}
}
