package server

import (
	"fmt"
	"io"
	"log"
	"os/exec"

	"github.com/charmbracelet/ssh"
	"github.com/creack/pty"

	"console-terminal/internal/builtin"
	"console-terminal/internal/console"
)

// shellDefinition is the interactive pass-through command: it splices the
// session's byte stream to a local program on a pty. It uses the raw stream
// capability of the handler contract rather than the response string, since
// output must flow while the command is still running.
func shellDefinition(command string, stream *sessionStream, sessPty ssh.Pty) builtin.Definition {
	return builtin.Definition{
		Name:        "shell",
		Usage:       "shell",
		Description: "Start an interactive local shell (pass-through).",
		Handler: func(_ console.Args, w io.Writer) string {
			if err := runPassthrough(command, stream, sessPty, w); err != nil {
				return fmt.Sprintf("shell failed: %v\n", err)
			}
			return "shell exited\n"
		},
	}
}

func runPassthrough(command string, stream *sessionStream, sessPty ssh.Pty, w io.Writer) error {
	cmd := exec.Command(command)
	cmd.Env = append(cmd.Environ(), "TERM="+sessPty.Term)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ptmx.Close() }()

	if sessPty.Window.Width > 0 && sessPty.Window.Height > 0 {
		size := &pty.Winsize{Cols: uint16(sessPty.Window.Width), Rows: uint16(sessPty.Window.Height)}
		if err := pty.Setsize(ptmx, size); err != nil {
			log.Printf("level=warn event=passthrough_resize_failed error=%v", err)
		}
	}

	// Feed session input to the child until it exits. The forwarder never
	// blocks inside a stream read, so it can be stopped the moment the child
	// is gone without waiting for (or swallowing) one more keystroke; unread
	// bytes stay queued for the console.
	quit := make(chan struct{})
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		forwardInput(stream, ptmx, quit)
	}()

	_, _ = io.Copy(w, ptmx)
	err = cmd.Wait()
	_ = ptmx.Close()
	close(quit)
	<-inputDone
	if err != nil {
		return err
	}
	return nil
}

// forwardInput drains available stream bytes into dst, sleeping on the
// stream's readiness signal in between, until quit closes or either side
// fails.
func forwardInput(stream *sessionStream, dst io.Writer, quit <-chan struct{}) {
	for {
		for stream.Available() {
			b, err := stream.ReadByte()
			if err != nil {
				return
			}
			if _, err := dst.Write([]byte{b}); err != nil {
				return
			}
		}
		select {
		case <-quit:
			return
		case <-stream.Ready():
		}
	}
}
