package logging

import (
	"io"
	"os"
	"sync"
)

// globalWriter is an io.Writer that delegates to an underlying writer,
// which can be swapped at runtime in a thread-safe manner.
type globalWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

// Write implements the io.Writer interface.
func (gw *globalWriter) Write(p []byte) (n int, err error) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.w.Write(p)
}

// Set changes the underlying writer and returns the previous one.
func (gw *globalWriter) Set(w io.Writer) io.Writer {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	prev := gw.w
	gw.w = w
	return prev
}

var stderrWriter = &globalWriter{w: os.Stderr}

// SetStderrOutput redirects the stderr sink of every logger, returning the previous
// destination. The OTP prompt uses it to keep log lines off the alt screen.
func SetStderrOutput(w io.Writer) io.Writer {
	return stderrWriter.Set(w)
}
