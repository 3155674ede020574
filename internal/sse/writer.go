package sse

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// SetHeaders marks a response as a persistent, uncached event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Writer frames events onto an HTTP response and flushes after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter returns a Writer for w, or ErrStreamingUnsupported.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent writes one named event. Multi-line data is split into one
// data line per line, as the framing requires.
func (w *Writer) WriteEvent(event string, data []byte) error {
	if err := writeEvent(w.w, event, data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func writeEvent(w io.Writer, event string, data []byte) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString(DataPrefix)
		b.WriteByte(' ')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
