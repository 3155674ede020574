// Package sse implements the server-sent events framing shared by the
// upstream relay and the chat client.
package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	// DataPrefix marks a line carrying an event payload.
	DataPrefix = "data:"

	// DefaultMaxLineSize bounds a single line when no limit is configured.
	DefaultMaxLineSize = 1 << 20

	initialBufferSize = 4 * 1024
)

// Reader pulls data payloads out of an event stream one line at a time.
// Partial lines are buffered across reads, so payloads split over several
// network chunks come out whole.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader wraps r. Lines longer than maxLineSize fail with bufio.ErrTooLong.
func NewReader(r io.Reader, maxLineSize int) *Reader {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(initialBufferSize, maxLineSize)), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the payload of the next data line, with the prefix and one
// optional leading space removed. Other lines (event names, ids, comments,
// blank separators) are skipped. It returns io.EOF when the stream ends cleanly.
func (r *Reader) Next() (string, error) {
	for r.sc.Scan() {
		if payload, ok := Payload(r.sc.Text()); ok {
			return payload, nil
		}
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Payload extracts the data from a single line.
func Payload(line string) (string, bool) {
	if !strings.HasPrefix(line, DataPrefix) {
		return "", false
	}
	payload := strings.TrimPrefix(line, DataPrefix)
	return strings.TrimPrefix(payload, " "), true
}
