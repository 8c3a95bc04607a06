package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fwojciec/cite"
)

// Interface compliance check.
var _ cite.Subscription = (*Reader)(nil)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("sse: reader closed")

const maxFrameSize = 1 << 20

// Reader implements [cite.Subscription] over an SSE byte stream. Each record's
// data lines, joined with newlines, form one frame. Comments, event names and
// records without data are skipped.
type Reader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool
}

// NewReader returns a Reader that consumes body. Closing the Reader closes
// body, which unblocks a pending Next.
func NewReader(body io.ReadCloser) *Reader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Reader{body: body, scanner: scanner}
}

// Next returns the data payload of the next SSE record. It returns io.EOF
// when the stream ends; an unterminated final record is discarded.
func (r *Reader) Next() ([]byte, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	var data strings.Builder
	hasData := false
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			// Empty line ends the record.
			if hasData {
				return []byte(data.String()), nil
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			// Comments (lines starting with ':') and other fields.
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimPrefix(value, " "))
		hasData = true
	}
	if err := r.scanner.Err(); err != nil {
		if r.isClosed() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("sse: %w", err)
	}
	if r.isClosed() {
		return nil, ErrClosed
	}
	// A record cut off before its blank line is dropped.
	return nil, io.EOF
}

// Close closes the underlying body. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	return r.body.Close()
}

func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
