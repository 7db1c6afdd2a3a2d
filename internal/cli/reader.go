package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when the context ends before input arrives.
var ErrInputCancelled = errors.New("input canceled")

// NonBlockingReader reads terminal input without pinning the caller to a
// blocked read: cancellation returns immediately while the pending read
// finishes in the background.
type NonBlockingReader struct {
	buf *bufio.Reader
	mu  sync.Mutex
}

type readResult struct {
	err  error
	text string
}

// NewNonBlockingReader wraps in. It panics on a nil reader.
func NewNonBlockingReader(in io.Reader) *NonBlockingReader {
	if in == nil {
		panic("cli: nil reader")
	}
	return &NonBlockingReader{buf: bufio.NewReader(in)}
}

// ReadString reads through delim unless ctx ends first.
func (r *NonBlockingReader) ReadString(ctx context.Context, delim byte) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}

	done := make(chan readResult, 1)
	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		text, err := r.buf.ReadString(delim)
		done <- readResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-done:
		return res.text, res.err
	}
}

// ReadLine reads one trimmed line. A final line without a newline is
// returned as-is; io.EOF is only reported when nothing was read.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	line, err := r.ReadString(ctx, '\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
