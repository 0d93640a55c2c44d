package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultReadTimeout is used by ReadLine when no timeout is given.
const DefaultReadTimeout = 5 * time.Second

const readChunkSize = 512

// Transport frames a byte stream into newline terminated lines.
//
// A background goroutine reads from the stream; ReadLine consumes what it
// delivers. Bytes after the last newline stay buffered for the next call.
// Only one goroutine may read at a time.
type Transport struct {
	rw     io.ReadWriteCloser
	logger Logger

	mu  sync.Mutex // serializes readers, guards buf
	buf []byte

	writeMu sync.Mutex

	chunks  chan []byte
	eof     chan struct{} // closed when the read loop exits
	readErr error         // valid after eof is closed

	closeOnce sync.Once
	closed    chan struct{}
}

// NewTransport starts reading from rw. The transport owns rw and closes it on
// Close. logger may be nil.
func NewTransport(rw io.ReadWriteCloser, logger Logger) *Transport {
	if logger == nil {
		logger = nopLogger{}
	}
	t := &Transport{
		rw:     rw,
		logger: logger,
		chunks: make(chan []byte),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	defer close(t.eof)
	for {
		p := make([]byte, readChunkSize)
		n, err := t.rw.Read(p)
		if n > 0 {
			select {
			case t.chunks <- p[:n]:
			case <-t.closed:
				return
			}
		}
		if err != nil {
			t.readErr = err
			return
		}
	}
}

// ReadLine returns the next line without its terminator and surrounding
// whitespace. It fails with *TimeoutError if no newline arrives within
// timeout and with ErrStreamClosed if the stream ends or the transport is
// closed first.
func (t *Transport) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if i := bytes.IndexByte(t.buf, '\n'); i >= 0 {
			line := string(bytes.TrimSpace(t.buf[:i]))
			t.buf = t.buf[i+1:]
			return line, nil
		}

		select {
		case chunk := <-t.chunks:
			t.buf = append(t.buf, chunk...)
		case <-t.eof:
			return "", t.closedError()
		case <-t.closed:
			return "", ErrStreamClosed
		case <-timer.C:
			return "", &TimeoutError{After: timeout}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (t *Transport) closedError() error {
	if t.readErr == nil || errors.Is(t.readErr, io.EOF) {
		return ErrStreamClosed
	}
	return fmt.Errorf("%w: %v", ErrStreamClosed, t.readErr)
}

// WriteLine writes s followed by a single '\n'.
func (t *Transport) WriteLine(s string) error {
	return t.write([]byte(s + "\n"))
}

// WriteRaw writes p unmodified.
func (t *Transport) WriteRaw(p []byte) error {
	return t.write(p)
}

func (t *Transport) write(p []byte) error {
	select {
	case <-t.closed:
		return ErrNotConnected
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	for len(p) > 0 {
		n, err := t.rw.Write(p)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Discard drops buffered input, including bytes still queued in the OS
// driver when the stream supports it.
func (t *Transport) Discard() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := len(t.buf)
	t.buf = nil
drain:
	for {
		select {
		case chunk := <-t.chunks:
			dropped += len(chunk)
		default:
			break drain
		}
	}
	if dropped > 0 {
		t.logger.Debug("discarded stale input", "bytes", dropped)
	}

	if r, ok := t.rw.(interface{ ResetInputBuffer() error }); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return fmt.Errorf("reset input buffer: %w", err)
		}
	}
	return nil
}

// Close releases the stream and clears the buffer. It is safe to call more
// than once; errors are logged, not returned.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		if err := t.rw.Close(); err != nil {
			t.logger.Warn("closing serial stream", "error", err)
		}
	})

	t.mu.Lock()
	t.buf = nil
	t.mu.Unlock()
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}
