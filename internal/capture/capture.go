// Package capture records raw Dash datagrams to disk and reads them back.
//
// A capture file is the plain concatenation of FrameSize-byte datagrams with
// no header or framing, so files recorded by other tools can be replayed
// directly.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/banshee-data/laptime.report/internal/telemetry"
)

// FileExtension is the conventional extension for capture files.
const FileExtension = ".bin"

var (
	// ErrFrameSize is returned when a frame is not exactly FrameSize bytes.
	ErrFrameSize = errors.New("capture: frame is not a Dash frame")
	// ErrTruncated is returned when a file ends part way through a frame.
	ErrTruncated = errors.New("capture: truncated frame")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("capture: writer is closed")
)

// Writer appends frames to a capture file.
type Writer struct {
	path string

	mu         sync.Mutex
	file       *os.File
	buf        *bufio.Writer
	frameCount uint64
	closed     bool
}

// Create opens path for appending, creating it if needed.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	return &Writer{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, 64*telemetry.FrameSize),
	}, nil
}

// WriteFrame appends one frame.
func (w *Writer) WriteFrame(frame []byte) error {
	if len(frame) != telemetry.FrameSize {
		return fmt.Errorf("%w: got %d bytes", ErrFrameSize, len(frame))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, err := w.buf.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	w.frameCount++
	return nil
}

// Flush writes buffered frames to the file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.buf.Flush()
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush capture file: %w", flushErr)
	}
	return closeErr
}

// Path returns the file being written.
func (w *Writer) Path() string {
	return w.path
}

// FrameCount returns the number of frames written.
func (w *Writer) FrameCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frameCount
}

// Reader yields frames from a capture stream in order.
type Reader struct {
	r     *bufio.Reader
	frame []byte
	read  uint64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:     bufio.NewReaderSize(r, 64*telemetry.FrameSize),
		frame: make([]byte, telemetry.FrameSize),
	}
}

// Next returns the next frame. The slice is reused by the following call.
// It returns io.EOF after the last complete frame and ErrTruncated when the
// stream ends inside a frame.
func (r *Reader) Next() ([]byte, error) {
	_, err := io.ReadFull(r.r, r.frame)
	switch {
	case err == nil:
		r.read++
		return r.frame, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w after %d frames", ErrTruncated, r.read)
	default:
		return nil, err
	}
}

// FramesRead returns the number of complete frames returned so far.
func (r *Reader) FramesRead() uint64 {
	return r.read
}

// ReadFile loads every frame in path. A truncated tail is reported together
// with the frames that preceded it.
func ReadFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()

	var frames [][]byte
	r := NewReader(f)
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, append([]byte(nil), frame...))
	}
}
