// Package wav writes and reads RIFF/WAVE containers holding raw PCM audio.
//
// The writer streams: the header is written up front with placeholder sizes
// and every Write goes straight to the underlying writer. Close patches the
// RIFF and data sizes when the destination is seekable (an *os.File, for
// instance). Non-seekable destinations keep the 0xFFFFFFFF streaming
// placeholders, which common decoders read as "until end of stream".
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/haivivi/duet/pkg/audio/pcm"
)

const (
	headerSize     = 44
	fmtChunkSize   = 16
	formatPCM      = 1
	riffSizeOffset = 4
	dataSizeOffset = 40

	// riffOverhead is the RIFF chunk size minus the data length.
	riffOverhead = headerSize - 8

	streamingSize = math.MaxUint32
)

var (
	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("wav: writer closed")

	// ErrTooLarge is returned when the data would overflow the 32-bit size fields.
	ErrTooLarge = errors.New("wav: data exceeds 4 GiB")
)

// Writer streams PCM data into a WAV container.
// It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	format pcm.Format
	n      int64
	closed bool
}

// NewWriter writes a WAV header for format f to w and returns a Writer that
// appends PCM data after it.
func NewWriter(w io.Writer, f pcm.Format) (*Writer, error) {
	if w == nil {
		return nil, errors.New("wav: nil writer")
	}
	if _, err := w.Write(header(f, streamingSize)); err != nil {
		return nil, fmt.Errorf("wav: write header: %w", err)
	}
	return &Writer{w: w, format: f}, nil
}

// Write appends raw PCM bytes.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if w.n+int64(len(p)) > math.MaxUint32-riffOverhead {
		return 0, ErrTooLarge
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	return n, err
}

// Len returns the number of PCM bytes written so far.
func (w *Writer) Len() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Format returns the PCM format of the container.
func (w *Writer) Format() pcm.Format {
	return w.format
}

// Close finalizes the header sizes (when the destination is seekable) and
// closes the destination if it implements io.Closer. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if ws, ok := w.w.(io.WriteSeeker); ok {
		errs = append(errs, patchSizes(ws, uint32(w.n)))
	}
	if c, ok := w.w.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func patchSizes(ws io.WriteSeeker, dataSize uint32) error {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], riffOverhead+dataSize)
	if _, err := ws.Seek(riffSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek riff size: %w", err)
	}
	if _, err := ws.Write(b[:]); err != nil {
		return fmt.Errorf("wav: patch riff size: %w", err)
	}

	binary.LittleEndian.PutUint32(b[:], dataSize)
	if _, err := ws.Seek(dataSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek data size: %w", err)
	}
	if _, err := ws.Write(b[:]); err != nil {
		return fmt.Errorf("wav: patch data size: %w", err)
	}

	if _, err := ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wav: seek end: %w", err)
	}
	return nil
}

// header builds a canonical 44-byte PCM WAV header.
func header(f pcm.Format, dataSize uint32) []byte {
	h := make([]byte, headerSize)

	riffSize := uint32(streamingSize)
	if dataSize != streamingSize {
		riffSize = riffOverhead + dataSize
	}

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], riffSize)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels()))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate()))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.BytesRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.Depth()))

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}
