package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Info describes the stream parameters found in a WAV header.
type Info struct {
	SampleRate int
	Channels   int
	Depth      int

	// Streaming reports whether the header still carries the 0xFFFFFFFF
	// placeholder sizes.
	Streaming bool
}

// ErrInvalid is returned by ReadAll when the input is not a PCM WAV stream.
var ErrInvalid = errors.New("wav: invalid container")

// ReadAll parses a canonical 44-byte-header PCM WAV stream and returns its
// parameters and PCM payload.
func ReadAll(r io.Reader) (Info, []byte, error) {
	var h [headerSize]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Info{}, nil, fmt.Errorf("%w: short header: %v", ErrInvalid, err)
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" ||
		string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		return Info{}, nil, fmt.Errorf("%w: bad chunk ids", ErrInvalid)
	}
	if binary.LittleEndian.Uint16(h[20:22]) != formatPCM {
		return Info{}, nil, fmt.Errorf("%w: not PCM", ErrInvalid)
	}

	info := Info{
		Channels:   int(binary.LittleEndian.Uint16(h[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(h[24:28])),
		Depth:      int(binary.LittleEndian.Uint16(h[34:36])),
	}

	size := binary.LittleEndian.Uint32(h[40:44])
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, nil, fmt.Errorf("wav: read data: %w", err)
	}
	if size == streamingSize {
		info.Streaming = true
		return info, data, nil
	}
	if int64(size) > int64(len(data)) {
		return Info{}, nil, fmt.Errorf("%w: data size %d exceeds payload %d", ErrInvalid, size, len(data))
	}
	return info, data[:size], nil
}
