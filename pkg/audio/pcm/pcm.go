package pcm

import "time"

const (
	// L16Mono24K represents audio/L16; rate=24000; channels=1. It is the only
	// format the realtime endpoint produces and accepts in pcm16 mode.
	L16Mono24K Format = iota
)

// Format represents an audio format configuration.
type Format int

// SampleRate returns the sample rate in Hz for this format.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono24K:
		return 24000
	}
	panic("pcm: invalid audio type")
}

// Channels returns the number of audio channels for this format.
func (f Format) Channels() int {
	switch f {
	case L16Mono24K:
		return 1
	}
	panic("pcm: invalid audio type")
}

// Depth returns the bit depth for this format.
func (f Format) Depth() int {
	switch f {
	case L16Mono24K:
		return 16
	}
	panic("pcm: invalid audio type")
}

// BlockAlign returns the number of bytes in one sample frame.
func (f Format) BlockAlign() int {
	return f.Channels() * f.Depth() / 8
}

// BytesRate returns the byte rate of the audio data.
func (f Format) BytesRate() int {
	return f.SampleRate() * f.BlockAlign()
}

// Samples returns the number of samples in the given number of bytes.
func (f Format) Samples(bytes int64) int64 {
	return bytes / int64(f.BlockAlign())
}

// BytesInDuration returns the number of bytes in the given duration.
func (f Format) BytesInDuration(d time.Duration) int64 {
	samples := int64(time.Duration(f.SampleRate()) * d / time.Second)
	return samples * int64(f.BlockAlign())
}

// Duration returns the playback duration of the given number of bytes.
func (f Format) Duration(bytes int64) time.Duration {
	return time.Duration(f.Samples(bytes)) * time.Second / time.Duration(f.SampleRate())
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	switch f {
	case L16Mono24K:
		return "audio/L16; rate=24000; channels=1"
	}
	panic("pcm: invalid audio type")
}
