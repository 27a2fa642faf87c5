// Package pcm describes the raw PCM audio format exchanged with the realtime
// endpoint.
//
// Audio payloads are treated as opaque little-endian 16-bit buffers; this
// package only provides the arithmetic needed to size and time them:
//
//	format := pcm.L16Mono24K
//
//	// Bytes needed for 20ms of audio
//	n := format.BytesInDuration(20 * time.Millisecond)
//
//	// Playback length of a payload
//	d := format.Duration(int64(len(payload)))
package pcm
