// Package audio groups the audio sub-packages used for session recordings:
//
//   - pcm: the 24 kHz mono 16-bit format spoken by the realtime endpoint
//   - wav: streaming RIFF/WAVE writer and reader for that format
package audio
