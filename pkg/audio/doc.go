// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, the Source/Sink collaborators and sample conversion
// Package audio provides the PCM types shared by sources, sinks and sessions.
//
//   - Format: sample rate, channel count and bit depth of a PCM stream
//   - Source: decodes an input into a sequence of PCM frames
//   - Sink: renders PCM frames to an output device
//
// Frames are interleaved signed little-endian samples. Every bundled source
// produces 16-bit frames.
//
// Example:
//
//	format := audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
//	frame := make([]byte, format.ChunkBytes(20*time.Millisecond))
package audio
