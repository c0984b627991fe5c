// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts 16-bit PCM streams between sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation on 16-bit little-endian interleaved frames.
// Handles both upsampling and downsampling.
//
// Example:
//
//	r, _ := resample.New(44100, 48000, 2)
//	out := r.Process(frame)
package resample
