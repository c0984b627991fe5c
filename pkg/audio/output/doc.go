// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the oto device sink and a discarding sink
// Package output provides audio.Sink implementations.
//
// Oto plays through the system audio device. Discard accepts frames without
// any device and is used for headless receivers.
//
// Example:
//
//	sink, err := output.NewOto(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16})
//	err = sink.Play(frame)
//	err = sink.Release()
package output
