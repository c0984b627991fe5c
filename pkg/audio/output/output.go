// ABOUTME: Audio output backends
// ABOUTME: Selects a Sink factory by backend name
package output

import (
	"fmt"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
)

const (
	// BackendOto plays through the system audio device
	BackendOto = "oto"

	// BackendNone discards audio
	BackendNone = "none"
)

// Factory returns the SinkFactory for the named backend
func Factory(backend string) (audio.SinkFactory, error) {
	switch backend {
	case "", BackendOto:
		return NewOto, nil
	case BackendNone:
		return NewDiscard, nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s (supported: %s, %s)", backend, BackendOto, BackendNone)
	}
}
