// Package synth defines the text-to-speech collaborator the worker
// layer calls per task item, and a bounded pool that bridges the
// workers' per-task goroutines to a fixed amount of concurrent
// synthesis work.
package synth

import (
	"context"
	"errors"
)

// Synthesizer turns text into WAV-encoded audio for a given voice. It is
// the only capability the worker layer depends on; voice catalogs,
// model loading and waveform generation are entirely its concern.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

var (
	// ErrVoiceNotFound is returned when voiceID does not match any known voice.
	ErrVoiceNotFound = errors.New("synth: voice not found")
	// ErrTimeout is returned when ctx's deadline elapses before synthesis completes.
	ErrTimeout = errors.New("synth: generation timed out")
	// ErrGeneration is returned for any other synthesis failure.
	ErrGeneration = errors.New("synth: generation failed")
)
