package synth

import (
	"context"
	"sync"
)

// MockEngine is a Synthesizer test double whose behavior per voice is
// configurable via Handlers, falling back to returning a small fixed
// payload for any voice not listed there.
type MockEngine struct {
	mu       sync.Mutex
	Handlers map[string]func(ctx context.Context, text string) ([]byte, error)
	Calls    []string
}

func NewMockEngine() *MockEngine {
	return &MockEngine{Handlers: map[string]func(ctx context.Context, text string) ([]byte, error){}}
}

func (m *MockEngine) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, voiceID)
	handler, ok := m.Handlers[voiceID]
	m.mu.Unlock()

	if ok {
		return handler(ctx, text)
	}

	select {
	case <-ctx.Done():
		return nil, ErrTimeout
	default:
	}
	return []byte("RIFF....WAVEfmt "), nil
}
