package synth

import "context"

// Pool wraps a Synthesizer with a buffered-channel semaphore, bounding
// how many Synthesize calls run concurrently regardless of how many
// worker goroutines are calling in. This is independent of the task-
// level batch size: a worker can dequeue a large batch while synthesis
// itself stays capped at a small, fixed concurrency.
type Pool struct {
	engine Synthesizer
	sem    chan struct{}
}

// NewPool builds a Pool with maxWorkers concurrent Synthesize slots.
func NewPool(engine Synthesizer, maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Pool{
		engine: engine,
		sem:    make(chan struct{}, maxWorkers),
	}
}

// Synthesize acquires a slot, delegates to the wrapped engine, and
// releases the slot. It blocks until a slot is free or ctx is done.
func (p *Pool) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	return p.engine.Synthesize(ctx, text, voiceID)
}
