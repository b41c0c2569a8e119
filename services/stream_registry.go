package services

import (
	"context"
	"log"
	"sync"
)

type streamHandle struct {
	cancel context.CancelFunc
}

// StreamRegistry tracks the in-flight stream per thread. A thread carries at
// most one live stream: starting a new one cancels the previous stream's
// context so superseded relays shut down instead of leaking goroutines.
type StreamRegistry struct {
	mu      sync.Mutex
	streams map[string]*streamHandle
}

func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		streams: make(map[string]*streamHandle),
	}
}

// Begin registers a stream for threadID and returns its context plus a done
// func the caller must invoke when the stream ends. Any stream already
// registered for the thread is cancelled first.
func (r *StreamRegistry) Begin(parent context.Context, threadID string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	handle := &streamHandle{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.streams[threadID]; ok {
		log.Printf("[StreamRegistry] superseding active stream for thread %s", threadID)
		prev.cancel()
	}
	r.streams[threadID] = handle
	r.mu.Unlock()

	return ctx, func() {
		cancel()
		r.end(threadID, handle)
	}
}

// end removes the registration, but only if it still belongs to this stream;
// a superseding stream may have replaced it already.
func (r *StreamRegistry) end(threadID string, owned *streamHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.streams[threadID]; ok && current == owned {
		delete(r.streams, threadID)
	}
}

// CancelAll stops every live stream; used during shutdown.
func (r *StreamRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for threadID, handle := range r.streams {
		handle.cancel()
		delete(r.streams, threadID)
	}
}

// ActiveCount reports how many streams are currently registered.
func (r *StreamRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
