package session

import "sync"

// UnloadPrompt is the answer to a navigation-away attempt.
type UnloadPrompt struct {
	Confirm bool   `json:"confirm"`
	Message string `json:"message,omitempty"`
}

// SignalSource delivers the client's focus and visibility transitions.
type SignalSource interface {
	OnHidden(cb func())
	OnBlur(cb func())
	OnFullscreenChange(cb func(active bool))
	OnUnloadAttempt(cb func() UnloadPrompt)
}

// SignalHub is a SignalSource fed by whoever receives the client's events,
// usually the WebSocket read loop.
type SignalHub struct {
	mu         sync.RWMutex
	hidden     []func()
	blur       []func()
	fullscreen []func(bool)
	unload     []func() UnloadPrompt
}

func NewSignalHub() *SignalHub {
	return &SignalHub{}
}

func (h *SignalHub) OnHidden(cb func()) {
	h.mu.Lock()
	h.hidden = append(h.hidden, cb)
	h.mu.Unlock()
}

func (h *SignalHub) OnBlur(cb func()) {
	h.mu.Lock()
	h.blur = append(h.blur, cb)
	h.mu.Unlock()
}

func (h *SignalHub) OnFullscreenChange(cb func(active bool)) {
	h.mu.Lock()
	h.fullscreen = append(h.fullscreen, cb)
	h.mu.Unlock()
}

func (h *SignalHub) OnUnloadAttempt(cb func() UnloadPrompt) {
	h.mu.Lock()
	h.unload = append(h.unload, cb)
	h.mu.Unlock()
}

func (h *SignalHub) EmitHidden() {
	h.mu.RLock()
	cbs := append([]func(){}, h.hidden...)
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb()
	}
}

func (h *SignalHub) EmitBlur() {
	h.mu.RLock()
	cbs := append([]func(){}, h.blur...)
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb()
	}
}

func (h *SignalHub) EmitFullscreenChange(active bool) {
	h.mu.RLock()
	cbs := append([]func(bool){}, h.fullscreen...)
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(active)
	}
}

// EmitUnloadAttempt returns the first prompt asking for confirmation, if any.
func (h *SignalHub) EmitUnloadAttempt() UnloadPrompt {
	h.mu.RLock()
	cbs := append([]func() UnloadPrompt{}, h.unload...)
	h.mu.RUnlock()
	for _, cb := range cbs {
		if p := cb(); p.Confirm {
			return p
		}
	}
	return UnloadPrompt{}
}
