package chatclient

import (
	"sync"
	"time"
)

const typingIdle = time.Second

// TypingIndicator turns keystrokes into typing edges: true on the first
// keystroke, false once the user has been idle for the idle period.
type TypingIndicator struct {
	emit func(typing bool)
	idle time.Duration

	mu     sync.Mutex
	typing bool
	gen    uint64
	timer  *time.Timer
}

// NewTypingIndicator calls emit on every edge. emit runs without the
// indicator's lock held.
func NewTypingIndicator(emit func(typing bool)) *TypingIndicator {
	return &TypingIndicator{emit: emit, idle: typingIdle}
}

// Keystroke records activity.
func (t *TypingIndicator) Keystroke() {
	t.mu.Lock()
	rising := !t.typing
	t.typing = true
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, func() { t.expire(gen) })
	t.mu.Unlock()

	if rising {
		t.emit(true)
	}
}

func (t *TypingIndicator) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.timer = nil
	t.mu.Unlock()

	t.emit(false)
}

// Stop emits the falling edge immediately if the user was typing.
func (t *TypingIndicator) Stop() {
	t.mu.Lock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	wasTyping := t.typing
	t.typing = false
	t.mu.Unlock()

	if wasTyping {
		t.emit(false)
	}
}

func (t *TypingIndicator) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}
