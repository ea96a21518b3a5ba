package connection

import "sync"

// statusHub fans state changes out to any number of watchers.
//
// The Manager is the only publisher and publishes while holding its state
// lock, so every watcher observes transitions in the order they happened.
// A slow watcher loses its oldest pending change rather than blocking the
// Manager.
type statusHub struct {
	mu       sync.Mutex
	bufSize  int
	nextID   int
	watchers map[int]chan StatusChange
	last     StatusChange
	closed   bool
}

func newStatusHub(bufSize int, initial StatusChange) *statusHub {
	if bufSize < 1 {
		bufSize = 1
	}
	return &statusHub{
		bufSize:  bufSize,
		watchers: make(map[int]chan StatusChange),
		last:     initial,
	}
}

// watch registers a watcher. The current status is delivered first.
func (h *statusHub) watch() (<-chan StatusChange, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan StatusChange, h.bufSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.watchers[id] = ch
	ch <- h.last

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.watchers[id]; ok {
				delete(h.watchers, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (h *statusHub) publish(change StatusChange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = change
	for _, ch := range h.watchers {
		select {
		case ch <- change:
		default:
			// Watcher full, drop oldest by consuming one and retrying.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

func (h *statusHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.watchers {
		delete(h.watchers, id)
		close(ch)
	}
}
