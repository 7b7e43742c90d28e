package qscratch

import "sync"

// Live is the set of run ids whose areas are in use. The janitor never
// removes a live area, however old it looks.
type Live struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewLive() *Live {
	return &Live{ids: map[string]struct{}{}}
}

// Add marks id as in use. Call it before the area is created.
func (l *Live) Add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[id] = struct{}{}
}

// Done releases id once its area has been removed.
func (l *Live) Done(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.ids, id)
}

func (l *Live) Has(id string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// Len reports how many runs are in flight.
func (l *Live) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
