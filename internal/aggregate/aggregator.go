// Package aggregate keeps the current result of every slot and tells
// subscribers about each change as it happens.
package aggregate

import (
	"sort"
	"sync"

	"querydeck/internal/logger"
	"querydeck/internal/query"
)

// Generation identifies one submission round. Results carrying an older
// generation than the aggregator's are stale and dropped.
type Generation uint64

// SlotState is one slot as renderers see it.
type SlotState struct {
	ID     query.SlotID
	Label  string
	Result query.Result
}

// Snapshot is a copy of the aggregator state; callers may keep it.
type Snapshot struct {
	Generation Generation
	Slots      []SlotState
	Settled    int
}

// Done reports whether every slot of the round has settled.
func (s Snapshot) Done() bool {
	return s.Settled == len(s.Slots)
}

// Slot looks a slot up by id.
func (s Snapshot) Slot(id query.SlotID) (SlotState, bool) {
	for _, st := range s.Slots {
		if st.ID == id {
			return st, true
		}
	}
	return SlotState{}, false
}

type EventKind int

const (
	EventReset EventKind = iota
	EventSettled
)

// Event describes one accepted change. Slot is empty for resets.
type Event struct {
	Kind       EventKind
	Generation Generation
	Slot       SlotState
	Snapshot   Snapshot
}

// Listener is invoked synchronously, in change order. It must not call Reset
// or Settle.
type Listener func(Event)

// Aggregator owns the per-slot results. It is safe for concurrent use.
type Aggregator struct {
	// notifyMu serializes mutate+notify so listeners observe changes in order.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	gen       Generation
	order     []query.SlotID
	slots     map[query.SlotID]SlotState
	settled   int
	listeners map[int]Listener
	nextID    int
}

func New() *Aggregator {
	return &Aggregator{
		slots:     make(map[query.SlotID]SlotState),
		listeners: make(map[int]Listener),
	}
}

// Reset starts a new round: every listed slot becomes pending, slots not listed
// are dropped, and the generation advances. It returns the new generation.
func (a *Aggregator) Reset(slots []query.Slot) Generation {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	a.gen++
	a.order = make([]query.SlotID, 0, len(slots))
	a.slots = make(map[query.SlotID]SlotState, len(slots))
	a.settled = 0
	for _, s := range slots {
		if _, dup := a.slots[s.ID]; dup {
			continue
		}
		a.order = append(a.order, s.ID)
		a.slots[s.ID] = SlotState{ID: s.ID, Label: s.Label(), Result: query.Pending()}
	}
	gen := a.gen
	snap := a.snapshotLocked()
	listeners := a.listenersLocked()
	a.mu.Unlock()

	logger.Debugf("aggregator reset generation=%d slots=%d", gen, len(snap.Slots))
	emit(listeners, Event{Kind: EventReset, Generation: gen, Snapshot: snap})
	return gen
}

// Settle records the outcome of one slot. It returns false, and changes
// nothing, when gen is stale, the slot is unknown or already settled, or r is
// still pending.
func (a *Aggregator) Settle(gen Generation, id query.SlotID, r query.Result) bool {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	if gen != a.gen {
		current := a.gen
		a.mu.Unlock()
		logger.Debugf("aggregator dropped stale result slot=%s generation=%d current=%d", id, gen, current)
		return false
	}
	st, ok := a.slots[id]
	if !ok {
		a.mu.Unlock()
		logger.Warnf("aggregator dropped result for unknown slot=%s generation=%d", id, gen)
		return false
	}
	if st.Result.Settled() {
		a.mu.Unlock()
		logger.Warnf("aggregator rejected second settlement slot=%s generation=%d", id, gen)
		return false
	}
	if !r.Settled() {
		a.mu.Unlock()
		logger.Warnf("aggregator rejected pending result slot=%s generation=%d", id, gen)
		return false
	}
	st.Result = r
	a.slots[id] = st
	a.settled++
	snap := a.snapshotLocked()
	listeners := a.listenersLocked()
	a.mu.Unlock()

	emit(listeners, Event{Kind: EventSettled, Generation: gen, Slot: st, Snapshot: snap})
	return true
}

// Generation returns the current round.
func (a *Aggregator) Generation() Generation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gen
}

// Snapshot copies the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Subscribe registers l and returns a function that removes it.
func (a *Aggregator) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	a.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *Aggregator) snapshotLocked() Snapshot {
	out := Snapshot{Generation: a.gen, Settled: a.settled, Slots: make([]SlotState, 0, len(a.order))}
	for _, id := range a.order {
		out.Slots = append(out.Slots, a.slots[id])
	}
	return out
}

func (a *Aggregator) listenersLocked() []Listener {
	if len(a.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.listeners[id])
	}
	return out
}

func emit(listeners []Listener, evt Event) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("aggregator listener panic: %v", r)
				}
			}()
			l(evt)
		}()
	}
}
