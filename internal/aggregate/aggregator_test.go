package aggregate

import (
	"fmt"
	"sync"
	"testing"

	"querydeck/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slots(ids ...string) []query.Slot {
	out := make([]query.Slot, len(ids))
	for i, id := range ids {
		out[i] = query.Slot{ID: query.SlotID(id), Provider: query.NewProvider(id)}
	}
	return out
}

func TestResetSetsEverySlotPending(t *testing.T) {
	agg := New()
	gen := agg.Reset(slots("anthropic", "openai", "gemini"))

	snap := agg.Snapshot()
	assert.Equal(t, gen, snap.Generation)
	require.Len(t, snap.Slots, 3)
	for _, st := range snap.Slots {
		assert.Equal(t, query.StatePending, st.Result.State)
	}
	assert.Equal(t, "OpenAI", snap.Slots[1].Label)
	assert.False(t, snap.Done())
}

func TestSettleOncePerGeneration(t *testing.T) {
	agg := New()
	gen := agg.Reset(slots("a", "b"))

	assert.True(t, agg.Settle(gen, "a", query.Succeeded("first")))
	assert.False(t, agg.Settle(gen, "a", query.Failed("second")))
	assert.False(t, agg.Settle(gen, "missing", query.Succeeded("x")))
	assert.False(t, agg.Settle(gen, "b", query.Pending()))

	snap := agg.Snapshot()
	st, ok := snap.Slot("a")
	require.True(t, ok)
	assert.Equal(t, "first", st.Result.Text)
	assert.Equal(t, 1, snap.Settled)
}

func TestStaleResultDoesNotOverwriteNewRound(t *testing.T) {
	agg := New()
	genA := agg.Reset(slots("slot-1", "slot-2"))
	genB := agg.Reset(slots("slot-1", "slot-2"))
	require.NotEqual(t, genA, genB)

	assert.False(t, agg.Settle(genA, "slot-1", query.Succeeded("from A")))
	st, _ := agg.Snapshot().Slot("slot-1")
	assert.Equal(t, query.StatePending, st.Result.State)

	require.True(t, agg.Settle(genB, "slot-1", query.Succeeded("from B")))
	assert.False(t, agg.Settle(genA, "slot-1", query.Failed("late A")))
	st, _ = agg.Snapshot().Slot("slot-1")
	assert.Equal(t, "from B", st.Result.Text)
}

func TestFailureDoesNotTouchOtherSlots(t *testing.T) {
	agg := New()
	gen := agg.Reset(slots("a", "b", "c"))
	require.True(t, agg.Settle(gen, "a", query.Succeeded("A")))
	require.True(t, agg.Settle(gen, "b", query.Failed("boom")))

	snap := agg.Snapshot()
	a, _ := snap.Slot("a")
	c, _ := snap.Slot("c")
	assert.Equal(t, query.Succeeded("A"), a.Result)
	assert.Equal(t, query.Pending(), c.Result)
}

func TestListenersSeeEveryChangeInOrder(t *testing.T) {
	agg := New()
	var events []Event
	cancel := agg.Subscribe(func(e Event) { events = append(events, e) })

	gen := agg.Reset(slots("a", "b"))
	agg.Settle(gen, "b", query.Failed("x"))
	agg.Settle(gen, "a", query.Succeeded("y"))
	agg.Settle(gen, "a", query.Succeeded("dup"))

	require.Len(t, events, 3)
	assert.Equal(t, EventReset, events[0].Kind)
	assert.Equal(t, query.SlotID("b"), events[1].Slot.ID)
	assert.Equal(t, query.SlotID("a"), events[2].Slot.ID)
	assert.True(t, events[2].Snapshot.Done())

	cancel()
	cancel()
	agg.Reset(slots("a"))
	assert.Len(t, events, 3)
}

func TestListenerPanicIsContained(t *testing.T) {
	agg := New()
	agg.Subscribe(func(Event) { panic("bad renderer") })
	var seen int
	agg.Subscribe(func(Event) { seen++ })

	gen := agg.Reset(slots("a"))
	assert.True(t, agg.Settle(gen, "a", query.Succeeded("ok")))
	assert.Equal(t, 2, seen)
}

func TestConcurrentSettlement(t *testing.T) {
	agg := New()
	ids := make([]string, 32)
	for i := range ids {
		ids[i] = fmt.Sprintf("slot-%d", i)
	}
	gen := agg.Reset(slots(ids...))

	var accepted sync.Map
	var wg sync.WaitGroup
	for _, id := range ids {
		for attempt := 0; attempt < 3; attempt++ {
			wg.Add(1)
			go func(id string, attempt int) {
				defer wg.Done()
				if agg.Settle(gen, query.SlotID(id), query.Succeeded(id)) {
					_, loaded := accepted.LoadOrStore(id, attempt)
					assert.False(t, loaded, "slot %s accepted twice", id)
				}
			}(id, attempt)
		}
	}
	wg.Wait()

	snap := agg.Snapshot()
	assert.True(t, snap.Done())
	assert.Equal(t, len(ids), snap.Settled)
}
