package dispatch

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"querydeck/internal/gateway/backend"
	"querydeck/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) QuerySingle(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) QueryMultiplexed(ctx context.Context, prompt string) (map[string]backend.Reply, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]backend.Reply), args.Error(1)
}

func (m *MockBackend) QueryProvider(ctx context.Context, provider, prompt string) (string, error) {
	args := m.Called(ctx, provider, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) QueryModel(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	args := m.Called(ctx, model, prompt, temperature)
	return args.String(0), args.Error(1)
}

func providerSlots(names ...string) []query.Slot {
	out := make([]query.Slot, len(names))
	for i, n := range names {
		out[i] = query.Slot{ID: query.SlotID(n), Provider: query.NewProvider(n)}
	}
	return out
}

func TestDispatchSingle(t *testing.T) {
	mb := new(MockBackend)
	mb.On("QuerySingle", mock.Anything, "hello").Return("hi", nil).Once()

	c := NewCollector()
	err := NewDispatcher(mb).Dispatch(context.Background(), query.Request{
		Prompt: "hello",
		Mode:   query.ModeSingle,
		Slots:  []query.Slot{{ID: query.DefaultSlotID}},
	}, c.Settle)
	require.NoError(t, err)
	assert.Equal(t, "hi", c.Results()[query.DefaultSlotID].Display())
	mb.AssertExpectations(t)
}

func TestDispatchMultiplexedDecomposes(t *testing.T) {
	mb := new(MockBackend)
	mb.On("QueryMultiplexed", mock.Anything, "hello").Return(map[string]backend.Reply{
		"anthropic": {Text: "A"},
		"openai":    {Err: &backend.ProviderError{Provider: "openai", Message: "rate limited"}},
		"gemini":    {Text: "G"},
	}, nil).Once()

	c := NewCollector()
	err := NewDispatcher(mb).Dispatch(context.Background(), query.Request{
		Prompt: "hello",
		Mode:   query.ModeMultiplexed,
		Slots:  providerSlots("anthropic", "openai", "gemini", "deepseek"),
	}, c.Settle)
	require.NoError(t, err)

	got := c.Results()
	assert.Equal(t, "A", got["anthropic"].Display())
	assert.Equal(t, "Error: rate limited", got["openai"].Display())
	assert.Equal(t, "G", got["gemini"].Display())
	assert.Equal(t, "Error: no response for provider deepseek", got["deepseek"].Display())
	mb.AssertNumberOfCalls(t, "QueryMultiplexed", 1)
}

func TestDispatchMultiplexedTransportFailureFailsEverySlot(t *testing.T) {
	mb := new(MockBackend)
	transport := &backend.TransportError{Op: "GET", URL: "u", StatusCode: 502}
	mb.On("QueryMultiplexed", mock.Anything, "hello").Return(nil, transport).Once()

	c := NewCollector()
	require.NoError(t, NewDispatcher(mb).Dispatch(context.Background(), query.Request{
		Prompt: "hello",
		Mode:   query.ModeMultiplexed,
		Slots:  providerSlots("anthropic", "openai"),
	}, c.Settle))

	got := c.Results()
	require.Len(t, got, 2)
	assert.Equal(t, got["anthropic"], got["openai"])
	assert.Equal(t, "Error: backend returned http 502: Bad Gateway", got["openai"].Display())
}

func TestDispatchFanOutIsolatesFailures(t *testing.T) {
	mb := new(MockBackend)
	netErr := &backend.TransportError{Op: "GET", URL: "u", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	mb.On("QueryProvider", mock.Anything, "anthropic", "hello").Return("A", nil)
	mb.On("QueryProvider", mock.Anything, "openai", "hello").Return("", netErr)
	mb.On("QueryProvider", mock.Anything, "gemini", "hello").Return("G", nil)

	c := NewCollector()
	require.NoError(t, NewDispatcher(mb).Dispatch(context.Background(), query.Request{
		Prompt: "hello",
		Mode:   query.ModeProvider,
		Slots:  providerSlots("anthropic", "openai", "gemini"),
	}, c.Settle))

	got := c.Results()
	assert.Equal(t, "A", got["anthropic"].Display())
	assert.Equal(t, "G", got["gemini"].Display())
	assert.Equal(t, query.StateFailure, got["openai"].State)
	assert.Equal(t, "Error: "+netErr.Error(), got["openai"].Display())
	mb.AssertExpectations(t)
}

func TestDispatchModelPassesTemperature(t *testing.T) {
	mb := new(MockBackend)
	mb.On("QueryModel", mock.Anything, "gpt-4o", "hello", 50.0).Return("from gpt", nil).Once()
	mb.On("QueryModel", mock.Anything, "claude-3", "hello", 50.0).Return("from claude", nil).Once()

	c := NewCollector()
	require.NoError(t, NewDispatcher(mb).Dispatch(context.Background(), query.Request{
		Prompt:      "hello",
		Mode:        query.ModeModel,
		Temperature: 50,
		Slots: []query.Slot{
			{ID: "slot-1", Model: "gpt-4o", Provider: query.NewProvider("openai")},
			{ID: "slot-2", Model: "claude-3", Provider: query.NewProvider("anthropic")},
		},
	}, c.Settle))
	assert.Equal(t, "from gpt", c.Results()["slot-1"].Text)
	assert.Equal(t, "from claude", c.Results()["slot-2"].Text)
	mb.AssertExpectations(t)
}

// barrierBackend only answers once every expected call is in flight.
type barrierBackend struct {
	MockBackend
	arrived sync.WaitGroup
	release chan struct{}
}

func (b *barrierBackend) QueryModel(ctx context.Context, model, _ string, _ float64) (string, error) {
	b.arrived.Done()
	select {
	case <-b.release:
		return model, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestDispatchIssuesRequestsConcurrently(t *testing.T) {
	const n = 4
	b := &barrierBackend{release: make(chan struct{})}
	b.arrived.Add(n)

	slots := make([]query.Slot, n)
	for i := range slots {
		slots[i] = query.Slot{ID: query.SlotID(string(rune('a' + i))), Model: string(rune('a' + i))}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	c := NewCollector()
	go func() {
		done <- NewDispatcher(b).Dispatch(ctx, query.Request{Prompt: "p", Mode: query.ModeModel, Slots: slots}, c.Settle)
	}()

	allIn := make(chan struct{})
	go func() {
		b.arrived.Wait()
		close(allIn)
	}()
	select {
	case <-allIn:
	case <-time.After(2 * time.Second):
		t.Fatal("requests were not all in flight at once")
	}
	close(b.release)
	require.NoError(t, <-done)
	assert.Len(t, c.Results(), n)
}

func TestDispatchRecoversPanicPerSlot(t *testing.T) {
	mb := new(MockBackend)
	mb.On("QueryProvider", mock.Anything, "anthropic", "p").Return("A", nil)
	mb.On("QueryProvider", mock.Anything, "openai", "p").Run(func(mock.Arguments) { panic("bad decoder") })

	c := NewCollector()
	require.NoError(t, NewDispatcher(mb).Dispatch(context.Background(), query.Request{
		Prompt: "p",
		Mode:   query.ModeProvider,
		Slots:  providerSlots("anthropic", "openai"),
	}, c.Settle))
	assert.Equal(t, "A", c.Results()["anthropic"].Text)
	assert.Equal(t, "Error: panic: bad decoder", c.Results()["openai"].Display())
}

func TestDispatchRejectsBeforeIssuing(t *testing.T) {
	mb := new(MockBackend)
	d := NewDispatcher(mb)
	settle := func(query.SlotID, query.Result) { t.Fatal("nothing should settle") }

	err := d.Dispatch(context.Background(), query.Request{Prompt: "p", Mode: query.ModeProvider}, settle)
	assert.ErrorIs(t, err, ErrNoSlots)

	err = d.Dispatch(context.Background(), query.Request{Prompt: "p", Mode: "carrier-pigeon", Slots: providerSlots("openai")}, settle)
	assert.ErrorIs(t, err, ErrUnknownMode)

	err = d.Dispatch(context.Background(), query.Request{Prompt: "p", Mode: query.ModeSingle, Slots: providerSlots("openai")}, nil)
	assert.ErrorIs(t, err, ErrNilSettle)

	mb.AssertNotCalled(t, "QueryProvider", mock.Anything, mock.Anything, mock.Anything)
}

// Collector gathers settlements for assertions.
type Collector struct {
	mu      sync.Mutex
	results map[query.SlotID]query.Result
}

func NewCollector() *Collector {
	return &Collector{results: make(map[query.SlotID]query.Result)}
}

func (c *Collector) Settle(id query.SlotID, r query.Result) {
	c.mu.Lock()
	c.results[id] = r
	c.mu.Unlock()
}

func (c *Collector) Results() map[query.SlotID]query.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[query.SlotID]query.Result, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}
