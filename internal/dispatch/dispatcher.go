// Package dispatch turns one Request into backend calls and reports each
// slot's outcome as soon as it is known.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"querydeck/internal/gateway/backend"
	"querydeck/internal/logger"
	"querydeck/internal/query"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNoSlots     = errors.New("request has no slots")
	ErrNilSettle   = errors.New("settle callback is required")
	ErrUnknownMode = errors.New("unknown dispatch mode")
)

// Backend is the set of calls the dispatcher needs. *backend.Client satisfies it.
type Backend interface {
	QuerySingle(ctx context.Context, prompt string) (string, error)
	QueryMultiplexed(ctx context.Context, prompt string) (map[string]backend.Reply, error)
	QueryProvider(ctx context.Context, provider, prompt string) (string, error)
	QueryModel(ctx context.Context, model, prompt string, temperature float64) (string, error)
}

// SettleFunc receives each slot's final result. It is called from the
// goroutine that finished the slot's request, possibly concurrently with
// other slots.
type SettleFunc func(id query.SlotID, r query.Result)

// Dispatcher issues requests without retrying. It imposes no timeout of its
// own; the backend's HTTP client carries one.
type Dispatcher struct {
	backend Backend
}

func NewDispatcher(b Backend) *Dispatcher {
	return &Dispatcher{backend: b}
}

// Dispatch executes req and blocks until every slot has been settled exactly
// once. A non-nil error means nothing was issued and nothing was settled.
func (d *Dispatcher) Dispatch(ctx context.Context, req query.Request, settle SettleFunc) error {
	if settle == nil {
		return ErrNilSettle
	}
	if d.backend == nil {
		return fmt.Errorf("dispatcher has no backend")
	}
	if len(req.Slots) == 0 {
		return ErrNoSlots
	}
	switch {
	case req.Mode == query.ModeMultiplexed:
		d.dispatchMultiplexed(ctx, req, settle)
		return nil
	case req.Mode.FanOut():
		d.fanOut(ctx, req, settle)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
}

// fanOut starts one goroutine per slot; all are running before any is awaited.
func (d *Dispatcher) fanOut(ctx context.Context, req query.Request, settle SettleFunc) {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, slot := range req.Slots {
		slot := slot
		eg.Go(func() error {
			start := time.Now()
			text, err := d.invokeSafe(egCtx, slot, func(c context.Context) (string, error) {
				return d.callSlot(c, req, slot)
			})
			r := toResult(text, err)
			logSettlement(req.Mode, slot, r, time.Since(start))
			settle(slot.ID, r)
			return nil
		})
	}
	_ = eg.Wait()
}

func (d *Dispatcher) callSlot(ctx context.Context, req query.Request, slot query.Slot) (string, error) {
	switch req.Mode {
	case query.ModeSingle:
		return d.backend.QuerySingle(ctx, req.Prompt)
	case query.ModeProvider:
		return d.backend.QueryProvider(ctx, slot.Provider.Name, req.Prompt)
	case query.ModeModel:
		return d.backend.QueryModel(ctx, slot.Model, req.Prompt, req.Temperature)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
}

// dispatchMultiplexed issues a single request and splits its payload across
// the slots by provider name. A failure of the request itself fails every slot
// with the same message.
func (d *Dispatcher) dispatchMultiplexed(ctx context.Context, req query.Request, settle SettleFunc) {
	start := time.Now()
	var replies map[string]backend.Reply
	_, err := d.invokeSafe(ctx, query.Slot{ID: "multiplexed"}, func(c context.Context) (string, error) {
		var callErr error
		replies, callErr = d.backend.QueryMultiplexed(c, req.Prompt)
		return "", callErr
	})
	elapsed := time.Since(start)
	if err != nil {
		logger.Warnf("multiplexed query failed slots=%d elapsed=%s err=%v", len(req.Slots), elapsed.Truncate(time.Millisecond), err)
		failed := query.FromError(err)
		for _, slot := range req.Slots {
			logSettlement(req.Mode, slot, failed, elapsed)
			settle(slot.ID, failed)
		}
		return
	}
	for _, slot := range req.Slots {
		r := query.Failed("no response for provider " + slot.Provider.Name)
		if reply, ok := replies[slot.Provider.Name]; ok {
			r = toResult(reply.Text, reply.Err)
		}
		logSettlement(req.Mode, slot, r, elapsed)
		settle(slot.ID, r)
	}
}

// invokeSafe turns a panic in call into an error for that slot only.
func (d *Dispatcher) invokeSafe(ctx context.Context, slot query.Slot, call func(context.Context) (string, error)) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("slot %s call panic: %v", slot.ID, r)
			text, err = "", fmt.Errorf("panic: %v", r)
		}
	}()
	return call(ctx)
}

func toResult(text string, err error) query.Result {
	if err != nil {
		return query.FromError(err)
	}
	return query.Succeeded(text)
}

func logSettlement(mode query.Mode, slot query.Slot, r query.Result, elapsed time.Duration) {
	target := slot.Provider.Name
	if slot.Model != "" {
		target = slot.Model
	}
	if r.State == query.StateFailure {
		logger.Debugf("slot settled mode=%s slot=%s target=%s state=%s elapsed=%s err=%s", mode, slot.ID, target, r.State, elapsed.Truncate(time.Millisecond), r.Message)
		return
	}
	logger.Debugf("slot settled mode=%s slot=%s target=%s state=%s elapsed=%s chars=%d", mode, slot.ID, target, r.State, elapsed.Truncate(time.Millisecond), len(r.Text))
}
