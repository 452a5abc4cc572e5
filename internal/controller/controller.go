// Package controller gates submissions: it validates input, resets the
// aggregator, starts the dispatch, and re-enables submitting once the round
// is over.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"querydeck/internal/aggregate"
	"querydeck/internal/dispatch"
	"querydeck/internal/logger"
	"querydeck/internal/query"

	"github.com/google/uuid"
)

// ErrBusy is returned by Submit while a previous submission is still dispatching.
var ErrBusy = errors.New("a submission is already in progress")

type State int32

const (
	StateIdle State = iota
	StateValidating
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SubmitControl is the submit button, or whatever stands in for it.
type SubmitControl interface {
	SetEnabled(enabled bool)
}

// Alerter shows validation failures to the user.
type Alerter interface {
	Alert(message string)
}

// SelectionSource supplies the current mode and slot bindings.
type SelectionSource interface {
	Selection() query.Selection
}

type RequestBuilder interface {
	Build(rawInput string, sel query.Selection) (query.Request, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req query.Request, settle dispatch.SettleFunc) error
}

// Deps groups the collaborators of a Controller. Control, Alerter and
// Selection are optional.
type Deps struct {
	Builder    RequestBuilder
	Dispatcher Dispatcher
	Aggregator *aggregate.Aggregator
	Selection  SelectionSource
	Control    SubmitControl
	Alerter    Alerter
}

// Controller runs at most one submission at a time.
type Controller struct {
	builder    RequestBuilder
	dispatcher Dispatcher
	agg        *aggregate.Aggregator
	selection  SelectionSource
	control    SubmitControl
	alerter    Alerter

	// transitionMu orders state changes, submit control calls and aggregator
	// writes, so Status never pairs a finished round with a disabled submit.
	transitionMu sync.Mutex

	mu      sync.Mutex
	state   State
	enabled bool
	current *Submission
}

func New(deps Deps) (*Controller, error) {
	if deps.Builder == nil {
		return nil, fmt.Errorf("controller requires a request builder")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("controller requires a dispatcher")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("controller requires an aggregator")
	}
	c := &Controller{
		builder:    deps.Builder,
		dispatcher: deps.Dispatcher,
		agg:        deps.Aggregator,
		selection:  deps.Selection,
		control:    deps.Control,
		alerter:    deps.Alerter,
		enabled:    true,
	}
	return c, nil
}

// Submission is one accepted round.
type Submission struct {
	ID         string
	Generation aggregate.Generation
	Request    query.Request

	remaining atomic.Int64
	once      sync.Once
	done      chan struct{}
}

// Done is closed when every slot has settled and submitting is enabled again.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Wait blocks until the submission is done or ctx ends.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is the controller and slot state read at one instant. SubmitEnabled
// mirrors the last value sent to the submit control.
type Status struct {
	State         State
	SubmitEnabled bool
	SubmissionID  string
	Snapshot      aggregate.Snapshot
}

// Status returns a consistent view: once every slot of the current round has
// settled, SubmitEnabled is already true. It must not be called from an
// aggregator listener.
func (c *Controller) Status() Status {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()
	snap := c.agg.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, SubmitEnabled: c.enabled, Snapshot: snap}
	if c.current != nil {
		st.SubmissionID = c.current.ID
	}
	return st
}

// Submit validates rawInput against the current selection and starts a
// dispatch. Validation failures are alerted, returned, and leave the slots
// untouched. The dispatch outlives ctx's cancellation.
func (c *Controller) Submit(ctx context.Context, rawInput string) (*Submission, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = StateValidating
	c.mu.Unlock()

	req, err := c.builder.Build(rawInput, c.currentSelection())
	if err != nil {
		c.setState(StateIdle)
		msg := err.Error()
		if ve, ok := query.AsValidationError(err); ok {
			msg = ve.Reason
		}
		logger.Infof("submission rejected: %s", msg)
		if c.alerter != nil {
			c.alerter.Alert(msg)
		}
		return nil, err
	}

	sub := &Submission{
		ID:      uuid.NewString(),
		Request: req,
		done:    make(chan struct{}),
	}
	sub.remaining.Store(int64(len(req.Slots)))

	c.transitionMu.Lock()
	c.setState(StateDispatching)
	c.setEnabled(false)
	sub.Generation = c.agg.Reset(req.Slots)
	c.mu.Lock()
	c.current = sub
	c.mu.Unlock()
	c.transitionMu.Unlock()

	logger.Infof("submission %s generation=%d mode=%s slots=%d", sub.ID, sub.Generation, req.Mode, len(req.Slots))
	go c.run(context.WithoutCancel(ctx), sub)
	return sub, nil
}

func (c *Controller) run(ctx context.Context, sub *Submission) {
	defer c.finish(sub)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("submission %s dispatch panic: %v", sub.ID, r)
			c.failUnsettled(sub, query.Failed(fmt.Sprintf("panic: %v", r)))
		}
	}()

	settle := func(id query.SlotID, r query.Result) {
		c.settle(sub, id, r)
	}
	if err := c.dispatcher.Dispatch(ctx, sub.Request, settle); err != nil {
		logger.Errorf("submission %s dispatch failed: %v", sub.ID, err)
		c.failUnsettled(sub, query.FromError(err))
		return
	}
	c.failUnsettled(sub, query.Failed("no result"))
}

// failUnsettled settles whatever the dispatch left pending so no slot shows
// Loading... forever.
func (c *Controller) failUnsettled(sub *Submission, r query.Result) {
	snap := c.agg.Snapshot()
	if snap.Generation != sub.Generation {
		return
	}
	for _, st := range snap.Slots {
		if !st.Result.Settled() {
			c.settle(sub, st.ID, r)
		}
	}
}

// settle records one slot and finishes the submission on its last slot, in
// one transition.
func (c *Controller) settle(sub *Submission, id query.SlotID, r query.Result) {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()
	if !c.agg.Settle(sub.Generation, id, r) {
		return
	}
	if sub.remaining.Add(-1) == 0 {
		c.finishLocked(sub)
	}
}

// finish re-enables submitting. It runs its body once per submission.
func (c *Controller) finish(sub *Submission) {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()
	c.finishLocked(sub)
}

func (c *Controller) finishLocked(sub *Submission) {
	sub.once.Do(func() {
		c.setState(StateIdle)
		c.setEnabled(true)
		logger.Infof("submission %s done generation=%d", sub.ID, sub.Generation)
		close(sub.done)
	})
}

func (c *Controller) currentSelection() query.Selection {
	if c.selection == nil {
		return query.Selection{Mode: query.ModeSingle}
	}
	return c.selection.Selection()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) setEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	if c.control != nil {
		c.control.SetEnabled(enabled)
	}
}
