// Package processor implements the Request Dispatcher and
// Interaction Completion Handler: the public surface of the
// secrets daemon's request processing core.
//
// Concurrency model: a single actor goroutine drains one command
// channel; every dispatcher method and every completion callback is a
// closure posted to that channel and run to completion before the next
// is dequeued, so no two operations ever simultaneously mutate the
// lock-key cache, pending-request table, or timer map.
package processor

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sealbox/secretsd/internal/apperr"
	"github.com/sealbox/secretsd/internal/bus"
	"github.com/sealbox/secretsd/internal/lockcache"
	"github.com/sealbox/secretsd/internal/logging"
	"github.com/sealbox/secretsd/internal/pending"
	"github.com/sealbox/secretsd/internal/pluginapi"
	"github.com/sealbox/secretsd/internal/queue"
	"github.com/sealbox/secretsd/internal/registry"
	"github.com/sealbox/secretsd/internal/relock"
	"github.com/sealbox/secretsd/internal/secretbuf"
)

// Actor is the Request Processor: the in-memory state machine that
// validates and authorises requests, sequences bookkeeping writes
// around plugin calls, suspends requests awaiting user input, and
// maintains the lock-key cache and relock timers.
type Actor struct {
	registry    *registry.Registry
	bookkeeping pluginapi.Bookkeeping
	permission  pluginapi.PermissionOracle
	cache       *lockcache.Cache
	pending     *pending.Table
	relock      *relock.Scheduler
	results     *queue.ResultQueue
	bus         bus.Bus

	deviceLockKey *secretbuf.Buffer
	autotestMode  bool
	log           *zerolog.Logger

	cmdCh chan func()
}

// Config collects an Actor's fixed collaborators at construction time.
type Config struct {
	Registry      *registry.Registry
	Bookkeeping   pluginapi.Bookkeeping
	Permission    pluginapi.PermissionOracle
	Results       *queue.ResultQueue
	Bus           bus.Bus
	DeviceLockKey []byte
	AutotestMode  bool
	// QueueDepth bounds how many posted closures (dispatcher calls,
	// completion signals, timer fires) may be in flight before callers
	// of do and enqueue block. Defaults to 64.
	QueueDepth int
}

// NewActor constructs an Actor and wires its relock scheduler and bus
// subscriptions, but does not start its run loop — call Run for that.
func NewActor(cfg Config) *Actor {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	a := &Actor{
		registry:      cfg.Registry,
		bookkeeping:   cfg.Bookkeeping,
		permission:    cfg.Permission,
		cache:         lockcache.New(),
		pending:       pending.New(),
		results:       cfg.Results,
		bus:           cfg.Bus,
		deviceLockKey: secretbuf.New(cfg.DeviceLockKey),
		autotestMode:  cfg.AutotestMode,
		log:           logging.Processor(),
		cmdCh:         make(chan func(), depth),
	}
	a.relock = relock.New(a.enqueue)

	if a.bus != nil {
		_ = a.bus.SubscribeUserInputCompleted(func(evt bus.UserInputCompleted) {
			a.enqueue(func() { a.handleUserInputCompleted(evt) })
		})
		_ = a.bus.SubscribeAuthenticationCompleted(func(evt bus.AuthenticationCompleted) {
			a.enqueue(func() { a.handleAuthenticationCompleted(evt) })
		})
	}
	return a
}

// enqueue posts f onto the actor's command channel. Safe to call from
// any goroutine; f itself must only be invoked by Run.
func (a *Actor) enqueue(f func()) {
	a.cmdCh <- f
}

// Run drains the command channel until ctx is done. Exactly one Run
// call should be active for a given Actor.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case f := <-a.cmdCh:
			f()
		case <-ctx.Done():
			return
		}
	}
}

// do posts f to the actor goroutine and blocks for its Result, giving
// dispatcher methods synchronous call semantics from the caller's point
// of view even though they actually execute serialized on the actor.
func (a *Actor) do(ctx context.Context, f func() apperr.Result) apperr.Result {
	respCh := make(chan apperr.Result, 1)
	posted := func() { respCh <- f() }
	select {
	case a.cmdCh <- posted:
	case <-ctx.Done():
		return apperr.Err(apperr.Unknown("request not accepted: " + ctx.Err().Error()))
	}
	select {
	case r := <-respCh:
		return r
	case <-ctx.Done():
		return apperr.Err(apperr.Unknown("request cancelled: " + ctx.Err().Error()))
	}
}

func newRequestID() string {
	return uuid.New().String()
}
