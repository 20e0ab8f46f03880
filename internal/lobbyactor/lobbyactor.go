// Package lobbyactor runs the single-threaded event loop that owns one
// lobbystate.Lobby: it drains the lobby's inbound channel, applies each
// message, and fans the resulting outbound messages out to every
// connection's outbox. All mutation of the Lobby happens on this one
// goroutine, so no other part of the program may touch it directly.
package lobbyactor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/scribbleserver/internal/lobbystate"
	"github.com/udisondev/scribbleserver/internal/roundtimer"
	"github.com/udisondev/scribbleserver/internal/wire"
)

// StartCountdown is the delay between all-ready and a round actually
// starting, per the 3-5s window the round lifecycle calls for.
const StartCountdown = 4 * time.Second

// inboundBuffer bounds how many pending messages a lobby will queue before
// a slow outbox or a burst of joins would otherwise apply backpressure to
// every connection feeding it.
const inboundBuffer = 64

// outboxBuffer bounds how many pending outbound messages a single
// connection's outbox holds before it is considered unresponsive.
const outboxBuffer = 32

// Actor owns one lobby's state and its player outboxes.
type Actor struct {
	Inbound chan wire.Envelope

	lobby          *lobbystate.Lobby
	gate           *roundtimer.StartGate
	startCountdown time.Duration

	mu       sync.Mutex
	outboxes map[int64]chan wire.Envelope

	tickCancel context.CancelFunc

	log *slog.Logger
}

// New constructs an actor around lobby. Run must be called to start it.
func New(lobby *lobbystate.Lobby, log *slog.Logger) *Actor {
	if log == nil {
		log = slog.Default()
	}
	return &Actor{
		Inbound:        make(chan wire.Envelope, inboundBuffer),
		lobby:          lobby,
		gate:           roundtimer.NewStartGate(),
		startCountdown: StartCountdown,
		outboxes:       make(map[int64]chan wire.Envelope),
		log:            log,
	}
}

// SetStartCountdown overrides the default ready-up countdown, primarily
// for tests that cannot afford to wait several real seconds.
func (a *Actor) SetStartCountdown(d time.Duration) { a.startCountdown = d }

// Register adds a new player's outbox, returning the receive end the
// connection actor should drain to write to its socket.
func (a *Actor) Register(id int64) <-chan wire.Envelope {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan wire.Envelope, outboxBuffer)
	a.outboxes[id] = ch
	return ch
}

// PlayerCount reports the current number of registered outboxes, used by
// the manager to enforce lobby capacity without reaching into lobbystate.
func (a *Actor) PlayerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outboxes)
}

// Run drains Inbound until ctx is cancelled. It recovers from a panic in
// message handling so one bad message cannot take the whole lobby down.
func (a *Actor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-a.Inbound:
			if !ok {
				return nil
			}
			a.handle(ctx, msg)
		}
	}
}

func (a *Actor) handle(ctx context.Context, msg wire.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("lobby actor recovered from panic handling message", "kind", msg.Kind, "panic", r)
		}
	}()

	res := a.lobby.Apply(msg)

	a.deliver(res.Outbound)

	for _, id := range res.RemovedPlayerIDs {
		a.mu.Lock()
		if ch, ok := a.outboxes[id]; ok {
			close(ch)
			delete(a.outboxes, id)
		}
		a.mu.Unlock()
	}

	if res.ArmStartTimer {
		a.gate.Arm(ctx, a.startCountdown, a.Inbound)
	}
	if res.ResetStartGate {
		a.gate.Reset()
	}
	if res.ArmTickTimer {
		a.armTick(ctx)
	}
	if res.CancelTickTimer {
		a.cancelTick()
	}
}

func (a *Actor) armTick(ctx context.Context) {
	a.cancelTick()
	tickCtx, cancel := context.WithCancel(ctx)
	a.tickCancel = cancel
	seconds := a.lobby.TimeLeft
	go roundtimer.TickTimer(tickCtx, seconds, a.Inbound)
}

func (a *Actor) cancelTick() {
	if a.tickCancel != nil {
		a.tickCancel()
		a.tickCancel = nil
	}
}

// deliver enqueues every outbound message to its recipients, or to every
// currently registered outbox when Recipients is empty. A full outbox
// (a stalled connection) is treated as a disconnect candidate rather than
// blocking the lobby actor.
func (a *Actor) deliver(outbound []lobbystate.Outbound) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, ob := range outbound {
		recipients := ob.Recipients
		if len(recipients) == 0 {
			recipients = make([]int64, 0, len(a.outboxes))
			for id := range a.outboxes {
				recipients = append(recipients, id)
			}
		}
		for _, id := range recipients {
			ch, ok := a.outboxes[id]
			if !ok {
				continue
			}
			select {
			case ch <- ob.Envelope:
			default:
				a.log.Warn("dropping outbox-full player, queuing disconnect", "id", id)
				a.queueDisconnect(id)
			}
		}
	}
}

// queueDisconnect posts a synthetic disconnect for id without blocking;
// called with a.mu held, so it must not reacquire it.
func (a *Actor) queueDisconnect(id int64) {
	env, err := wire.Encode(wire.KindDisconnect, wire.Disconnect{ID: id})
	if err != nil {
		return
	}
	select {
	case a.Inbound <- env:
	default:
		a.log.Error("lobby inbound channel full, dropping disconnect", "id", id)
	}
}

// RunGroup starts the actor under an errgroup so its caller can observe
// whether it ever exits unexpectedly, the generalized form of the
// WaitGroup-supervised goroutine pattern used elsewhere in this codebase.
func RunGroup(ctx context.Context, a *Actor) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	return g, gctx
}
