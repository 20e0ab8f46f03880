// Package roundtimer implements the two short-lived timer shapes a lobby
// actor arms: a condition-variable-arbitrated game-start countdown, and a
// per-second round tick. Neither reads or writes lobbystate.Lobby
// directly — both only ever post synthetic messages into the lobby's
// inbound channel, so the lobby actor's single goroutine remains the only
// writer of game state.
package roundtimer

import (
	"context"
	"sync"
	"time"

	"github.com/udisondev/scribbleserver/internal/wire"
)

// StartGate arbitrates however many redundant game-start countdowns get
// armed by repeated ready-up toggles: only the first one whose wait
// actually elapses posts the synthetic game_start message; the rest
// observe that one already fired and exit quietly.
type StartGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	started bool
}

// NewStartGate returns a gate ready for its first round.
func NewStartGate() *StartGate {
	g := &StartGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Reset clears the started flag so a future ready-up can arm a fresh
// countdown. Called by the lobby actor whenever a round ends.
func (g *StartGate) Reset() {
	g.mu.Lock()
	g.started = false
	g.mu.Unlock()
}

// Arm spawns the countdown goroutine. After duration elapses, if no other
// armed countdown has already fired, this one posts game_start on inbound
// and wakes any other goroutines waiting on the same gate.
func (g *StartGate) Arm(ctx context.Context, duration time.Duration, inbound chan<- wire.Envelope) {
	go g.run(ctx, duration, inbound)
}

func (g *StartGate) run(ctx context.Context, duration time.Duration, inbound chan<- wire.Envelope) {
	deadline := time.Now().Add(duration)

	timer := time.AfterFunc(duration, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.mu.Lock()
	for !g.started && time.Now().Before(deadline) && ctx.Err() == nil {
		g.cond.Wait()
	}
	won := !g.started && ctx.Err() == nil
	if won {
		g.started = true
		g.cond.Broadcast()
	}
	g.mu.Unlock()

	if !won {
		return
	}
	select {
	case inbound <- wire.Envelope{Kind: wire.KindGameStart}:
	case <-ctx.Done():
	}
}

// TickTimer posts one synthetic tick per second for up to seconds ticks,
// then a final time_up, unless ctx is cancelled first (the round ended
// some other way — a disconnect, an all-players-guessed finish). It keeps
// its own local countdown rather than reading lobbystate.Lobby.TimeLeft,
// since only the lobby actor's goroutine may touch that field.
func TickTimer(ctx context.Context, seconds int, inbound chan<- wire.Envelope) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	remaining := seconds
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining--
			select {
			case inbound <- wire.Envelope{Kind: wire.KindTick}:
			case <-ctx.Done():
				return
			}
		}
	}

	select {
	case inbound <- wire.Envelope{Kind: wire.KindTimeUp}:
	case <-ctx.Done():
	}
}
