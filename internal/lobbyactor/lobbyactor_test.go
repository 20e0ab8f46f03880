package lobbyactor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/udisondev/scribbleserver/internal/lobbystate"
	"github.com/udisondev/scribbleserver/internal/scoring"
	"github.com/udisondev/scribbleserver/internal/wire"
	"github.com/udisondev/scribbleserver/internal/wordlist"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/words.txt"
	if err := os.WriteFile(path, []byte("apple\nbanana\ncarrot\n"), 0o600); err != nil {
		t.Fatalf("write wordlist: %v", err)
	}
	words, err := wordlist.Load(path)
	if err != nil {
		t.Fatalf("load wordlist: %v", err)
	}
	lobby := lobbystate.New(words, scoring.EqualAward{FullReward: 100}, scoring.EqualAward{FullReward: 50}, 3)
	a := New(lobby, testLogger())
	a.SetStartCountdown(15 * time.Millisecond)
	return a
}

func join(a *Actor, id int64, name string) {
	env, _ := wire.Encode(wire.KindUserInit, wire.UserInit{ID: id, Username: name})
	a.Inbound <- env
}

func ready(a *Actor, id int64) {
	env, _ := wire.Encode(wire.KindReady, wire.Ready{ID: id, Ready: true})
	a.Inbound <- env
}

func drainUntil(t *testing.T, ch <-chan wire.Envelope, kind wire.Kind, timeout time.Duration) wire.Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case env := <-ch:
			if env.Kind == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for envelope kind %q", kind)
		}
	}
}

// waitGameState drains ch until a game_state whose view satisfies match
// arrives, failing the test once timeout has passed.
func waitGameState(t *testing.T, ch <-chan wire.Envelope, match func(wire.GameStateView) bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		env := drainUntil(t, ch, wire.KindGameState, time.Until(deadline))
		var gs wire.GameState
		if err := json.Unmarshal(env.Data, &gs); err != nil {
			t.Fatalf("decoding game_state: %v", err)
		}
		if match(gs.GameState) {
			return
		}
	}
}

func TestActorRegisterAndPlayerCount(t *testing.T) {
	a := newTestActor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Register(1)
	a.Register(2)
	if got := a.PlayerCount(); got != 2 {
		t.Fatalf("PlayerCount() = %d, want 2", got)
	}
}

func TestActorReadyUpStartsRoundAndTicks(t *testing.T) {
	a := newTestActor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	out1 := a.Register(1)
	out2 := a.Register(2)

	join(a, 1, "alice")
	join(a, 2, "bob")
	ready(a, 1)
	ready(a, 2)

	inGame := func(gs wire.GameStateView) bool { return gs.InGame }
	waitGameState(t, out1, inGame, time.Second)
	waitGameState(t, out2, inGame, time.Second)

	ticked := func(gs wire.GameStateView) bool {
		return gs.InGame && gs.Time == lobbystate.DefaultRoundSeconds-1
	}
	waitGameState(t, out1, ticked, 3*time.Second)
}

func TestActorSurvivesMalformedEnvelope(t *testing.T) {
	a := newTestActor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	out1 := a.Register(1)

	a.Inbound <- wire.Envelope{Kind: wire.Kind("not-a-real-kind"), Data: json.RawMessage(`{`)}

	join(a, 1, "alice")
	env, _ := wire.Encode(wire.KindUpdateRequested, nil)
	a.Inbound <- env

	drainUntil(t, out1, wire.KindGameState, time.Second)
}

func TestActorDisconnectRemovesOutbox(t *testing.T) {
	a := newTestActor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Register(1)
	a.Register(2)
	join(a, 1, "alice")
	join(a, 2, "bob")

	env, _ := wire.Encode(wire.KindDisconnect, wire.Disconnect{ID: 1})
	a.Inbound <- env

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.PlayerCount() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("PlayerCount() never dropped to 1, got %d", a.PlayerCount())
}

func TestRunGroupReturnsContextErrorOnCancel(t *testing.T) {
	a := newTestActor(t)
	ctx, cancel := context.WithCancel(context.Background())
	g, _ := RunGroup(ctx, a)
	cancel()
	if err := g.Wait(); err == nil {
		t.Fatal("expected RunGroup to return an error after cancellation")
	}
}
