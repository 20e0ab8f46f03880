package lobbystate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/udisondev/scribbleserver/internal/scoring"
	"github.com/udisondev/scribbleserver/internal/wire"
	"github.com/udisondev/scribbleserver/internal/wordlist"
)

func newTestWords(t *testing.T, words ...string) *wordlist.List {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "words.txt")
	content := ""
	for _, w := range words {
		content += w + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing word file: %v", err)
	}
	l, err := wordlist.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return l
}

func newTestLobby(t *testing.T, words ...string) *Lobby {
	t.Helper()
	if len(words) == 0 {
		words = []string{"tree"}
	}
	return New(newTestWords(t, words...), scoring.EqualAward{FullReward: 100}, scoring.EqualAward{FullReward: 100}, 3)
}

func join(t *testing.T, l *Lobby, id int64, name string) Result {
	t.Helper()
	env, err := wire.Encode(wire.KindUserInit, wire.UserInit{ID: id, Username: name})
	if err != nil {
		t.Fatalf("encoding user_init: %v", err)
	}
	return l.Apply(env)
}

func ready(t *testing.T, l *Lobby, id int64, r bool) Result {
	t.Helper()
	env, err := wire.Encode(wire.KindReady, wire.Ready{ID: id, Ready: r})
	if err != nil {
		t.Fatalf("encoding ready: %v", err)
	}
	return l.Apply(env)
}

func chat(t *testing.T, l *Lobby, id int64, message string) Result {
	t.Helper()
	env, err := wire.Encode(wire.KindChatMessage, wire.ChatMessage{ID: id, Message: message})
	if err != nil {
		t.Fatalf("encoding chat_message: %v", err)
	}
	return l.Apply(env)
}

func disconnect(t *testing.T, l *Lobby, id int64) Result {
	t.Helper()
	env, err := wire.Encode(wire.KindDisconnect, wire.Disconnect{ID: id})
	if err != nil {
		t.Fatalf("encoding disconnect: %v", err)
	}
	return l.Apply(env)
}

func gameStart(t *testing.T, l *Lobby) Result {
	t.Helper()
	return l.Apply(wire.Envelope{Kind: wire.KindGameStart})
}

func playerUpdateFrom(t *testing.T, res Result) wire.PlayerUpdate {
	t.Helper()
	for i := len(res.Outbound) - 1; i >= 0; i-- {
		if res.Outbound[i].Envelope.Kind == wire.KindPlayerUpdate {
			var pu wire.PlayerUpdate
			if err := json.Unmarshal(res.Outbound[i].Envelope.Data, &pu); err != nil {
				t.Fatalf("decoding player_update: %v", err)
			}
			return pu
		}
	}
	t.Fatal("no player_update in result")
	return wire.PlayerUpdate{}
}

// S1 — ready-up starts a round.
func TestReadyUpArmsAndStartsRound(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")

	ready(t, l, 1, true)
	res := ready(t, l, 2, true)
	if !res.ArmStartTimer {
		t.Fatal("expected ready-up with 2/2 ready to arm the start timer")
	}
	if l.State != StateStarting {
		t.Fatalf("state = %v, want Starting", l.State)
	}

	res = gameStart(t, l)
	if l.State != StateInGame {
		t.Fatalf("state = %v, want InGame", l.State)
	}
	if !res.ArmTickTimer {
		t.Fatal("expected game_start to arm the tick timer")
	}

	pu := playerUpdateFrom(t, res)
	drawers := 0
	for _, p := range pu.Players {
		if p.Drawing {
			drawers++
		}
	}
	if drawers != 1 {
		t.Fatalf("expected exactly one drawer, got %d", drawers)
	}
	if l.TimeLeft != DefaultRoundSeconds {
		t.Fatalf("TimeLeft = %d, want %d", l.TimeLeft, DefaultRoundSeconds)
	}
}

func guesserID(l *Lobby) int64 {
	for _, p := range l.Players {
		if !p.Drawing {
			return p.ID
		}
	}
	return 0
}

func drawerID(l *Lobby) int64 {
	for _, p := range l.Players {
		if p.Drawing {
			return p.ID
		}
	}
	return 0
}

// S2/S3 — correct (case-insensitive) guess ends the round.
func TestCorrectGuessEndsRoundCaseInsensitive(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	ready(t, l, 2, true)
	gameStart(t, l)

	guesser := guesserID(l)
	res := chat(t, l, guesser, "TrEe")

	sawNotice := false
	sawRawWord := false
	for _, ob := range res.Outbound {
		if ob.Envelope.Kind != wire.KindChatMessage {
			continue
		}
		var cm wire.ChatMessage
		json.Unmarshal(ob.Envelope.Data, &cm)
		if cm.Message == "TrEe" {
			sawRawWord = true
		}
		if cm.Message != "TrEe" && cm.Message != "" {
			sawNotice = true
		}
	}
	if sawRawWord {
		t.Fatal("raw guess text must never be rebroadcast on a correct guess")
	}
	if !sawNotice {
		t.Fatal("expected a canned correct-guess notice")
	}
	if l.State != StateLobby {
		t.Fatalf("state = %v, want Lobby after the only guesser guessed correctly", l.State)
	}

	pu := playerUpdateFrom(t, res)
	for _, p := range pu.Players {
		if p.Drawing || p.Playing || p.Ready || p.GuessedWord {
			t.Fatalf("expected all flags false after round end, got %+v", p)
		}
	}
}

// S4 — edit-distance near miss is rebroadcast verbatim plus a private notice.
func TestCloseGuessIsRebroadcastWithPrivateNotice(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	ready(t, l, 2, true)
	gameStart(t, l)

	guesser := guesserID(l)
	res := chat(t, l, guesser, "tre")

	sawPrivate := false
	sawBroadcastRaw := false
	for _, ob := range res.Outbound {
		if ob.Envelope.Kind != wire.KindChatMessage {
			continue
		}
		var cm wire.ChatMessage
		json.Unmarshal(ob.Envelope.Data, &cm)
		if len(ob.Recipients) == 1 && ob.Recipients[0] == guesser {
			sawPrivate = true
		}
		if len(ob.Recipients) == 0 && cm.Message == "tre" {
			sawBroadcastRaw = true
		}
	}
	if !sawPrivate {
		t.Fatal("expected a private close-guess notice")
	}
	if !sawBroadcastRaw {
		t.Fatal("expected the raw near-miss text rebroadcast to everyone")
	}
	if l.State != StateInGame {
		t.Fatal("a near miss must not end the round")
	}
}

// Spectator/drawer/already-guessed chat attempts must not broadcast state.
func TestDrawerCannotChat(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	ready(t, l, 2, true)
	gameStart(t, l)

	drawer := drawerID(l)
	res := chat(t, l, drawer, "tree")

	if len(res.Outbound) != 1 {
		t.Fatalf("expected exactly one private notice, got %d messages", len(res.Outbound))
	}
	if res.Outbound[0].Recipients == nil || res.Outbound[0].Recipients[0] != drawer {
		t.Fatal("expected the notice to be private to the drawer")
	}
}

// S5 — drawer disconnect ends the round.
func TestDrawerDisconnectEndsRound(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	ready(t, l, 2, true)
	gameStart(t, l)

	drawer := drawerID(l)
	res := disconnect(t, l, drawer)

	if l.State != StateLobby {
		t.Fatalf("state = %v, want Lobby after drawer disconnect", l.State)
	}
	if len(l.Players) != 1 {
		t.Fatalf("expected 1 remaining player, got %d", len(l.Players))
	}
	pu := playerUpdateFrom(t, res)
	for _, p := range pu.Players {
		if p.Drawing || p.Playing || p.Ready || p.GuessedWord {
			t.Fatalf("expected remaining player's flags cleared, got %+v", p)
		}
	}
}

// S6 — timer expiration ends the round and the lobby accepts ready-ups again.
func TestTimeUpEndsRoundAndLobbyAcceptsReadyAgain(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	ready(t, l, 2, true)
	gameStart(t, l)

	res := l.Apply(wire.Envelope{Kind: wire.KindTimeUp})
	if l.State != StateLobby {
		t.Fatalf("state = %v, want Lobby after time_up", l.State)
	}
	if !res.ResetStartGate {
		t.Fatal("expected time_up to reset the start gate")
	}

	ready(t, l, 1, true)
	res = ready(t, l, 2, true)
	if !res.ArmStartTimer {
		t.Fatal("expected the lobby to accept a fresh ready-up after the round ended")
	}
}

// Tick decrements TimeLeft and forces a broadcast without altering game state otherwise.
func TestTickDecrementsTimeLeft(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	ready(t, l, 2, true)
	gameStart(t, l)

	before := l.TimeLeft
	res := l.Apply(wire.Envelope{Kind: wire.KindTick})
	if l.TimeLeft != before-1 {
		t.Fatalf("TimeLeft = %d, want %d", l.TimeLeft, before-1)
	}
	found := false
	for _, ob := range res.Outbound {
		if ob.Envelope.Kind == wire.KindGameState {
			found = true
		}
	}
	if !found {
		t.Fatal("expected tick to produce a game_state broadcast")
	}
}

// S7 — capacity: a sixth player cannot join a full lobby (manager's job to
// route them elsewhere, which it does by counting registered outboxes);
// lobbystate itself only exposes Full().
func TestFullReportsCapacity(t *testing.T) {
	l := newTestLobby(t, "tree")
	for i := int64(1); i <= Capacity; i++ {
		join(t, l, i, "p")
	}
	if !l.Full() {
		t.Fatal("expected lobby to report full at capacity")
	}
}

// Multi-round supplement: after Rounds rounds, a game_over fires and scores reset.
func TestGameOverFiresAfterConfiguredRounds(t *testing.T) {
	l := New(newTestWords(t, "one", "two"), scoring.EqualAward{FullReward: 10}, scoring.EqualAward{FullReward: 10}, 1)
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	ready(t, l, 2, true)
	gameStart(t, l)

	res := chat(t, l, guesserID(l), l.Word)

	sawGameOver := false
	for _, ob := range res.Outbound {
		if ob.Envelope.Kind == wire.KindGameOver {
			sawGameOver = true
		}
	}
	if !sawGameOver {
		t.Fatal("expected game_over after the configured number of rounds")
	}
	for _, p := range l.Players {
		if p.Score != 0 {
			t.Fatalf("expected scores reset to 0 after game_over, got %+v", p)
		}
	}
	if l.RoundNumber != 0 {
		t.Fatalf("RoundNumber = %d, want 0 after game_over", l.RoundNumber)
	}
}

// Invariant: outside InGame, every player's round flags are false.
func TestFlagsClearedOutsideRound(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	for _, p := range l.Players {
		if p.Drawing || p.Playing || p.Ready || p.GuessedWord {
			t.Fatalf("expected a freshly joined player to have all flags false, got %+v", p)
		}
	}
}

// Idempotence: readying up twice while already Starting does not re-arm.
func TestReadyIdempotentWhileStarting(t *testing.T) {
	l := newTestLobby(t, "tree")
	join(t, l, 1, "alice")
	join(t, l, 2, "bob")
	ready(t, l, 1, true)
	res := ready(t, l, 2, true)
	if !res.ArmStartTimer {
		t.Fatal("expected first all-ready transition to arm the timer")
	}
	res = ready(t, l, 2, true)
	if res.ArmStartTimer {
		t.Fatal("expected a repeat ready message while already Starting not to re-arm")
	}
}
