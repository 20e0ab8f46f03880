// Package lobbystate holds the authoritative per-lobby game data and the
// pure transition function that turns one inbound message into zero or
// more outbound messages. It does no I/O and takes no locks: a Lobby is
// only ever touched from the single goroutine of its owning lobby actor,
// so plain fields and plain slices are correct here, not sync.Map or
// mutex-guarded accessors.
package lobbystate

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/udisondev/scribbleserver/internal/guessclassify"
	"github.com/udisondev/scribbleserver/internal/scoring"
	"github.com/udisondev/scribbleserver/internal/wire"
	"github.com/udisondev/scribbleserver/internal/wordlist"
)

// State is one of the four round-lifecycle phases.
type State int

const (
	StateLobby State = iota
	StateStarting
	StateInGame
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "Lobby"
	case StateStarting:
		return "Starting"
	case StateInGame:
		return "InGame"
	case StateEnding:
		return "Ending"
	default:
		return "Unknown"
	}
}

// Player is one lobby participant.
type Player struct {
	ID          int64
	Name        string
	Score       int
	Ready       bool
	Drawing     bool
	Playing     bool
	GuessedWord bool
}

func (p *Player) view() wire.PlayerView {
	return wire.PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		Score:       p.Score,
		Ready:       p.Ready,
		Drawing:     p.Drawing,
		Playing:     p.Playing,
		GuessedWord: p.GuessedWord,
	}
}

// Outbound is one message this Apply call produced, along with who should
// receive it. A nil or empty Recipients means "every current player."
type Outbound struct {
	Recipients []int64
	Envelope   wire.Envelope
}

// Result is everything a single Apply call can ask the lobby actor to do
// beyond relaying messages: arm or tear down timers, and drop outboxes
// for players this call removed from the roster.
type Result struct {
	Outbound         []Outbound
	ArmStartTimer    bool
	ArmTickTimer     bool
	CancelTickTimer  bool
	ResetStartGate   bool
	RemovedPlayerIDs []int64
}

// Capacity is the maximum number of players a single lobby may hold.
const Capacity = 5

// DefaultRoundSeconds is the duration of one round's timer.
const DefaultRoundSeconds = 500

// Lobby is the authoritative state of one game session.
type Lobby struct {
	State State

	Players []*Player

	Word       string
	WordLength int
	TimeLeft   int
	Lines      []wire.Line

	Rounds      int
	RoundNumber int
	DrawOrder   []int64

	RoundSeconds int
	Words        *wordlist.List
	GuesserAward scoring.GuesserAward
	DrawerAward  scoring.DrawerAward

	// MaxPlayers overrides Capacity for this lobby; zero means use Capacity.
	MaxPlayers int
}

// New constructs an empty lobby ready to accept players.
func New(words *wordlist.List, guesser scoring.GuesserAward, drawer scoring.DrawerAward, rounds int) *Lobby {
	if rounds <= 0 {
		rounds = 3
	}
	return &Lobby{
		State:        StateLobby,
		RoundSeconds: DefaultRoundSeconds,
		Words:        words,
		GuesserAward: guesser,
		DrawerAward:  drawer,
		Rounds:       rounds,
	}
}

// Full reports whether the lobby is at capacity.
func (l *Lobby) Full() bool { return len(l.Players) >= l.capacity() }

func (l *Lobby) capacity() int {
	if l.MaxPlayers > 0 {
		return l.MaxPlayers
	}
	return Capacity
}

func (l *Lobby) findPlayer(id int64) *Player {
	for _, p := range l.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (l *Lobby) allReady() bool {
	if len(l.Players) == 0 {
		return false
	}
	for _, p := range l.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (l *Lobby) playingNonDrawers() []*Player {
	var out []*Player
	for _, p := range l.Players {
		if p.Playing && !p.Drawing {
			out = append(out, p)
		}
	}
	return out
}

func (l *Lobby) allNonDrawersGuessed() bool {
	for _, p := range l.playingNonDrawers() {
		if !p.GuessedWord {
			return false
		}
	}
	return true
}

// Apply advances the lobby by one inbound message and returns what the
// lobby actor must relay and arrange.
func (l *Lobby) Apply(msg wire.Envelope) Result {
	var res Result
	broadcastState := false

	switch msg.Kind {
	case wire.KindUserInit:
		var p wire.UserInit
		if json.Unmarshal(msg.Data, &p) == nil {
			l.Players = append(l.Players, &Player{ID: p.ID, Name: strings.TrimSpace(p.Username)})
			broadcastState = true
		}

	case wire.KindReady:
		var r wire.Ready
		if json.Unmarshal(msg.Data, &r) == nil {
			if p := l.findPlayer(r.ID); p != nil {
				p.Ready = r.Ready
				broadcastState = true
				if l.State == StateLobby && l.allReady() && len(l.Players) >= 2 {
					l.State = StateStarting
					res.ArmStartTimer = true
				} else if l.State == StateStarting && !(l.allReady() && len(l.Players) >= 2) {
					l.State = StateLobby
				}
			}
		}

	case wire.KindChatMessage:
		var c wire.ChatMessage
		if json.Unmarshal(msg.Data, &c) == nil {
			out, changed, ended := l.handleChat(c)
			res.Outbound = append(res.Outbound, out...)
			if changed {
				// Broadcast the guess's immediate effect (score, guessed_word)
				// before any round-end reset below overwrites this state.
				res.Outbound = append(res.Outbound, l.gameStateOutbound()...)
				res.Outbound = append(res.Outbound, l.playerUpdateOutbound())
			}
			if ended {
				res.Outbound = append(res.Outbound, l.endRound()...)
				res.CancelTickTimer = true
				res.ResetStartGate = true
			}
		}

	case wire.KindAddLine:
		var a wire.AddLine
		if json.Unmarshal(msg.Data, &a) == nil {
			if p := l.findPlayer(a.ID); p != nil && l.State == StateInGame && p.Drawing {
				l.Lines = append(l.Lines, a.Line)
				res.Outbound = append(res.Outbound, Outbound{Envelope: msg})
			}
		}

	case wire.KindClearAllLines:
		var c wire.ClearAllLines
		if json.Unmarshal(msg.Data, &c) == nil {
			if p := l.findPlayer(c.ID); p != nil && l.State == StateInGame && p.Drawing {
				l.Lines = nil
				res.Outbound = append(res.Outbound, Outbound{Envelope: msg})
			}
		}

	case wire.KindClearLastLine:
		var c wire.ClearLastLine
		if json.Unmarshal(msg.Data, &c) == nil {
			if p := l.findPlayer(c.ID); p != nil && l.State == StateInGame && p.Drawing {
				if n := len(l.Lines); n > 0 {
					l.Lines = l.Lines[:n-1]
				}
				res.Outbound = append(res.Outbound, Outbound{Envelope: msg})
			}
		}

	case wire.KindDisconnect:
		var d wire.Disconnect
		if json.Unmarshal(msg.Data, &d) == nil {
			if p := l.findPlayer(d.ID); p != nil {
				wasDrawer := p.Drawing
				l.removePlayer(d.ID)
				res.RemovedPlayerIDs = append(res.RemovedPlayerIDs, d.ID)
				if l.State == StateStarting && !(len(l.Players) >= 2) {
					l.State = StateLobby
				}
				if l.State == StateInGame && (wasDrawer || len(l.Players) < 2) {
					// Broadcast the roster without the departed player first,
					// then the round-end reset as a second, distinct update.
					res.Outbound = append(res.Outbound, l.gameStateOutbound()...)
					res.Outbound = append(res.Outbound, l.playerUpdateOutbound())
					res.Outbound = append(res.Outbound, l.endRound()...)
					res.CancelTickTimer = true
					res.ResetStartGate = true
				} else {
					broadcastState = true
				}
			}
		}

	case wire.KindPing:
		// No state effect.

	case wire.KindUpdateRequested:
		broadcastState = true

	case wire.KindTimeUp:
		if l.State == StateInGame {
			res.Outbound = append(res.Outbound, l.endRound()...)
			res.ResetStartGate = true
		}

	case wire.KindTick:
		if l.State == StateInGame {
			l.TimeLeft--
			broadcastState = true
		}

	case wire.KindGameStart:
		if l.State == StateStarting && l.allReady() && len(l.Players) >= 2 {
			l.startGame()
			broadcastState = true
			res.ArmTickTimer = true
		} else if l.State != StateInGame {
			// The countdown fired but the lobby no longer qualifies: drop
			// back to Lobby and free the gate so a later ready-up can arm a
			// fresh countdown.
			l.State = StateLobby
			res.ResetStartGate = true
		}
	}

	if broadcastState {
		res.Outbound = append(res.Outbound, l.gameStateOutbound()...)
		res.Outbound = append(res.Outbound, l.playerUpdateOutbound())
	}

	return res
}

func (l *Lobby) removePlayer(id int64) {
	for i, p := range l.Players {
		if p.ID == id {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			break
		}
	}
	for i, pid := range l.DrawOrder {
		if pid == id {
			l.DrawOrder = append(l.DrawOrder[:i], l.DrawOrder[i+1:]...)
			break
		}
	}
}

// handleChat classifies one chat line and returns the messages to relay,
// whether a game_state/player_update pair should follow (every case except
// a private refusal notice to a spectator, the drawer or a player who has
// already guessed), and whether the round just ended.
func (l *Lobby) handleChat(c wire.ChatMessage) (out []Outbound, changed, roundEnded bool) {
	sender := l.findPlayer(c.ID)
	if sender == nil {
		return nil, false, false
	}

	if l.State != StateInGame {
		return []Outbound{l.chat(c)}, true, false
	}

	if !sender.Playing {
		return []Outbound{l.notice(sender.ID, "Spectators may not chat.")}, false, false
	}
	if sender.Drawing {
		return []Outbound{l.notice(sender.ID, "The drawer may not chat.")}, false, false
	}
	if sender.GuessedWord {
		return []Outbound{l.notice(sender.ID, "You already guessed correctly.")}, false, false
	}

	switch guessclassify.Classify(c.Message, l.Word) {
	case guessclassify.Correct:
		sender.GuessedWord = true
		l.awardCorrectGuess(sender)
		out = append(out, l.notice(0, sender.Name+" guessed the word correctly!"))
		return out, true, l.allNonDrawersGuessed()
	case guessclassify.Close:
		out = append(out, l.notice(sender.ID, "'"+c.Message+"' is close!"))
		out = append(out, l.chat(c))
		return out, true, false
	default:
		out = append(out, l.chat(c))
		return out, true, false
	}
}

func (l *Lobby) awardCorrectGuess(guesser *Player) {
	nonDrawers := l.playingNonDrawers()
	already := 0
	for _, p := range nonDrawers {
		if p.GuessedWord && p != guesser {
			already++
		}
	}
	if l.GuesserAward != nil {
		guesser.Score += l.GuesserAward.AwardGuesser(len(nonDrawers), already, secondsToDuration(l.TimeLeft))
	}
	if l.DrawerAward != nil {
		if drawer := l.drawer(); drawer != nil {
			drawer.Score += l.DrawerAward.AwardDrawer(len(nonDrawers), already, secondsToDuration(l.TimeLeft))
		}
	}
}

func (l *Lobby) drawer() *Player {
	for _, p := range l.Players {
		if p.Drawing {
			return p
		}
	}
	return nil
}

func (l *Lobby) chat(c wire.ChatMessage) Outbound {
	env, _ := wire.Encode(wire.KindChatMessage, c)
	return Outbound{Envelope: env}
}

func (l *Lobby) notice(recipient int64, text string) Outbound {
	env, _ := wire.Encode(wire.KindChatMessage, wire.ChatMessage{ID: 0, Message: text})
	if recipient == 0 {
		return Outbound{Envelope: env}
	}
	return Outbound{Recipients: []int64{recipient}, Envelope: env}
}

// startGame performs the Starting -> InGame transition: pick a word, pick
// or advance to the next drawer, reset every player's round flags.
func (l *Lobby) startGame() {
	l.State = StateInGame
	l.Lines = nil
	l.TimeLeft = l.RoundSeconds
	l.Word = l.Words.Next()
	l.WordLength = len([]rune(l.Word))
	l.RoundNumber++

	if len(l.DrawOrder) == 0 {
		l.DrawOrder = make([]int64, len(l.Players))
		for i, p := range l.Players {
			l.DrawOrder[i] = p.ID
		}
		rand.Shuffle(len(l.DrawOrder), func(i, j int) {
			l.DrawOrder[i], l.DrawOrder[j] = l.DrawOrder[j], l.DrawOrder[i]
		})
	}

	drawerID := l.nextDrawerID()

	for _, p := range l.Players {
		p.Playing = true
		p.Ready = false
		p.GuessedWord = false
		p.Drawing = p.ID == drawerID
	}
}

// nextDrawerID pops the front of DrawOrder, or falls back to a uniform
// random pick over current players if DrawOrder is empty or stale (every
// candidate in it has since disconnected).
func (l *Lobby) nextDrawerID() int64 {
	for len(l.DrawOrder) > 0 {
		id := l.DrawOrder[0]
		l.DrawOrder = l.DrawOrder[1:]
		if l.findPlayer(id) != nil {
			return id
		}
	}
	if len(l.Players) == 0 {
		return 0
	}
	return l.Players[rand.IntN(len(l.Players))].ID
}

// endRound performs the InGame/Starting -> Ending -> Lobby transition and,
// when this was the final round of a game, an additional game_over summary.
func (l *Lobby) endRound() []Outbound {
	l.State = StateEnding

	var out []Outbound
	var gameOverMsg *Outbound
	gameOver := l.RoundNumber >= l.Rounds && l.Rounds > 0

	if gameOver {
		scores := make([]wire.ScoreLine, len(l.Players))
		for i, p := range l.Players {
			scores[i] = wire.ScoreLine{ID: p.ID, Name: p.Name, Score: p.Score}
		}
		env, _ := wire.Encode(wire.KindGameOver, wire.GameOver{Scores: scores, Rounds: l.Rounds})
		gameOverMsg = &Outbound{Envelope: env}
		for _, p := range l.Players {
			p.Score = 0
		}
		l.RoundNumber = 0
		l.DrawOrder = nil
	}

	l.State = StateLobby
	l.Word = ""
	l.WordLength = 0
	l.TimeLeft = 0
	l.Lines = nil
	for _, p := range l.Players {
		p.Playing = false
		p.Ready = false
		p.Drawing = false
		p.GuessedWord = false
	}

	out = append(out, l.gameStateOutbound()...)
	out = append(out, l.playerUpdateOutbound())
	if gameOverMsg != nil {
		out = append(out, *gameOverMsg)
	}
	return out
}

// gameStateOutbound returns one targeted message per player, filtering the
// secret word out of every recipient's view except the drawer's.
func (l *Lobby) gameStateOutbound() []Outbound {
	if len(l.Players) == 0 {
		return nil
	}
	out := make([]Outbound, 0, len(l.Players))
	for _, p := range l.Players {
		view := wire.GameStateView{
			InGame:     l.State == StateInGame,
			WordLength: l.WordLength,
			Time:       l.TimeLeft,
		}
		if p.Drawing {
			view.Word = l.Word
		}
		env, _ := wire.Encode(wire.KindGameState, wire.GameState{GameState: view})
		out = append(out, Outbound{Recipients: []int64{p.ID}, Envelope: env})
	}
	return out
}

func (l *Lobby) playerUpdateOutbound() Outbound {
	views := make([]wire.PlayerView, len(l.Players))
	for i, p := range l.Players {
		views[i] = p.view()
	}
	env, _ := wire.Encode(wire.KindPlayerUpdate, wire.PlayerUpdate{Players: views})
	return Outbound{Envelope: env}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
