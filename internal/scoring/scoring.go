// Package scoring implements the pluggable point-award strategies applied
// when a player correctly guesses the word, and when the round's drawer
// is paid out for having been guessed.
//
// Each strategy is a stateless value; a lobby picks one guesser strategy
// and one drawer strategy at construction and calls them once per correct
// guess. None of them read or write a Player directly — they return the
// point delta the caller adds to a score, keeping the math easy to test
// in isolation.
package scoring

import (
	"math"
	"time"
)

// GuesserAward computes the points earned by a player who just guessed the
// word correctly. playersAlreadyGuessed counts players who guessed
// correctly strictly before this one, starting at 0.
type GuesserAward interface {
	AwardGuesser(numGuessers, playersAlreadyGuessed int, timeLeft time.Duration) int
}

// DrawerAward computes the points earned by the round's drawer for one
// additional correct guess landing. playersAlreadyGuessed follows the same
// convention as GuesserAward.
type DrawerAward interface {
	AwardDrawer(numGuessers, playersAlreadyGuessed int, timeLeft time.Duration) int
}

// EqualAward pays every guesser the same flat amount, and splits a fixed
// pool evenly across guessers for the drawer.
type EqualAward struct {
	FullReward int
}

func (s EqualAward) AwardGuesser(_, _ int, _ time.Duration) int {
	return s.FullReward
}

func (s EqualAward) AwardDrawer(numGuessers, _ int, _ time.Duration) int {
	if numGuessers == 0 {
		return 0
	}
	return s.FullReward / numGuessers
}

// TimeBasedAward scales the reward by the fraction of the round's time
// remaining: guessing immediately after the round starts is worth close to
// FullReward, guessing right before time runs out is worth close to zero.
type TimeBasedAward struct {
	FullReward  int
	InitialTime time.Duration
}

func (s TimeBasedAward) AwardGuesser(_, _ int, timeLeft time.Duration) int {
	if s.InitialTime <= 0 {
		return 0
	}
	fraction := float64(timeLeft) / float64(s.InitialTime)
	return int(fraction * float64(s.FullReward))
}

func (s TimeBasedAward) AwardDrawer(numGuessers, _ int, timeLeft time.Duration) int {
	if s.InitialTime <= 0 || numGuessers == 0 {
		return 0
	}
	fraction := float64(timeLeft) / float64(s.InitialTime)
	return int(fraction * (float64(s.FullReward) / float64(numGuessers)))
}

// LinearDecreasingAward pays the first guesser FullReward and each
// subsequent guesser one FullReward/numGuessers share less. playersAlreadyGuessed
// is the count of players who guessed correctly strictly before this one
// (0 for the first guesser), the same convention every strategy in this
// package uses.
type LinearDecreasingAward struct {
	FullReward int
}

func (s LinearDecreasingAward) AwardGuesser(numGuessers, playersAlreadyGuessed int, _ time.Duration) int {
	if numGuessers == 0 {
		return 0
	}
	perPosition := s.FullReward / numGuessers
	return s.FullReward - perPosition*playersAlreadyGuessed
}

// ExponentialDecreasingAward pays a geometrically shrinking share of
// FullReward to each successive guesser.
type ExponentialDecreasingAward struct {
	FullReward        int
	DecreasePerPlayer float64
}

func (s ExponentialDecreasingAward) AwardGuesser(_, playersAlreadyGuessed int, _ time.Duration) int {
	factor := math.Pow(1.0-s.DecreasePerPlayer, float64(playersAlreadyGuessed))
	return int(math.Round(float64(s.FullReward) * factor))
}

// ExponentialIncreasingAward pays the drawer a geometrically growing share
// as more players guess correctly: LastReward scaled by
// (1-IncreasePerPlayer)^(numGuessers-playersAlreadyGuessed), so the final
// guess pays LastReward*(1-IncreasePerPlayer) and no guess pays LastReward
// in full. It intentionally does not sum to exactly LastReward across all
// positions.
type ExponentialIncreasingAward struct {
	LastReward        int
	IncreasePerPlayer float64
}

func (s ExponentialIncreasingAward) AwardDrawer(numGuessers, playersAlreadyGuessed int, _ time.Duration) int {
	remaining := numGuessers - playersAlreadyGuessed
	factor := math.Pow(1.0-s.IncreasePerPlayer, float64(remaining))
	return int(math.Round(float64(s.LastReward) * factor))
}
