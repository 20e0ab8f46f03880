// Package config assembles the server's tunables from CLI flags and an
// optional YAML overlay: sensible defaults first, then a YAML file
// overlaid on top if one is given, with flags always winning over the
// file for the handful of settings the CLI contract names directly.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/scribbleserver/internal/lobbystate"
	"github.com/udisondev/scribbleserver/internal/scoring"
)

// ScoringStrategy names one of the selectable reward strategy pairs.
type ScoringStrategy string

const (
	ScoringEqual       ScoringStrategy = "equal"
	ScoringTimeBased   ScoringStrategy = "time"
	ScoringLinear      ScoringStrategy = "linear"
	ScoringExponential ScoringStrategy = "exponential"
)

// Overlay is the subset of Config a YAML file may override. It mirrors
// Config's tunable fields, not its CLI-only ones (Port and WordsPath always
// come from flags, per spec.md's CLI contract).
type Overlay struct {
	LobbyCapacity    int     `yaml:"lobby_capacity"`
	Rounds           int     `yaml:"rounds"`
	RoundSeconds     int     `yaml:"round_seconds"`
	StartCountdownMS int     `yaml:"start_countdown_ms"`
	Scoring          string  `yaml:"scoring"`
	FullReward       int     `yaml:"full_reward"`
	DrawerReward     int     `yaml:"drawer_reward"`
	DecreasePerGuess float64 `yaml:"decrease_per_guess"`
}

// Config is the fully resolved set of server tunables.
type Config struct {
	Port       int
	WordsPath  string
	ConfigPath string

	LobbyCapacity  int
	Rounds         int
	RoundSeconds   int
	StartCountdown time.Duration
	Scoring        ScoringStrategy

	FullReward       int
	DrawerReward     int
	DecreasePerGuess float64
}

// Default returns a Config that runs out of the box without a YAML file.
func Default() Config {
	return Config{
		Port:             3000,
		WordsPath:        "assets/words.txt",
		LobbyCapacity:    lobbystate.Capacity,
		Rounds:           3,
		RoundSeconds:     lobbystate.DefaultRoundSeconds,
		StartCountdown:   4 * time.Second,
		Scoring:          ScoringEqual,
		FullReward:       100,
		DrawerReward:     50,
		DecreasePerGuess: 0.2,
	}
}

// ParseFlags parses args (typically os.Args[1:]) into a Config, overlaying
// an optional YAML file named by --config before flags are applied, so
// flags always win.
func ParseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Default()

	var configPath string
	fs.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	fs.StringVar(&cfg.WordsPath, "words", cfg.WordsPath, "path to the word list file")
	fs.StringVar(&configPath, "config", "", "optional YAML config overlay")
	scoring := fs.String("scoring", string(cfg.Scoring), "scoring strategy: equal|time|linear|exponential")
	fs.IntVar(&cfg.LobbyCapacity, "lobby-capacity", cfg.LobbyCapacity, "max players per lobby")
	fs.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "rounds per game")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Scoring = ScoringStrategy(*scoring)
	cfg.ConfigPath = configPath

	if configPath != "" {
		overlay, err := loadOverlay(configPath)
		if err != nil {
			return Config{}, err
		}
		applyOverlay(&cfg, overlay)

		// Re-parse so explicit flags still win over the overlay we just
		// applied on top of defaults.
		if err := fs.Parse(args); err != nil {
			return Config{}, err
		}
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "scoring" {
				cfg.Scoring = ScoringStrategy(*scoring)
			}
		})
	}

	return cfg, nil
}

func loadOverlay(path string) (Overlay, error) {
	var ov Overlay
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ov, nil
		}
		return ov, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return ov, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return ov, nil
}

func applyOverlay(cfg *Config, ov Overlay) {
	if ov.LobbyCapacity > 0 {
		cfg.LobbyCapacity = ov.LobbyCapacity
	}
	if ov.Rounds > 0 {
		cfg.Rounds = ov.Rounds
	}
	if ov.RoundSeconds > 0 {
		cfg.RoundSeconds = ov.RoundSeconds
	}
	if ov.StartCountdownMS > 0 {
		cfg.StartCountdown = time.Duration(ov.StartCountdownMS) * time.Millisecond
	}
	if ov.Scoring != "" {
		cfg.Scoring = ScoringStrategy(ov.Scoring)
	}
	if ov.FullReward > 0 {
		cfg.FullReward = ov.FullReward
	}
	if ov.DrawerReward > 0 {
		cfg.DrawerReward = ov.DrawerReward
	}
	if ov.DecreasePerGuess > 0 {
		cfg.DecreasePerGuess = ov.DecreasePerGuess
	}
}

// BuildAwards constructs the guesser/drawer strategy pair named by
// cfg.Scoring.
func (c Config) BuildAwards() (scoring.GuesserAward, scoring.DrawerAward, error) {
	switch c.Scoring {
	case ScoringEqual, "":
		return scoring.EqualAward{FullReward: c.FullReward},
			scoring.EqualAward{FullReward: c.DrawerReward}, nil
	case ScoringTimeBased:
		return scoring.TimeBasedAward{FullReward: c.FullReward, InitialTime: c.RoundSecondsDuration()},
			scoring.TimeBasedAward{FullReward: c.DrawerReward, InitialTime: c.RoundSecondsDuration()}, nil
	case ScoringLinear:
		return scoring.LinearDecreasingAward{FullReward: c.FullReward},
			scoring.EqualAward{FullReward: c.DrawerReward}, nil
	case ScoringExponential:
		return scoring.ExponentialDecreasingAward{FullReward: c.FullReward, DecreasePerPlayer: c.DecreasePerGuess},
			scoring.ExponentialIncreasingAward{LastReward: c.DrawerReward, IncreasePerPlayer: c.DecreasePerGuess}, nil
	default:
		return nil, nil, fmt.Errorf("config: unknown scoring strategy %q", c.Scoring)
	}
}

// RoundSecondsDuration is RoundSeconds as a time.Duration, the unit
// TimeBasedAward expects.
func (c Config) RoundSecondsDuration() time.Duration {
	return time.Duration(c.RoundSeconds) * time.Second
}
