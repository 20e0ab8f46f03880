// Package wordlist loads the candidate word file a lobby draws round
// words from, and hands out words one at a time without repeats until
// the pool is exhausted.
package wordlist

import (
	"bufio"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
)

// List holds the full word set loaded at startup plus the subset not yet
// drawn in the current cycle. Safe for concurrent use; a lobby actor is
// the only expected caller, but Next locks regardless since a word list
// may be shared across several lobbies.
type List struct {
	mu        sync.Mutex
	all       []string
	remaining []string
}

// Load reads one word per line from path. Blank lines and lines starting
// with '#' are skipped; every other line is trimmed and kept verbatim.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wordlist: reading %s: %w", path, err)
	}

	var words []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wordlist: scanning %s: %w", path, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordlist: %s contains no usable words", path)
	}

	l := &List{all: words}
	l.reshuffle()
	return l, nil
}

// Next draws one word at random from the remaining pool, removing it.
// When the pool is empty it reshuffles the full original list back in
// before drawing, so a long-lived lobby never runs dry.
func (l *List) Next() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.remaining) == 0 {
		l.reshuffle()
		slog.Info("wordlist exhausted, reshuffled", "size", len(l.all))
	}

	i := rand.IntN(len(l.remaining))
	word := l.remaining[i]
	l.remaining[i] = l.remaining[len(l.remaining)-1]
	l.remaining = l.remaining[:len(l.remaining)-1]
	return word
}

// reshuffle must be called with mu held.
func (l *List) reshuffle() {
	l.remaining = make([]string, len(l.all))
	copy(l.remaining, l.all)
	rand.Shuffle(len(l.remaining), func(i, j int) {
		l.remaining[i], l.remaining[j] = l.remaining[j], l.remaining[i]
	})
}
