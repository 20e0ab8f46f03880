// Package manager accepts incoming TCP connections, runs each through the
// handshake, and assigns the resulting player to a lobby with free
// capacity — creating a fresh one if every existing lobby is full.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/scribbleserver/internal/handshake"
	"github.com/udisondev/scribbleserver/internal/lobbyactor"
	"github.com/udisondev/scribbleserver/internal/lobbystate"
	"github.com/udisondev/scribbleserver/internal/scoring"
	"github.com/udisondev/scribbleserver/internal/session"
	"github.com/udisondev/scribbleserver/internal/wire"
	"github.com/udisondev/scribbleserver/internal/wordlist"
)

// keepAlivePeriod is how often the OS probes an idle connection to detect
// a dead peer.
const keepAlivePeriod = 30 * time.Second

// Config holds everything a Manager needs to build new lobbies on demand.
type Config struct {
	Words          *wordlist.List
	GuesserAward   scoring.GuesserAward
	DrawerAward    scoring.DrawerAward
	Rounds         int
	RoundSeconds   int
	StartCountdown time.Duration
	LobbyCapacity  int
}

// lobbyEntry is one live lobby tracked by the manager.
type lobbyEntry struct {
	id    int64
	actor *lobbyactor.Actor
}

// Manager accepts connections and fans them out across lobbies.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu          sync.RWMutex
	lobbies     map[int64]*lobbyEntry
	nextLobbyID atomic.Int64

	nextClientID atomic.Int64
}

// New constructs a Manager. cfg.Words must already be loaded.
func New(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RoundSeconds <= 0 {
		cfg.RoundSeconds = lobbystate.DefaultRoundSeconds
	}
	if cfg.StartCountdown <= 0 {
		cfg.StartCountdown = lobbyactor.StartCountdown
	}
	if cfg.LobbyCapacity <= 0 {
		cfg.LobbyCapacity = lobbystate.Capacity
	}
	return &Manager{cfg: cfg, log: log, lobbies: make(map[int64]*lobbyEntry)}
}

// Serve runs the accept loop against ln until ctx is cancelled.
func (m *Manager) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			m.log.Error("accept failed", "error", err)
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := tcpConn.SetKeepAlive(true); err != nil {
				m.log.Warn("set keepalive failed", "error", err)
			}
			if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
				m.log.Warn("set keepalive period failed", "error", err)
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			m.handleConnection(ctx, conn)
		}()
	}

	wg.Wait()
	return nil
}

func (m *Manager) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	clientID := m.nextClientID.Add(1)

	res, err := handshake.Run(conn, clientID)
	if err != nil {
		m.log.Warn("handshake failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	entry := m.assignLobby(ctx)

	outbox := entry.actor.Register(clientID)

	init, err := wire.Encode(wire.KindUserInit, wire.UserInit{ID: clientID, Username: res.Username})
	if err != nil {
		m.log.Error("encode user_init failed", "client", clientID, "error", err)
		return
	}
	select {
	case entry.actor.Inbound <- init:
	case <-ctx.Done():
		return
	}

	sess := session.New(conn, clientID, res.AEAD, entry.actor.Inbound, outbox, m.log)
	if err := sess.Run(ctx, res.Reader); err != nil && !session.IsClosed(err) {
		m.log.Debug("connection ended", "client", clientID, "error", err)
	}
}

// assignLobby returns a lobby with free capacity, starting a new one if
// every existing lobby is full. Holds the lobby list lock only briefly, per
// the no-global-mutable-singleton rule: the lock guards list membership,
// never gameplay state.
func (m *Manager) assignLobby(ctx context.Context) *lobbyEntry {
	m.mu.RLock()
	for _, e := range m.lobbies {
		if e.actor.PlayerCount() < m.cfg.LobbyCapacity {
			m.mu.RUnlock()
			return e
		}
	}
	m.mu.RUnlock()

	lobby := lobbystate.New(m.cfg.Words, m.cfg.GuesserAward, m.cfg.DrawerAward, m.cfg.Rounds)
	lobby.MaxPlayers = m.cfg.LobbyCapacity
	if m.cfg.RoundSeconds > 0 {
		lobby.RoundSeconds = m.cfg.RoundSeconds
	}
	actor := lobbyactor.New(lobby, m.log)
	actor.SetStartCountdown(m.cfg.StartCountdown)

	g, _ := lobbyactor.RunGroup(ctx, actor)
	entry := &lobbyEntry{id: m.nextLobbyID.Add(1), actor: actor}

	m.mu.Lock()
	m.lobbies[entry.id] = entry
	m.mu.Unlock()

	go func() {
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			m.log.Error("lobby actor exited unexpectedly", "error", err)
		}
		m.removeLobby(entry.id)
	}()

	return entry
}

func (m *Manager) removeLobby(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lobbies, id)
}

// LobbyCount reports the current number of live lobbies, for diagnostics.
func (m *Manager) LobbyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lobbies)
}

// Listen is a convenience wrapper that binds addr and calls Serve.
func (m *Manager) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("manager: listening on %s: %w", addr, err)
	}
	return m.Serve(ctx, ln)
}
