// Package session runs the per-connection actor: one goroutine per client
// that reads records off the socket, forwards decoded envelopes to its
// lobby's inbound channel, and drains its own outbox back onto the same
// socket. A single goroutine handles both directions rather than a
// dedicated writer, since this protocol's message rate is low enough that
// head-of-line blocking on an outbound write is not a concern.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/udisondev/scribbleserver/internal/wire"
	"github.com/udisondev/scribbleserver/internal/wirecodec"
)

const (
	// readDeadline is how long a single read blocks before the loop comes
	// back around to check the outbox and the keep-alive deadline.
	readDeadline = 20 * time.Millisecond
	// idleTimeout is how long without an inbound record before a
	// keep-alive ping is sent.
	idleTimeout = 15 * time.Second
)

// errOutboxClosed signals that the lobby actor removed this player's
// outbox (on any disconnect it processed for this player, including one it
// queued itself after finding the outbox full), so the read loop should
// stop rather than keep decoding.
var errOutboxClosed = errors.New("session: outbox closed by lobby")

// cipherAEAD is the subset of cipher.AEAD session needs.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// Conn owns one client connection: its socket, its AEAD state, a send-only
// view of the owning lobby's inbound channel, and the receive end of the
// outbox the lobby actor registered for this client.
type Conn struct {
	conn         net.Conn
	aead         cipherAEAD
	clientID     int64
	lobbyInbound chan<- wire.Envelope
	outbox       <-chan wire.Envelope

	lastInbound atomic.Int64

	log *slog.Logger
}

// New constructs a connection actor. reader is the stream to decode records
// from — typically the bufio.Reader the handshake already consumed client
// bytes out of, not conn directly. outbox is the receive end the owning
// lobby actor's Register(clientID) returned.
func New(conn net.Conn, clientID int64, aead cipherAEAD, lobbyInbound chan<- wire.Envelope, outbox <-chan wire.Envelope, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	c := &Conn{
		conn:         conn,
		aead:         aead,
		clientID:     clientID,
		lobbyInbound: lobbyInbound,
		outbox:       outbox,
		log:          log,
	}
	c.lastInbound.Store(time.Now().UnixNano())
	return c
}

// ClientID returns the id this connection was assigned at handshake.
func (c *Conn) ClientID() int64 { return c.clientID }

// Run drives the connection until ctx is cancelled or the socket fails. It
// always synthesizes a disconnect envelope into the lobby before returning.
func (c *Conn) Run(ctx context.Context, reader recordReader) error {
	defer c.postDisconnect()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.drainOutbox(); err != nil {
			return err
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return fmt.Errorf("session: set read deadline: %w", err)
		}

		env, err := wirecodec.Decode[wire.Envelope](reader, c.aead)
		if err != nil {
			if wirecodec.IsWouldBlock(err) {
				if err := c.checkIdle(); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("session: decode: %w", err)
		}

		c.lastInbound.Store(time.Now().UnixNano())
		c.forward(env)
	}
}

// recordReader is the io.Reader wirecodec.Decode needs; named here so Run's
// signature documents that it must be the handshake's leftover reader.
type recordReader interface {
	Read(p []byte) (int, error)
}

func (c *Conn) forward(env wire.Envelope) {
	select {
	case c.lobbyInbound <- env:
	default:
		c.log.Warn("lobby inbound full, dropping message", "client", c.clientID, "kind", env.Kind)
	}
}

func (c *Conn) drainOutbox() error {
	for {
		select {
		case env, ok := <-c.outbox:
			if !ok {
				return errOutboxClosed
			}
			if err := wirecodec.Write(c.conn, env, c.aead); err != nil {
				return fmt.Errorf("session: write: %w", err)
			}
		default:
			return nil
		}
	}
}

func (c *Conn) checkIdle() error {
	last := time.Unix(0, c.lastInbound.Load())
	if time.Since(last) < idleTimeout {
		return nil
	}
	ping, err := wire.Encode(wire.KindPing, nil)
	if err != nil {
		return fmt.Errorf("session: encode ping: %w", err)
	}
	if err := wirecodec.Write(c.conn, ping, c.aead); err != nil {
		return fmt.Errorf("session: keep-alive write: %w", err)
	}
	c.lastInbound.Store(time.Now().UnixNano())
	return nil
}

func (c *Conn) postDisconnect() {
	env, err := wire.Encode(wire.KindDisconnect, wire.Disconnect{ID: c.clientID})
	if err != nil {
		return
	}
	select {
	case c.lobbyInbound <- env:
	default:
		c.log.Error("lobby inbound full, dropping disconnect", "client", c.clientID)
	}
}

// IsClosed reports whether err comes from this side's shutdown (the socket
// was closed locally, or the context was cancelled), as opposed to a
// protocol-level decode failure or a remote close.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}
