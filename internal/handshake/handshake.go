// Package handshake performs the anonymous X25519 key agreement and the
// initial client-id/username exchange that precedes record framing on a
// new connection. It has no authentication: a network adversary can
// substitute keys. That is a deliberate non-goal — the encryption
// protects only against passive observers of the local session.
package handshake

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// PublicKeySize is the length, in bytes, of an X25519 public key.
const PublicKeySize = curve25519.PointSize

// ClientIDSize is the length, in bytes, of the server-assigned client id.
const ClientIDSize = 8

// Result holds everything a connection needs once the handshake completes.
type Result struct {
	ClientID int64
	Username string
	AEAD     cipher

	// Reader is the buffered reader Run used to read the client's half of
	// the handshake. The session actor must keep reading records from this
	// reader rather than from conn directly, since bufio.Reader may already
	// hold bytes of the first record read past the username line.
	Reader *bufio.Reader
}

// cipher is the subset of cipher.AEAD the handshake hands back; declared
// locally so callers don't need a crypto/cipher import just to receive it.
type cipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// Run executes the server side of the handshake:
//  1. generate an ephemeral key pair for this connection
//  2. write the server public key, then the assigned client id
//  3. read the client public key, then one `\n`-terminated username line
//  4. derive the shared secret via X25519; its raw bytes become the AEAD key
func Run(conn net.Conn, clientID int64) (*Result, error) {
	var serverPriv [32]byte
	if _, err := rand.Read(serverPriv[:]); err != nil {
		return nil, fmt.Errorf("handshake: generating private key: %w", err)
	}
	serverPub, err := curve25519.X25519(serverPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("handshake: deriving public key: %w", err)
	}

	if _, err := conn.Write(serverPub); err != nil {
		return nil, fmt.Errorf("handshake: writing server public key: %w", err)
	}

	var idBuf [ClientIDSize]byte
	putBigEndian64(idBuf[:], clientID)
	if _, err := conn.Write(idBuf[:]); err != nil {
		return nil, fmt.Errorf("handshake: writing client id: %w", err)
	}

	reader := bufio.NewReader(conn)

	clientPub := make([]byte, PublicKeySize)
	if _, err := io.ReadFull(reader, clientPub); err != nil {
		return nil, fmt.Errorf("handshake: reading client public key: %w", err)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("handshake: reading username: %w", err)
	}
	username := strings.TrimSpace(line)

	shared, err := curve25519.X25519(serverPriv[:], clientPub)
	if err != nil {
		return nil, fmt.Errorf("handshake: deriving shared secret: %w", err)
	}

	aead, err := chacha20poly1305.New(shared)
	if err != nil {
		return nil, fmt.Errorf("handshake: creating aead: %w", err)
	}

	return &Result{ClientID: clientID, Username: username, AEAD: aead, Reader: reader}, nil
}

func putBigEndian64(b []byte, v int64) {
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
}
