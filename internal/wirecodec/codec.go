// Package wirecodec implements the record framing described by the
// session transport: encrypt, authenticate, frame, and later parse one
// application message over a byte stream.
//
// Record layout on the wire: 8-byte little-endian length, 12-byte nonce,
// AEAD ciphertext whose plaintext is JSON || big-endian CRC32(JSON).
package wirecodec

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the length, in bytes, of the per-record nonce.
	NonceSize = chacha20poly1305.NonceSize
	// ChecksumSize is the length, in bytes, of the trailing CRC32.
	ChecksumSize = 4
	// LengthPrefixSize is the length, in bytes, of the record's length header.
	LengthPrefixSize = 8
	// MaxRecordSize bounds the declared length of a single record. A
	// declared length beyond this is rejected before any further read.
	MaxRecordSize = 1 << 20
)

// ErrorKind classifies why Decode failed.
type ErrorKind int

const (
	// ShortRead means the stream ended or a deadline expired mid-frame,
	// after at least part of the frame had already been consumed. Fatal
	// for the connection.
	ShortRead ErrorKind = iota
	// WouldBlock means a read deadline expired before any byte of a new
	// frame arrived. Recoverable — the caller should simply retry later.
	WouldBlock
	// AeadInvalid means the AEAD authentication tag failed to verify.
	AeadInvalid
	// ChecksumInvalid means the record decrypted but its trailing CRC32
	// did not match the JSON payload.
	ChecksumInvalid
	// JsonMalformed means the record authenticated but its plaintext was
	// not valid JSON for the requested type.
	JsonMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ShortRead:
		return "ShortRead"
	case WouldBlock:
		return "WouldBlock"
	case AeadInvalid:
		return "AeadInvalid"
	case ChecksumInvalid:
		return "ChecksumInvalid"
	case JsonMalformed:
		return "JsonMalformed"
	default:
		return "Unknown"
	}
}

// Error wraps a decode failure with its Kind so callers can branch on it
// without string matching.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("wirecodec: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsWouldBlock reports whether err is a recoverable pre-frame timeout.
func IsWouldBlock(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == WouldBlock
}

// Encode encrypts v into a single contiguous record ready for one write to
// the socket. Encryption never fails for a well-formed AEAD and random
// source; a nonce-generation failure panics, since the process has no
// sane way to continue with a broken entropy source. JSON marshal errors
// (caller passed an unencodable value) are returned, not panicked.
func Encode(v any, aead cipherAEAD) ([]byte, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wirecodec: marshal payload: %w", err)
	}

	plaintext := make([]byte, len(jsonBytes)+ChecksumSize)
	copy(plaintext, jsonBytes)
	binary.BigEndian.PutUint32(plaintext[len(jsonBytes):], crc32.ChecksumIEEE(jsonBytes))

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		panic(fmt.Sprintf("wirecodec: reading nonce: %v", err))
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	body := make([]byte, 0, NonceSize+len(ciphertext))
	body = append(body, nonce...)
	body = append(body, ciphertext...)

	record := make([]byte, 0, LengthPrefixSize+len(body))
	var lenBuf [LengthPrefixSize]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
	record = append(record, lenBuf[:]...)
	record = append(record, body...)
	return record, nil
}

// Write encodes v and writes the resulting record to w in a single call.
func Write(w io.Writer, v any, aead cipherAEAD) error {
	record, err := Encode(v, aead)
	if err != nil {
		return err
	}
	if _, err := w.Write(record); err != nil {
		return fmt.Errorf("wirecodec: writing record: %w", err)
	}
	return nil
}

// Decode reads exactly one record from r and unmarshals its verified
// plaintext into a value of type T.
func Decode[T any](r io.Reader, aead cipherAEAD) (T, error) {
	var zero T

	var lenBuf [LengthPrefixSize]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		if n == 0 && isTimeout(err) {
			return zero, &Error{Kind: WouldBlock, Err: err}
		}
		return zero, &Error{Kind: ShortRead, Err: err}
	}

	length := binary.LittleEndian.Uint64(lenBuf[:])
	if length == 0 || length > MaxRecordSize {
		return zero, &Error{Kind: ShortRead, Err: fmt.Errorf("declared length %d out of bounds", length)}
	}

	body := bodyPool.get(int(length))
	defer bodyPool.put(body)
	if _, err := io.ReadFull(r, body); err != nil {
		return zero, &Error{Kind: ShortRead, Err: err}
	}

	if len(body) < NonceSize {
		return zero, &Error{Kind: ShortRead, Err: errors.New("record shorter than nonce")}
	}
	nonce, ciphertext := body[:NonceSize], body[NonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return zero, &Error{Kind: AeadInvalid, Err: err}
	}
	if len(plaintext) < ChecksumSize {
		return zero, &Error{Kind: ChecksumInvalid, Err: errors.New("plaintext shorter than checksum")}
	}

	jsonBytes := plaintext[:len(plaintext)-ChecksumSize]
	wantSum := binary.BigEndian.Uint32(plaintext[len(plaintext)-ChecksumSize:])
	if crc32.ChecksumIEEE(jsonBytes) != wantSum {
		return zero, &Error{Kind: ChecksumInvalid, Err: errors.New("crc32 mismatch")}
	}

	var out T
	if err := json.Unmarshal(jsonBytes, &out); err != nil {
		return zero, &Error{Kind: JsonMalformed, Err: err}
	}
	return out, nil
}

// cipherAEAD is the subset of cipher.AEAD this package needs; declared
// locally so callers don't have to import crypto/cipher just to pass an
// AEAD instance through.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// bodyPool reuses record-body buffers across every Decode call in the
// process, whichever connection made it. See bufpool.go for why it keeps separate small/large tiers.
var bodyPool = newBufPool()

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
