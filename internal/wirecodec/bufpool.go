package wirecodec

import "sync"

// Record bodies are strongly bimodal: most kinds (ready, chat_message,
// player_update for a handful of players, every synthetic tick/time_up) are
// well under a kilobyte, while add_line carries a full Line with its
// []Point stroke history and can run to tens of kilobytes for a long,
// detailed pen stroke. Pooling only one size class would mean either
// wasting a large buffer's memory on every short control message or
// eating a reallocation on every stroke record, so bodyPool keeps two
// tiers and picks between them by the requested size.
const (
	smallBodyCap = 256
	largeBodyCap = 16 * 1024
)

// bufPool reuses the scratch buffers Decode needs for one record's body, so
// a busy session's read loop doesn't allocate fresh backing arrays on every
// incoming record.
type bufPool struct {
	small sync.Pool
	large sync.Pool
}

func newBufPool() *bufPool {
	p := &bufPool{}
	p.small.New = func() any { return make([]byte, 0, smallBodyCap) }
	p.large.New = func() any { return make([]byte, 0, largeBodyCap) }
	return p
}

// get returns a zeroed slice of length size, drawn from whichever tier is
// likely to already hold a buffer big enough. A record past largeBodyCap
// (a pathologically long stroke, or close to MaxRecordSize) allocates
// directly and is never pooled.
func (p *bufPool) get(size int) []byte {
	tier := &p.small
	if size > smallBodyCap {
		tier = &p.large
	}

	b := tier.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	b = b[:size]
	clear(b)
	return b
}

// put returns b to the tier matching its capacity. Callers must not use b
// afterward. A buffer larger than largeBodyCap came from the direct
// make() fallback in get and is dropped rather than pooled.
func (p *bufPool) put(b []byte) {
	if b == nil {
		return
	}
	b = b[:0]
	switch {
	case cap(b) > largeBodyCap:
	case cap(b) == largeBodyCap:
		p.large.Put(b)
	case cap(b) >= smallBodyCap:
		p.small.Put(b)
	}
}
