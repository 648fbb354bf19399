package shmring

import (
	"sync/atomic"
)

// Ring is a fixed-size byte queue for exactly one producer goroutine and one
// consumer goroutine.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // read index, grows without wrapping
	wr   atomic.Uint32 // write index, grows without wrapping

	readable chan struct{} // signalled when the ring leaves empty
	writable chan struct{} // signalled when the ring leaves full
}

// New creates a ring of the given size, which must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("shmring: size must be a power of two, minimum 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// The monotonic counters make used a single wrapping subtraction. Either
// side may call this; a stale load only ever understates the other side's
// progress, which is safe for both.
func (r *Ring) used() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Space reports bytes the producer can write without blocking.
func (r *Ring) Space() int { return len(r.buf) - r.used() }

// Available reports bytes the consumer can read without blocking.
func (r *Ring) Available() int { return r.used() }

// TryWriteFrom copies as much of src as fits and returns the count.
// Producer side only.
func (r *Ring) TryWriteFrom(src []byte) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	used := int(wr - rd)
	n := len(r.buf) - used
	if n > len(src) {
		n = len(src)
	}
	if n <= 0 {
		return 0
	}
	head := copy(r.buf[wr&r.mask:], src[:n])
	copy(r.buf, src[head:n])
	r.wr.Store(wr + uint32(n))
	if used == 0 {
		notify(r.readable)
	}
	return n
}

// TryReadInto copies up to len(dst) buffered bytes and returns the count.
// Consumer side only.
func (r *Ring) TryReadInto(dst []byte) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	used := int(wr - rd)
	n := used
	if n > len(dst) {
		n = len(dst)
	}
	if n <= 0 {
		return 0
	}
	head := copy(dst[:n], r.buf[rd&r.mask:])
	copy(dst[head:n], r.buf)
	r.rd.Store(rd + uint32(n))
	if used == len(r.buf) {
		notify(r.writable)
	}
	return n
}

func notify(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// Readable fires once per empty-to-non-empty transition.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable fires once per full-to-non-full transition.
func (r *Ring) Writable() <-chan struct{} { return r.writable }
