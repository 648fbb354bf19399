package comms

import (
	"rtcore-go/errcode"
	"rtcore-go/x/shmring"
)

// Port is the byte transport the executive pumps frames through. Reads are
// buffered and non-blocking; Readable fires once per empty-to-non-empty
// transition, so a pump selects on it and then drains with Read.
//
// The rp2040 build adapts the hardware UART to this; hosts use Loopback.
type Port interface {
	Write(p []byte) (int, error)
	Buffered() int
	Read(p []byte) (int, error)
	Readable() <-chan struct{}
}

// Loopback is a Port whose writes come straight back on the read side, the
// simulator's stand-in for a jumpered UART.
type Loopback struct {
	ring *shmring.Ring
}

// NewLoopback creates a loopback carrying up to size buffered bytes.
// size must be a power of two >= 2.
func NewLoopback(size int) *Loopback {
	return &Loopback{ring: shmring.New(size)}
}

// Write queues p for read-back. A full ring reports errcode.Busy with the
// count actually taken.
func (l *Loopback) Write(p []byte) (int, error) {
	n := l.ring.TryWriteFrom(p)
	if n < len(p) {
		return n, errcode.Busy
	}
	return n, nil
}

// Buffered reports bytes waiting to be read back.
func (l *Loopback) Buffered() int { return l.ring.Available() }

// Read copies up to len(p) queued bytes. An empty ring reports (0, nil).
func (l *Loopback) Read(p []byte) (int, error) {
	return l.ring.TryReadInto(p), nil
}

// Readable fires once per empty-to-non-empty transition.
func (l *Loopback) Readable() <-chan struct{} { return l.ring.Readable() }
