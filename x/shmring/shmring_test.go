package shmring

import "testing"

func TestRoundTripAcrossWrap(t *testing.T) {
	r := New(64)

	const total = 2000
	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i * 7)
	}

	// Drip 7-byte writes against 17-byte reads so the indexes lap the
	// buffer many times at misaligned offsets.
	got := make([]byte, 0, total)
	pending := src
	var sink [17]byte
	for len(got) < total {
		if len(pending) > 0 {
			step := 7
			if step > len(pending) {
				step = len(pending)
			}
			n := r.TryWriteFrom(pending[:step])
			pending = pending[n:]
		}
		n := r.TryReadInto(sink[:])
		got = append(got, sink[:n]...)
	}

	for i := range got {
		if got[i] != src[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], src[i])
		}
	}
}

func TestPartialWriteIntoNearlyFullRing(t *testing.T) {
	r := New(8)
	if n := r.TryWriteFrom([]byte{1, 2, 3, 4, 5, 6}); n != 6 {
		t.Fatalf("first write took %d", n)
	}
	if n := r.TryWriteFrom([]byte{7, 8, 9, 10}); n != 2 {
		t.Fatalf("write into 2 free bytes took %d", n)
	}
	var dst [8]byte
	if n := r.TryReadInto(dst[:]); n != 8 {
		t.Fatalf("read back %d", n)
	}
	for i, want := range []byte{1, 2, 3, 4, 5, 6, 7, 8} {
		if dst[i] != want {
			t.Fatalf("byte %d: got %d, want %d", i, dst[i], want)
		}
	}
}

func TestSpaceAvailableAccounting(t *testing.T) {
	r := New(16)
	if r.Space() != 16 || r.Available() != 0 {
		t.Fatalf("fresh ring: space=%d avail=%d", r.Space(), r.Available())
	}
	r.TryWriteFrom(make([]byte, 5))
	if r.Space() != 11 || r.Available() != 5 {
		t.Fatalf("after write: space=%d avail=%d", r.Space(), r.Available())
	}
	r.TryReadInto(make([]byte, 2))
	if r.Space() != 13 || r.Available() != 3 {
		t.Fatalf("after read: space=%d avail=%d", r.Space(), r.Available())
	}
}

func TestReadableFiresOncePerEmptyToNonEmpty(t *testing.T) {
	r := New(8)
	select {
	case <-r.Readable():
		t.Fatal("Readable on a fresh ring")
	default:
	}
	r.TryWriteFrom([]byte{1})
	r.TryWriteFrom([]byte{2}) // already non-empty; must not add a token
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected a Readable token")
	}
	select {
	case <-r.Readable():
		t.Fatal("Readable token not coalesced")
	default:
	}

	// Drain to empty and write again: a fresh edge, a fresh token.
	r.TryReadInto(make([]byte, 2))
	r.TryWriteFrom([]byte{3})
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected Readable after the ring emptied")
	}
}

func TestWritableFiresOnFullToNonFull(t *testing.T) {
	r := New(8)
	r.TryWriteFrom(make([]byte, 8))
	select {
	case <-r.Writable():
		t.Fatal("Writable before any drain")
	default:
	}
	r.TryReadInto(make([]byte, 1))
	select {
	case <-r.Writable():
	default:
		t.Fatal("expected Writable after draining a full ring")
	}
	r.TryReadInto(make([]byte, 1)) // already non-full; must not add a token
	select {
	case <-r.Writable():
		t.Fatal("Writable token not coalesced")
	default:
	}
}

func TestNewRejectsBadSizes(t *testing.T) {
	for _, size := range []int{0, 1, 3, 12} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("New(%d) did not panic", size)
				}
			}()
			New(size)
		}()
	}
}
