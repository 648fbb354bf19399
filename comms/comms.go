// Package comms implements the protocol channel layer: named FIFO frame
// queues with a transmit status, the CRC16 integrity primitive and the wire
// frame codec. The stack owns no goroutines and takes no locks; exactly one
// owner enqueues, dequeues and pumps the transport.
package comms

// Status is a protocol channel's transmit state. Send marks a channel
// Transmitting; it returns to Idle when the transport drains the tx queue.
type Status uint8

const (
	Idle Status = iota
	Transmitting
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Transmitting:
		return "transmitting"
	default:
		return "unknown"
	}
}

type protocol struct {
	name   string
	kind   string
	tx     [][]byte
	rx     [][]byte
	status Status
}

// ProtocolInfo is a copy of one channel's state for telemetry.
type ProtocolInfo struct {
	Name    string
	Kind    string
	Status  Status
	TXDepth int
	RXDepth int
}

// Stack owns the registered protocol channels.
type Stack struct {
	protos map[string]*protocol
	order  []string
}

func NewStack() *Stack {
	return &Stack{protos: make(map[string]*protocol)}
}

// AddProtocol registers a channel with empty queues and Idle status.
// Re-adding an existing name discards its queues and resets its state.
func (s *Stack) AddProtocol(name, kind string) {
	if _, exists := s.protos[name]; !exists {
		s.order = append(s.order, name)
	}
	s.protos[name] = &protocol{name: name, kind: kind}
}

// Send appends data as one frame to the channel's tx queue and marks it
// Transmitting. The stack takes its own copy; the caller keeps data.
// Reports false when the protocol is unknown.
func (s *Stack) Send(name string, data []byte) bool {
	p, ok := s.protos[name]
	if !ok {
		return false
	}
	p.tx = append(p.tx, append([]byte(nil), data...))
	p.status = Transmitting
	return true
}

// Receive pops frames from the rx queue in arrival order, concatenating up
// to max bytes. A frame that does not fit whole is split and its remainder
// stays queued at the head for the next call. Reports false when the
// protocol is unknown, the queue is empty or max is not positive.
func (s *Stack) Receive(name string, max int) ([]byte, bool) {
	p, ok := s.protos[name]
	if !ok || len(p.rx) == 0 || max <= 0 {
		return nil, false
	}
	out := make([]byte, 0, max)
	for len(p.rx) > 0 && len(out) < max {
		f := p.rx[0]
		room := max - len(out)
		if len(f) > room {
			out = append(out, f[:room]...)
			p.rx[0] = f[room:]
			break
		}
		out = append(out, f...)
		p.rx[0] = nil
		p.rx = p.rx[1:]
	}
	if len(p.rx) == 0 {
		p.rx = nil
	}
	return out, true
}

// PopTX dequeues the oldest tx frame for the transport to put on the wire.
// The channel returns to Idle once the queue drains.
func (s *Stack) PopTX(name string) ([]byte, bool) {
	p, ok := s.protos[name]
	if !ok || len(p.tx) == 0 {
		return nil, false
	}
	f := p.tx[0]
	p.tx[0] = nil
	p.tx = p.tx[1:]
	if len(p.tx) == 0 {
		p.tx = nil
		p.status = Idle
	}
	return f, true
}

// InjectRX enqueues one received frame on the rx queue. The stack takes its
// own copy. Reports false when the protocol is unknown.
func (s *Stack) InjectRX(name string, frame []byte) bool {
	p, ok := s.protos[name]
	if !ok {
		return false
	}
	p.rx = append(p.rx, append([]byte(nil), frame...))
	return true
}

// Status reports a channel's transmit status.
func (s *Stack) Status(name string) (Status, bool) {
	p, ok := s.protos[name]
	if !ok {
		return Idle, false
	}
	return p.status, true
}

// Depths reports queued tx and rx frame counts.
func (s *Stack) Depths(name string) (tx, rx int, ok bool) {
	p, ok := s.protos[name]
	if !ok {
		return 0, 0, false
	}
	return len(p.tx), len(p.rx), true
}

// Info returns a copy of one channel's state.
func (s *Stack) Info(name string) (ProtocolInfo, bool) {
	p, ok := s.protos[name]
	if !ok {
		return ProtocolInfo{}, false
	}
	return ProtocolInfo{
		Name:    p.name,
		Kind:    p.kind,
		Status:  p.status,
		TXDepth: len(p.tx),
		RXDepth: len(p.rx),
	}, true
}

// Protocols returns registered names in registration order.
func (s *Stack) Protocols() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of registered channels.
func (s *Stack) Len() int { return len(s.protos) }
