package heartbeat

import (
	"context"
	"time"

	"rtcore-go/bus"
	"rtcore-go/types"
	"rtcore-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicBeat            = bus.T("heartbeat", "beat")
)

type Service struct{}

// Start launches the beat loop and returns immediately.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.run(ctx, conn)
	return nil
}

func (s *Service) run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case <-tick.C:
			seq++
			beat := types.Heartbeat{Seq: seq, TS: timex.NowMs()}
			conn.Publish(conn.NewMessage(topicBeat, beat, true))
		case msg := <-cfgSub.Channel():
			if d, ok := interval(msg.Payload); ok {
				tick.Reset(d)
				println("[heartbeat] interval set to", int64(d/time.Millisecond), "ms")
			}
		}
	}
}

// interval extracts a positive interval_ms from a config payload.
func interval(payload any) (time.Duration, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, false
	}
	ms, ok := m["interval_ms"].(float64)
	if !ok || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
