// Package uplink mirrors the device's retained bus state into Redis so fleet
// tooling can read telemetry without joining the in-process bus. It is a
// host-side service; embedded targets never build it.
package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rtcore-go/bus"
	"rtcore-go/types"
	"rtcore-go/x/timex"
)

const defaultFlushMs = 500

// Run drives the mirror until ctx is cancelled. Retained telemetry updates
// are coalesced between flush ticks; each flush writes the latest payload per
// topic with a pipelined SET and announces it on the device's event channel.
func Run(ctx context.Context, conn *bus.Connection, cfg types.UplinkConfig) error {
	if cfg.Device == "" {
		return fmt.Errorf("uplink: device name is required")
	}
	every := time.Duration(cfg.FlushMs) * time.Millisecond
	if every <= 0 {
		every = defaultFlushMs * time.Millisecond
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("uplink: redis unreachable: %w", err)
	}

	s := &service{
		conn:   conn,
		rdb:    rdb,
		log:    slog.With("service", "uplink", "device", cfg.Device),
		device: cfg.Device,
		every:  every,
		dirty:  map[string]any{},
	}
	if err := s.writeBootRecord(ctx); err != nil {
		return fmt.Errorf("uplink: boot record: %w", err)
	}
	s.loop(ctx)
	return nil
}

type service struct {
	conn   *bus.Connection
	rdb    *redis.Client
	log    *slog.Logger
	device string
	every  time.Duration

	dirty   map[string]any // topic path -> latest payload, nil marks a delete
	failing bool
}

func (s *service) loop(ctx context.Context) {
	execSub := s.conn.Subscribe(bus.T("exec", "#"))
	beatSub := s.conn.Subscribe(bus.T("heartbeat", "#"))
	defer s.conn.Unsubscribe(execSub)
	defer s.conn.Unsubscribe(beatSub)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// One bounded parting flush so the mirror is current at shutdown.
			flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			s.flush(flushCtx)
			cancel()
			return
		case msg := <-execSub.Channel():
			s.mark(msg)
		case msg := <-beatSub.Channel():
			s.mark(msg)
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// mark coalesces a retained update. Request/reply traffic on the same trees
// is not retained and never mirrors.
func (s *service) mark(msg *bus.Message) {
	if !msg.Retained {
		return
	}
	s.dirty[topicPath(msg.Topic)] = msg.Payload
}

// flush writes every dirty topic in one pipeline. On failure the dirty set is
// kept so the next tick retries with the latest payloads.
func (s *service) flush(ctx context.Context) {
	if len(s.dirty) == 0 {
		return
	}
	now := timex.NowMs()
	channel := EventsChannel(s.device)

	pipe := s.rdb.Pipeline()
	for path, payload := range s.dirty {
		if payload == nil {
			pipe.Del(ctx, RetainedKey(s.device, path))
		} else {
			b, err := json.Marshal(payload)
			if err != nil {
				s.log.Warn("unencodable payload dropped", "topic", path, "err", err)
				delete(s.dirty, path)
				continue
			}
			pipe.Set(ctx, RetainedKey(s.device, path), b, 0)
		}
		evt, _ := json.Marshal(map[string]any{"topic": path, "ts_ms": now})
		pipe.Publish(ctx, channel, evt)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		if !s.failing {
			s.log.Warn("flush failed, retrying on next tick", "err", err)
			s.failing = true
		}
		return
	}
	if s.failing {
		s.log.Info("flush recovered")
		s.failing = false
	}
	clear(s.dirty)
}

func (s *service) writeBootRecord(ctx context.Context) error {
	rec, err := json.Marshal(map[string]any{
		"boot_id":    uuid.NewString(),
		"started_ms": timex.NowMs(),
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, BootKey(s.device), rec, 0).Err()
}

func topicPath(t bus.Topic) string {
	path := ""
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			path += "/"
		}
		path += fmt.Sprint(t.At(i))
	}
	return path
}
