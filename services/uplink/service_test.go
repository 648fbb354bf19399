package uplink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcore-go/bus"
	"rtcore-go/types"
)

// setupMirror starts a miniredis instance and the mirror against it.
func setupMirror(t *testing.T) (*bus.Connection, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b := bus.NewBus(64)
	conn := b.NewConnection("test-uplink")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = Run(ctx, conn, types.UplinkConfig{Addr: mr.Addr(), Device: "rig-test", FlushMs: 20})
	}()
	return conn, mr
}

func waitKey(t *testing.T, mr *miniredis.Miniredis, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mr.Exists(key) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("key %q never appeared", key)
}

func TestUplink_WritesBootRecord(t *testing.T) {
	_, mr := setupMirror(t)
	waitKey(t, mr, BootKey("rig-test"))

	raw, err := mr.Get(BootKey("rig-test"))
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	id, _ := rec["boot_id"].(string)
	assert.Len(t, id, 36, "boot_id should be a UUID")
	assert.NotZero(t, rec["started_ms"])
}

func TestUplink_MirrorsRetainedTelemetry(t *testing.T) {
	conn, mr := setupMirror(t)

	st := types.PowerState{Mode: "deep_sleep", DrawMA: 0.01, WakeLatencyUS: 1000, TS: 123}
	conn.Publish(conn.NewMessage(bus.T("exec", "power", "state"), st, true))

	key := RetainedKey("rig-test", "exec/power/state")
	waitKey(t, mr, key)

	raw, err := mr.Get(key)
	require.NoError(t, err)
	var got types.PowerState
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, st, got)
}

func TestUplink_IgnoresRequestTraffic(t *testing.T) {
	conn, mr := setupMirror(t)

	conn.Publish(conn.NewMessage(bus.T("exec", "task", "control", "list"), nil, false))

	// A few flush ticks must pass without the topic appearing.
	time.Sleep(100 * time.Millisecond)
	assert.False(t, mr.Exists(RetainedKey("rig-test", "exec/task/control/list")))
}

func TestUplink_DeletesClearedTopics(t *testing.T) {
	conn, mr := setupMirror(t)

	rv := types.ReadingValue{Name: "temp0", Value: 42, TS: 1}
	conn.Publish(conn.NewMessage(bus.T("exec", "sensor", "temp0", "value"), rv, true))
	key := RetainedKey("rig-test", "exec/sensor/temp0/value")
	waitKey(t, mr, key)

	conn.Publish(conn.NewMessage(bus.T("exec", "sensor", "temp0", "value"), nil, true))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !mr.Exists(key) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("cleared topic still mirrored")
}

func TestUplink_CoalescesToLatest(t *testing.T) {
	conn, mr := setupMirror(t)

	for i := 1; i <= 5; i++ {
		conn.Publish(conn.NewMessage(bus.T("exec", "sensor", "vbat", "value"),
			types.ReadingValue{Name: "vbat", Value: float64(i), TS: int64(i)}, true))
	}

	key := RetainedKey("rig-test", "exec/sensor/vbat/value")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mr.Exists(key) {
			raw, err := mr.Get(key)
			require.NoError(t, err)
			var got types.ReadingValue
			if json.Unmarshal([]byte(raw), &got) == nil && got.Value == 5 {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("latest value never mirrored")
}

func TestUplink_PublishesFlushEvents(t *testing.T) {
	conn, mr := setupMirror(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ps := rdb.Subscribe(context.Background(), EventsChannel("rig-test"))
	t.Cleanup(func() { ps.Close() })
	_, err := ps.Receive(context.Background())
	require.NoError(t, err)

	conn.Publish(conn.NewMessage(bus.T("heartbeat", "beat"), types.Heartbeat{Seq: 1, TS: 9}, true))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)

	var evt map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
	assert.Equal(t, "heartbeat/beat", evt["topic"])
}

func TestUplink_RejectsBadConfig(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-bad")

	err := Run(context.Background(), conn, types.UplinkConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device name")

	err = Run(context.Background(), conn, types.UplinkConfig{Addr: "127.0.0.1:1", Device: "x", FlushMs: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
