// config/config_test.go
package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rtcore-go/bus"
	"rtcore-go/types"
)

// collectSections drains retained config/<name> messages into a map until n
// sections have arrived or the deadline passes.
func collectSections(t *testing.T, sub *bus.Subscription, n int) map[string]any {
	t.Helper()
	got := make(map[string]any, n)
	deadline := time.After(time.Second)
	for len(got) < n {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() != 2 || m.Topic.At(0) != configPrefix {
				t.Fatalf("unexpected config topic: %v", m.Topic)
			}
			name, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("section token %#v is not a string", m.Topic.At(1))
			}
			got[name] = m.Payload
		case <-deadline:
			t.Fatalf("collected %d of %d sections: %v", len(got), n, got)
		}
	}
	return got
}

func TestConfig_PublishesRetainedSections(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "bench" {
			return nil, false
		}
		return []byte(`{
			"exec": {"tick_hz": 50, "max_tasks": 4},
			"heartbeat": {"interval_ms": 250},
			"uplink": {"device": "bench", "flush_ms": 100}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "bench")
	NewConfigService().Start(ctx, conn)

	// Retained delivery means subscription order does not matter.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))
	defer conn.Unsubscribe(sub)

	sections := collectSections(t, sub, 3)

	hb, ok := sections["heartbeat"].(map[string]any)
	if !ok {
		t.Fatalf("heartbeat section = %#v; want object", sections["heartbeat"])
	}
	if iv, ok := hb["interval_ms"].(float64); !ok || iv != 250 {
		t.Fatalf("interval_ms = %#v; want 250", hb["interval_ms"])
	}

	ex, ok := sections["exec"].(map[string]any)
	if !ok {
		t.Fatalf("exec section = %#v; want object", sections["exec"])
	}
	if hz, ok := ex["tick_hz"].(float64); !ok || hz != 50 {
		t.Fatalf("tick_hz = %#v; want 50", ex["tick_hz"])
	}

	up, ok := sections["uplink"].(map[string]any)
	if !ok {
		t.Fatalf("uplink section = %#v; want object", sections["uplink"])
	}
	if dev, ok := up["device"].(string); !ok || dev != "bench" {
		t.Fatalf("uplink device = %#v; want bench", up["device"])
	}
}

func TestConfig_PublishProfileErrors(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device == "garbled" {
			return []byte(`[4, 8, 15]`), true
		}
		return nil, false
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-config-errors")
	svc := NewConfigService()

	cases := []struct {
		name   string
		device string
	}{
		{"no device in context", ""},
		{"unknown device", "ghost"},
		{"profile is not an object", "garbled"},
	}
	for _, tc := range cases {
		ctx := context.Background()
		if tc.device != "" {
			ctx = context.WithValue(ctx, CtxDeviceKey, tc.device)
		}
		if err := svc.publishProfile(ctx, conn); err == nil {
			t.Errorf("%s: publishProfile returned nil error", tc.name)
		}
	}
}

// Every embedded profile must stay decodable into the executive's config
// schema, with a link protocol that the profile also declares.
func TestConfig_EmbeddedProfilesDecodeAsExecConfig(t *testing.T) {
	for device := range embeddedConfigs {
		b := bus.NewBus(16)
		conn := b.NewConnection("test-" + device)
		svc := NewConfigService()

		ctx := context.WithValue(context.Background(), CtxDeviceKey, device)
		if err := svc.publishProfile(ctx, conn); err != nil {
			t.Fatalf("%s: publish failed: %v", device, err)
		}

		sub := conn.Subscribe(bus.T(configPrefix, "exec"))
		var payload any
		select {
		case m := <-sub.Channel():
			payload = m.Payload
		case <-time.After(time.Second):
			t.Fatalf("%s: no retained config/exec", device)
		}
		conn.Unsubscribe(sub)

		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("%s: re-marshal failed: %v", device, err)
		}
		var cfg types.ExecConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			t.Fatalf("%s: decode failed: %v", device, err)
		}
		if cfg.TickHz == 0 || len(cfg.Sensors) == 0 || len(cfg.Tasks) == 0 {
			t.Fatalf("%s: profile too thin: %+v", device, cfg)
		}
		if cfg.Link.Protocol != "" {
			found := false
			for _, p := range cfg.Protocols {
				if p.Name == cfg.Link.Protocol {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s: link protocol %q not declared", device, cfg.Link.Protocol)
			}
		}
	}
}
