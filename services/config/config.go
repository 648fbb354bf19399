package config

import (
	"context"

	"rtcore-go/bus"
	"rtcore-go/x/fmtx"

	"github.com/andreyvit/tinyjson"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key carrying the device ID
)

// EmbeddedConfigLookup resolves a device ID to its embedded profile bytes.
// Tests and alternate builds may swap it out.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// Start publishes the device profile in a goroutine and returns immediately.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishProfile(ctx, conn); err != nil {
			println("[config] publish failed:", err.Error())
		}
	}()
}

// publishProfile parses the embedded profile for the device named in ctx and
// publishes each top-level section as a retained config/<section> message,
// so services that subscribe late still receive theirs.
func (s *ConfigService) publishProfile(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return fmtx.Errorf("no device ID in context")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return fmtx.Errorf("no embedded profile for device %q", device)
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	sections, ok := val.(map[string]any)
	if !ok {
		return fmtx.Errorf("profile for %q is not a JSON object", device)
	}
	for name, payload := range sections {
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, name),
			Payload:  payload,
			Retained: true,
		})
	}
	println("[config] published", len(sections), "sections for", device)
	return nil
}
