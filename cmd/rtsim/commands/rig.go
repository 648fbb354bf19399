package commands

import (
	"context"
	"fmt"

	"rtcore-go/bus"
	"rtcore-go/comms"
	"rtcore-go/services/config"
	"rtcore-go/services/exec"
	"rtcore-go/services/heartbeat"
	"rtcore-go/services/uplink"
	"rtcore-go/types"
	"rtcore-go/x/strx"
)

// startRig boots the host rig: bus, executive on a loopback wire, heartbeat,
// optional Redis mirror, and finally the embedded config profile. The
// returned connection is for the caller's own control traffic.
//
// Services subscribe before the profile publishes, and the profile publishes
// retained, so startup ordering cannot lose a config.
func startRig(ctx context.Context) (*bus.Connection, error) {
	device := strx.Coalesce(flagDevice, "sim")
	if _, ok := config.EmbeddedConfigLookup(device); !ok {
		return nil, fmt.Errorf("no embedded profile for device %q", device)
	}

	b := bus.NewBus(64)

	execConn := b.NewConnection("exec")
	go exec.Run(ctx, execConn, comms.NewLoopback(1024), nil)

	hb := &heartbeat.Service{}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return nil, err
	}

	if flagRedis != "" {
		upConn := b.NewConnection("uplink")
		go func() {
			cfg := types.UplinkConfig{Addr: flagRedis, Device: device, FlushMs: 500}
			if err := uplink.Run(ctx, upConn, cfg); err != nil {
				yellow.Printf("uplink: %v\n", err)
			}
		}()
	}

	cfgCtx := context.WithValue(ctx, config.CtxDeviceKey, device)
	config.NewConfigService().Start(cfgCtx, b.NewConnection("config"))

	return b.NewConnection("cli"), nil
}
