package main

import (
	"context"
	"runtime"
	"time"

	"rtcore-go/bus"
	"rtcore-go/services/config"
	"rtcore-go/services/exec"
	"rtcore-go/services/heartbeat"
	"rtcore-go/types"
)

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)
	execConn := b.NewConnection("exec")
	hbConn := b.NewConnection("heartbeat")
	cfgConn := b.NewConnection("config")
	uiConn := b.NewConnection("ui")

	println("[main] watching exec/state and heartbeat/beat …")
	states := uiConn.Subscribe(bus.T("exec", "state"))
	beats := uiConn.Subscribe(bus.T("heartbeat", "beat"))
	go func() {
		for {
			select {
			case m := <-states.Channel():
				if st, ok := m.Payload.(types.ServiceState); ok {
					if st.Error != "" {
						println("[exec]", st.Level, st.Status, "err:", st.Error)
					} else {
						println("[exec]", st.Level, st.Status)
					}
				}
			case m := <-beats.Channel():
				if hb, ok := m.Payload.(types.Heartbeat); ok {
					println("[beat]", hb.Seq)
				}
			}
		}
	}()

	println("[main] starting executive …")
	go exec.Run(ctx, execConn, openPort(), openSource())

	println("[main] starting heartbeat …")
	hb := &heartbeat.Service{}
	_ = hb.Start(ctx, hbConn)

	// Config goes last: the services above are subscribed by now, and the
	// profile publishes retained, so neither side can miss it.
	println("[main] publishing device profile …")
	config.NewConfigService().Start(ctx, cfgConn)

	for {
		printMem()
		time.Sleep(5 * time.Second)
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
