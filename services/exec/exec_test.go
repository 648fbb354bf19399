package exec

import (
	"bytes"
	"context"
	"testing"
	"time"

	"rtcore-go/bus"
	"rtcore-go/comms"
	"rtcore-go/sensors"
	"rtcore-go/types"
)

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

func constSource(v float64) sensors.Source {
	return sensors.SourceFunc(func(string) (float64, error) { return v, nil })
}

// newRig starts the executive on a fresh bus and waits for awaiting_config.
func newRig(t *testing.T, port comms.Port, src sensors.Source) (*bus.Connection, *bus.Subscription) {
	t.Helper()
	b := bus.NewBus(128)
	conn := b.NewConnection("test")
	ctx, cancel := context.WithCancel(context.Background())
	go Run(ctx, conn, port, src)

	stateSub := conn.Subscribe(bus.T("exec", "state"))
	t.Cleanup(func() {
		cancel()
		conn.Unsubscribe(stateSub)
	})
	awaitState(t, stateSub, "awaiting_config")
	return conn, stateSub
}

func awaitState(t *testing.T, sub *bus.Subscription, status string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok && st.Status == status {
				return
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("no %q state in time", status)
}

func baseCfg() types.ExecConfig {
	return types.ExecConfig{
		TickHz:      200,
		MaxTasks:    8,
		TelemetryMs: 10,
		Sensors:     []types.SensorSpec{{Name: "temp0", SampleHz: 1000, ResolutionBits: 12}},
		Protocols:   []types.ProtocolSpec{{Name: "uart0", Kind: "uart"}},
	}
}

func configure(t *testing.T, conn *bus.Connection, stateSub *bus.Subscription, cfg types.ExecConfig) {
	t.Helper()
	conn.Publish(conn.NewMessage(bus.T("config", "exec"), cfg, false))
	awaitState(t, stateSub, "configured")
}

func request(t *testing.T, conn *bus.Connection, topic bus.Topic, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := conn.RequestWait(ctx, conn.NewMessage(topic, payload, false))
	if err != nil {
		t.Fatalf("request %v failed: %v", topic, err)
	}
	return reply.Payload
}

func wantErrCode(t *testing.T, got any, code string) {
	t.Helper()
	er, ok := got.(types.ErrorReply)
	if !ok {
		t.Fatalf("reply = %#v; want ErrorReply %q", got, code)
	}
	if er.Error != code {
		t.Fatalf("error code = %q; want %q", er.Error, code)
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func TestExec_ControlBeforeConfigRejected(t *testing.T) {
	conn, _ := newRig(t, nil, constSource(42))
	got := request(t, conn, bus.T("exec", "task", "control", "list"), nil)
	wantErrCode(t, got, "exec_not_ready")
}

func TestExec_BadConfigReportsErrorThenRecovers(t *testing.T) {
	conn, stateSub := newRig(t, nil, constSource(42))

	conn.Publish(conn.NewMessage(bus.T("config", "exec"), "{oops", false))
	awaitState(t, stateSub, "config_decode_failed")

	bad := baseCfg()
	bad.Link.Protocol = "nope"
	conn.Publish(conn.NewMessage(bus.T("config", "exec"), bad, false))
	awaitState(t, stateSub, "apply_config_failed")

	configure(t, conn, stateSub, baseCfg())
}

// -----------------------------------------------------------------------------
// Task controls
// -----------------------------------------------------------------------------

func TestExec_TaskCreateDelayList(t *testing.T) {
	conn, stateSub := newRig(t, nil, constSource(42))
	configure(t, conn, stateSub, baseCfg())

	got := request(t, conn, bus.T("exec", "task", "control", "create"),
		types.TaskSpec{Name: "blink", Priority: "high", Action: "noop", PeriodMs: 10})
	row, ok := got.(types.TaskRow)
	if !ok {
		t.Fatalf("create reply = %#v; want TaskRow", got)
	}
	if row.ID == 0 || row.Name != "blink" || row.Priority != "high" || row.State != "ready" {
		t.Fatalf("unexpected row: %+v", row)
	}

	got = request(t, conn, bus.T("exec", "task", "control", "delay"),
		types.TaskDelay{ID: row.ID, Ms: 50})
	if okr, ok := got.(types.OKReply); !ok || !okr.OK {
		t.Fatalf("delay reply = %#v; want OK", got)
	}

	got = request(t, conn, bus.T("exec", "task", "control", "delay"),
		types.TaskDelay{ID: 99, Ms: 10})
	wantErrCode(t, got, "task_not_found")

	got = request(t, conn, bus.T("exec", "task", "control", "list"), nil)
	table, ok := got.(types.TaskTable)
	if !ok {
		t.Fatalf("list reply = %#v; want TaskTable", got)
	}
	found := false
	for _, r := range table.Tasks {
		if r.Name == "blink" {
			found = true
		}
	}
	if !found {
		t.Fatalf("task table missing created task: %+v", table)
	}

	got = request(t, conn, bus.T("exec", "task", "control", "create"),
		types.TaskSpec{Name: "bogus", Action: "explode"})
	wantErrCode(t, got, "invalid_params")
}

func TestExec_PeriodicTaskAccumulatesRuns(t *testing.T) {
	cfg := baseCfg()
	cfg.Tasks = []types.TaskSpec{{Name: "tick", Action: "noop", PeriodMs: 5}}
	conn, stateSub := newRig(t, nil, constSource(42))
	configure(t, conn, stateSub, cfg)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := request(t, conn, bus.T("exec", "task", "control", "list"), nil)
		if table, ok := got.(types.TaskTable); ok {
			for _, r := range table.Tasks {
				if r.Name == "tick" && r.Runs >= 2 {
					return
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("periodic task never accumulated runs")
}

// -----------------------------------------------------------------------------
// Sensor controls
// -----------------------------------------------------------------------------

func TestExec_SensorControls(t *testing.T) {
	conn, stateSub := newRig(t, nil, constSource(42))
	configure(t, conn, stateSub, baseCfg())

	got := request(t, conn, bus.T("exec", "sensor", "control", "read"),
		types.SensorRead{Name: "temp0"})
	rv, ok := got.(types.ReadingValue)
	if !ok || rv.Name != "temp0" || rv.Value != 42 {
		t.Fatalf("read reply = %#v; want temp0=42", got)
	}

	got = request(t, conn, bus.T("exec", "sensor", "control", "filtered"),
		types.SensorFiltered{Name: "temp0", Filter: "ma", Window: 5})
	rv, ok = got.(types.ReadingValue)
	if !ok || rv.Value != 42 {
		t.Fatalf("filtered reply = %#v; want 42", got)
	}

	got = request(t, conn, bus.T("exec", "sensor", "control", "filtered"),
		types.SensorFiltered{Name: "temp0", Filter: "median", Window: 5})
	wantErrCode(t, got, "invalid_params")

	got = request(t, conn, bus.T("exec", "sensor", "control", "read"),
		types.SensorRead{Name: "nope"})
	wantErrCode(t, got, "sensor_not_found")

	got = request(t, conn, bus.T("exec", "sensor", "control", "register"),
		types.SensorSpec{Name: "rh0", SampleHz: 10, ResolutionBits: 12})
	if okr, ok := got.(types.OKReply); !ok || !okr.OK {
		t.Fatalf("register reply = %#v; want OK", got)
	}
	got = request(t, conn, bus.T("exec", "sensor", "control", "read"),
		types.SensorRead{Name: "rh0"})
	if rv, ok := got.(types.ReadingValue); !ok || rv.Value != 42 {
		t.Fatalf("read rh0 reply = %#v; want 42", got)
	}

	got = request(t, conn, bus.T("exec", "sensor", "control", "history"),
		types.SensorRead{Name: "temp0"})
	hist, ok := got.([]float64)
	if !ok || len(hist) == 0 {
		t.Fatalf("history reply = %#v; want non-empty values", got)
	}
	for _, v := range hist {
		if v != 42 {
			t.Fatalf("history value = %v; want 42", v)
		}
	}
}

// -----------------------------------------------------------------------------
// Power controls
// -----------------------------------------------------------------------------

func TestExec_PowerControls(t *testing.T) {
	conn, stateSub := newRig(t, nil, constSource(42))
	configure(t, conn, stateSub, baseCfg())

	got := request(t, conn, bus.T("exec", "power", "control", "mode"),
		types.PowerSet{Mode: "deep_sleep"})
	st, ok := got.(types.PowerState)
	if !ok || st.Mode != "deep_sleep" || st.DrawMA != 0.01 || st.WakeLatencyUS != 1000 {
		t.Fatalf("mode reply = %#v; want deep_sleep spec", got)
	}

	got = request(t, conn, bus.T("exec", "power", "control", "mode"),
		types.PowerSet{Mode: "warp"})
	wantErrCode(t, got, "unknown_mode")

	draw := 1.0
	got = request(t, conn, bus.T("exec", "power", "control", "estimate"),
		types.BatteryEstimate{CapacityMAh: 2000, DrawMA: &draw})
	bl, ok := got.(types.BatteryLife)
	if !ok || bl.Hours != 2000 {
		t.Fatalf("estimate reply = %#v; want 2000h", got)
	}

	// Nil draw uses the current mode, still deep_sleep from above.
	got = request(t, conn, bus.T("exec", "power", "control", "estimate"),
		types.BatteryEstimate{CapacityMAh: 2000})
	bl, ok = got.(types.BatteryLife)
	if !ok || bl.Hours != 200000 {
		t.Fatalf("estimate reply = %#v; want 200000h", got)
	}

	zero := 0.0
	got = request(t, conn, bus.T("exec", "power", "control", "estimate"),
		types.BatteryEstimate{CapacityMAh: 2000, DrawMA: &zero})
	wantErrCode(t, got, "zero_current")

	got = request(t, conn, bus.T("exec", "power", "control", "optimize"),
		types.PlanRequest{
			CapacityMAh: 240,
			Tasks: []types.PlanItem{
				{Name: "a", DeadlineHours: 5, PowerMA: 8, DurationHours: 2},
				{Name: "b", DeadlineHours: 1, PowerMA: 30, DurationHours: 1},
				{Name: "c", DeadlineHours: 10, PowerMA: 9, DurationHours: 4},
			},
		})
	plan, ok := got.(types.PlanReply)
	if !ok {
		t.Fatalf("optimize reply = %#v; want PlanReply", got)
	}
	if len(plan.Accepted) != 2 || plan.Accepted[0].Name != "a" || plan.Accepted[1].Name != "c" {
		t.Fatalf("accepted = %+v; want [a c]", plan.Accepted)
	}

	got = request(t, conn, bus.T("exec", "power", "control", "modes"), nil)
	modes, ok := got.([]string)
	if !ok || len(modes) != 4 || modes[0] != "active" || modes[3] != "hibernation" {
		t.Fatalf("modes reply = %#v", got)
	}
}

// -----------------------------------------------------------------------------
// Comm controls
// -----------------------------------------------------------------------------

func TestExec_CommControls(t *testing.T) {
	conn, stateSub := newRig(t, nil, constSource(42))
	configure(t, conn, stateSub, baseCfg())

	got := request(t, conn, bus.T("exec", "comm", "control", "add"),
		types.ProtocolSpec{Name: "spi0", Kind: "spi"})
	if okr, ok := got.(types.OKReply); !ok || !okr.OK {
		t.Fatalf("add reply = %#v; want OK", got)
	}

	got = request(t, conn, bus.T("exec", "comm", "control", "send"),
		types.CommSend{Protocol: "spi0", Data: []byte("abc")})
	if okr, ok := got.(types.OKReply); !ok || !okr.OK {
		t.Fatalf("send reply = %#v; want OK", got)
	}

	got = request(t, conn, bus.T("exec", "comm", "control", "send"),
		types.CommSend{Protocol: "ghost", Data: []byte("x")})
	wantErrCode(t, got, "unknown_protocol")

	// Nothing was injected inbound, so receive drains an empty queue.
	got = request(t, conn, bus.T("exec", "comm", "control", "receive"),
		types.CommReceive{Protocol: "spi0", Max: 10})
	cd, ok := got.(types.CommData)
	if !ok || len(cd.Data) != 0 {
		t.Fatalf("receive reply = %#v; want empty", got)
	}

	got = request(t, conn, bus.T("exec", "comm", "control", "status"), nil)
	statuses, ok := got.([]types.CommStatus)
	if !ok || len(statuses) != 2 {
		t.Fatalf("status reply = %#v; want uart0+spi0", got)
	}
	byName := map[string]types.CommStatus{}
	for _, cs := range statuses {
		byName[cs.Name] = cs
	}
	if byName["spi0"].TXDepth != 1 || byName["spi0"].Status != "transmitting" {
		t.Fatalf("spi0 status = %+v; want queued TX, transmitting", byName["spi0"])
	}
	if byName["uart0"].Status != "idle" {
		t.Fatalf("uart0 status = %+v; want idle", byName["uart0"])
	}
}

// -----------------------------------------------------------------------------
// Wire link
// -----------------------------------------------------------------------------

func TestExec_LinkLoopbackRoundTrip(t *testing.T) {
	port := comms.NewLoopback(256)
	cfg := baseCfg()
	cfg.Link = types.LinkSpec{Protocol: "uart0", Baud: 115200}

	conn, stateSub := newRig(t, port, constSource(42))
	configure(t, conn, stateSub, cfg)

	got := request(t, conn, bus.T("exec", "comm", "control", "send"),
		types.CommSend{Protocol: "uart0", Data: []byte("ping")})
	if okr, ok := got.(types.OKReply); !ok || !okr.OK {
		t.Fatalf("send reply = %#v; want OK", got)
	}

	// The tick pump frames the payload onto the loopback and the readable
	// edge injects it back into uart0's inbound queue.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got = request(t, conn, bus.T("exec", "comm", "control", "receive"),
			types.CommReceive{Protocol: "uart0"})
		if cd, ok := got.(types.CommData); ok && len(cd.Data) > 0 {
			if !bytes.Equal(cd.Data, []byte("ping")) {
				t.Fatalf("round trip data = %q; want %q", cd.Data, "ping")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("payload never came back around the loopback")
}

// -----------------------------------------------------------------------------
// Telemetry
// -----------------------------------------------------------------------------

func TestExec_TelemetryRetained(t *testing.T) {
	cfg := baseCfg()
	cfg.Tasks = []types.TaskSpec{{Name: "sampler", Action: "sample", Sensor: "temp0", PeriodMs: 10}}

	conn, stateSub := newRig(t, nil, constSource(42))
	configure(t, conn, stateSub, cfg)
	time.Sleep(100 * time.Millisecond)

	// A late subscriber sees the retained snapshots.
	tblSub := conn.Subscribe(bus.T("exec", "task", "table"))
	defer conn.Unsubscribe(tblSub)
	select {
	case m := <-tblSub.Channel():
		table, ok := m.Payload.(types.TaskTable)
		if !ok || table.Ticks == 0 || len(table.Tasks) != 1 {
			t.Fatalf("retained table = %#v", m.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no retained task table")
	}

	valSub := conn.Subscribe(bus.T("exec", "sensor", "temp0", "value"))
	defer conn.Unsubscribe(valSub)
	select {
	case m := <-valSub.Channel():
		rv, ok := m.Payload.(types.ReadingValue)
		if !ok || rv.Value != 42 {
			t.Fatalf("retained reading = %#v; want 42", m.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no retained sensor value")
	}

	pwrSub := conn.Subscribe(bus.T("exec", "power", "state"))
	defer conn.Unsubscribe(pwrSub)
	select {
	case m := <-pwrSub.Channel():
		st, ok := m.Payload.(types.PowerState)
		if !ok || st.Mode != "active" || st.DrawMA != 25.0 {
			t.Fatalf("retained power state = %#v", m.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no retained power state")
	}
}

func TestExec_ReconfigureClearsStaleRetained(t *testing.T) {
	cfg := baseCfg()
	cfg.Tasks = []types.TaskSpec{{Name: "sampler", Action: "sample", Sensor: "temp0", PeriodMs: 10}}

	conn, stateSub := newRig(t, nil, constSource(42))
	configure(t, conn, stateSub, cfg)

	// Wait for a retained temp0 reading to exist.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sub := conn.Subscribe(bus.T("exec", "sensor", "temp0", "value"))
		gotVal := false
		select {
		case <-sub.Channel():
			gotVal = true
		case <-time.After(50 * time.Millisecond):
		}
		conn.Unsubscribe(sub)
		if gotVal {
			break
		}
		if !time.Now().Before(deadline) {
			t.Fatal("no retained temp0 value before reconfigure")
		}
	}

	next := baseCfg()
	next.Sensors = []types.SensorSpec{{Name: "temp1", SampleHz: 1000, ResolutionBits: 12}}
	configure(t, conn, stateSub, next)

	got := request(t, conn, bus.T("exec", "sensor", "control", "read"),
		types.SensorRead{Name: "temp0"})
	wantErrCode(t, got, "sensor_not_found")
	got = request(t, conn, bus.T("exec", "sensor", "control", "read"),
		types.SensorRead{Name: "temp1"})
	if rv, ok := got.(types.ReadingValue); !ok || rv.Value != 42 {
		t.Fatalf("read temp1 reply = %#v; want 42", got)
	}

	// The stale retained value was cleared before the configured state was
	// published, so a fresh subscriber must not see temp0.
	sub := conn.Subscribe(bus.T("exec", "sensor", "temp0", "value"))
	defer conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		t.Fatalf("stale retained reading survived reconfigure: %#v", m.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}
