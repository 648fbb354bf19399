// Package exec is the control executive. It owns the task kernel, the sensor
// registry, the power manager and the protocol stack, and exposes them over
// the bus: config/exec configures the rig, exec/<area>/control/<verb> answers
// request/reply control traffic, and retained exec/... topics carry telemetry.
//
// All subsystem state is confined to the service goroutine. Task bodies run
// inside Dispatch on that same goroutine, so they may touch the subsystems
// directly without locks.
package exec

import (
	"context"
	"encoding/json"
	"time"

	"rtcore-go/bus"
	"rtcore-go/comms"
	"rtcore-go/errcode"
	"rtcore-go/kernel"
	"rtcore-go/power"
	"rtcore-go/sensors"
	"rtcore-go/types"
	"rtcore-go/x/fmtx"
	"rtcore-go/x/strx"
	"rtcore-go/x/timex"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run drives the executive until ctx is cancelled. port carries framed link
// traffic and may be nil when the rig has no wire. src supplies raw sensor
// samples; nil falls back to the built-in simulated source.
func Run(ctx context.Context, conn *bus.Connection, port comms.Port, src sensors.Source) {
	if src == nil {
		src = SimSource()
	}
	s := &service{
		conn:    conn,
		port:    port,
		src:     src,
		frames:  comms.NewFrameReader(),
		scratch: make([]byte, 256),
	}
	s.loop(ctx)
}

type service struct {
	conn *bus.Connection
	port comms.Port
	src  sensors.Source

	kern  *kernel.Kernel
	reg   *sensors.Registry
	pwr   *power.Manager
	stack *comms.Stack

	ready          bool
	linkProto      string
	telemetryEvery uint64
	dispatchBudget int

	frames  *comms.FrameReader
	scratch []byte
	wire    []byte
	rows    []kernel.TaskInfo
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "exec"))
	ctrlSub := s.conn.Subscribe(bus.T("exec", "+", "control", "+"))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	// Armed to the real tick period by the first config.
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	var readable <-chan struct{}
	if s.port != nil {
		readable = s.port.Readable()
	}

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.ExecConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				println("[exec] bad config:", err.Error())
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				println("[exec] config rejected:", err.Error())
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			ticker.Reset(timex.DurationFromHz(s.kern.TickHz()))
			s.publishState("ready", "configured", nil)
			println("[exec] configured:", s.kern.Len(), "tasks,", s.reg.Len(), "sensors,", s.stack.Len(), "protocols")

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-ticker.C:
			if !s.ready {
				continue
			}
			s.onTick()

		case <-readable:
			s.pumpRX()
		}
	}
}

// onTick advances the timebase, runs ready tasks within the dispatch budget,
// pushes pending link frames to the wire, and publishes telemetry on the
// configured divider.
func (s *service) onTick() {
	s.kern.Tick()
	for i := 0; i < s.dispatchBudget; i++ {
		if _, ok := s.kern.Dispatch(); !ok {
			break
		}
	}
	s.pumpTX()
	if s.kern.TickCount()%s.telemetryEvery == 0 {
		s.publishTelemetry()
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// applyConfig builds a fresh set of subsystems from cfg and installs them
// only once everything has been accepted, so a rejected config leaves the
// running rig untouched.
func (s *service) applyConfig(cfg types.ExecConfig) error {
	kern := kernel.New(kernel.Config{TickHz: cfg.TickHz, MaxTasks: cfg.MaxTasks, StackSize: cfg.StackSize})
	reg := sensors.New(sensors.Config{Source: s.src})
	pwr := power.New()
	stack := comms.NewStack()

	for _, sp := range cfg.Sensors {
		if err := reg.Register(sp.Name, sp.SampleHz, sp.ResolutionBits); err != nil {
			return fmtx.Errorf("sensor %s: %s", sp.Name, err.Error())
		}
	}
	for i, pp := range cfg.Protocols {
		if pp.Name == "" {
			return fmtx.Errorf("protocol %d: %s", i, errcode.InvalidParams.Error())
		}
		stack.AddProtocol(pp.Name, pp.Kind)
	}
	if cfg.PowerMode != "" {
		if err := pwr.EnterMode(power.Mode(cfg.PowerMode)); err != nil {
			return fmtx.Errorf("power mode %s: %s", cfg.PowerMode, err.Error())
		}
	}
	if cfg.Link.Protocol != "" {
		if _, ok := stack.Status(cfg.Link.Protocol); !ok {
			return fmtx.Errorf("link %s: %s", cfg.Link.Protocol, errcode.UnknownProtocol.Error())
		}
	}
	// Bodies read the live service fields at dispatch time, so tasks can be
	// created on the new kernel before it is installed.
	for _, ts := range cfg.Tasks {
		if _, err := s.createTaskOn(kern, ts); err != nil {
			return fmtx.Errorf("task %s: %s", ts.Name, err.Error())
		}
	}

	s.clearStaleRetained(reg, stack)

	s.kern, s.reg, s.pwr, s.stack = kern, reg, pwr, stack
	s.linkProto = cfg.Link.Protocol
	s.dispatchBudget = kern.MaxTasks()

	ms := cfg.TelemetryMs
	if ms == 0 {
		ms = 1000
	}
	every := uint64(ms) * uint64(kern.TickHz()) / 1000
	if every == 0 {
		every = 1
	}
	s.telemetryEvery = every
	s.ready = true
	return nil
}

// clearStaleRetained drops retained value/status topics for sensors and
// protocols that a reconfigure removed, so late subscribers never see state
// from the previous rig.
func (s *service) clearStaleRetained(reg *sensors.Registry, stack *comms.Stack) {
	if !s.ready {
		return
	}
	for _, name := range s.reg.Names() {
		if _, ok := reg.Info(name); !ok {
			s.pubRet(bus.T("exec", "sensor", name, "value"), nil)
		}
	}
	for _, name := range s.stack.Protocols() {
		if _, ok := stack.Status(name); !ok {
			s.pubRet(bus.T("exec", "comm", name, "status"), nil)
		}
	}
}

// -----------------------------------------------------------------------------
// Task bodies
// -----------------------------------------------------------------------------

func (s *service) createTaskOn(k *kernel.Kernel, ts types.TaskSpec) (kernel.TaskID, error) {
	prio, ok := kernel.ParsePriority(ts.Priority)
	if !ok {
		return 0, errcode.InvalidParams
	}
	body, err := s.taskBody(ts)
	if err != nil {
		return 0, err
	}
	return k.Create(ts.Name, prio, ts.StackSize, body)
}

// taskBody binds a TaskSpec action to a kernel task function. Bodies resolve
// the subsystems through s at dispatch time, which keeps them valid across
// reconfiguration.
func (s *service) taskBody(ts types.TaskSpec) (kernel.TaskFunc, error) {
	period := time.Duration(ts.PeriodMs) * time.Millisecond
	rearm := func(id kernel.TaskID) {
		if period > 0 {
			_ = s.kern.Delay(id, period)
		}
	}
	switch ts.Action {
	case "sample":
		name := ts.Sensor
		return func(id kernel.TaskID) {
			if v, err := s.reg.Read(name); err == nil {
				s.pubReading(name, v)
			}
			rearm(id)
		}, nil
	case "telemetry":
		proto := ts.Protocol
		return func(id kernel.TaskID) {
			s.sendReadingsFrame(proto)
			rearm(id)
		}, nil
	case "noop", "":
		return func(id kernel.TaskID) {
			rearm(id)
		}, nil
	default:
		return nil, errcode.InvalidParams
	}
}

// sendReadingsFrame queues the latest sensor values, JSON-encoded, on a
// protocol channel for the wire. An empty proto falls back to the link
// protocol.
func (s *service) sendReadingsFrame(proto string) {
	if proto == "" {
		proto = s.linkProto
	}
	if proto == "" {
		return
	}
	readings := map[string]float64{}
	for _, name := range s.reg.Names() {
		if info, ok := s.reg.Info(name); ok && info.HasValue {
			readings[name] = info.LastValue
		}
	}
	b, err := json.Marshal(map[string]any{"ts_ms": timex.NowMs(), "readings": readings})
	if err != nil {
		return
	}
	s.stack.Send(proto, b)
}

// -----------------------------------------------------------------------------
// Wire pumps
// -----------------------------------------------------------------------------

// pumpTX drains the link protocol's TX queue to the port, one frame per
// payload. Frames the port cannot take whole are dropped; the framing layer
// resynchronises on the far side.
func (s *service) pumpTX() {
	if s.port == nil || s.linkProto == "" {
		return
	}
	for {
		payload, ok := s.stack.PopTX(s.linkProto)
		if !ok {
			break
		}
		wire, err := comms.AppendFrame(s.wire[:0], payload)
		if err != nil {
			println("[exec] tx frame rejected:", err.Error())
			continue
		}
		s.wire = wire
		if _, err := s.port.Write(wire); err != nil {
			println("[exec] port write failed:", err.Error())
			break
		}
	}
}

// pumpRX drains the port into the frame reader and injects decoded frames
// into the link protocol's RX queue. The port must be drained even before
// the first config so its readable edge re-arms; frames decoded while no
// link is configured are dropped.
func (s *service) pumpRX() {
	if s.port == nil {
		return
	}
	for {
		n, err := s.port.Read(s.scratch)
		if err != nil || n == 0 {
			break
		}
		s.frames.Feed(s.scratch[:n])
	}
	for {
		payload, err := s.frames.Next()
		if err != nil {
			println("[exec] rx frame dropped:", err.Error())
			continue
		}
		if payload == nil {
			break
		}
		if s.ready && s.linkProto != "" {
			s.stack.InjectRX(s.linkProto, payload)
		}
	}
}

// -----------------------------------------------------------------------------
// Telemetry
// -----------------------------------------------------------------------------

func (s *service) publishTelemetry() {
	now := timex.NowMs()

	s.pubRet(bus.T("exec", "task", "table"), s.taskTable())

	for _, name := range s.reg.Names() {
		info, ok := s.reg.Info(name)
		if !ok || !info.HasValue {
			continue
		}
		s.pubRet(bus.T("exec", "sensor", name, "value"),
			types.ReadingValue{Name: name, Value: info.LastValue, TS: info.LastSampleMs})
	}

	s.pubRet(bus.T("exec", "power", "state"), s.powerState(now))

	for _, name := range s.stack.Protocols() {
		if info, ok := s.stack.Info(name); ok {
			s.pubRet(bus.T("exec", "comm", name, "status"), commStatus(info, now))
		}
	}
}

// taskTable snapshots the kernel into a fresh table. Retained messages keep
// their payloads after publish, so the rows must not be reused.
func (s *service) taskTable() types.TaskTable {
	s.rows = s.kern.Snapshot(s.rows[:0])
	table := types.TaskTable{
		Ticks: s.kern.TickCount(),
		Tasks: make([]types.TaskRow, 0, len(s.rows)),
	}
	if id, ok := s.kern.Current(); ok {
		table.Current = int(id)
	}
	for _, info := range s.rows {
		table.Tasks = append(table.Tasks, taskRow(info))
	}
	return table
}

func (s *service) powerState(now int64) types.PowerState {
	mode := s.pwr.CurrentMode()
	st := types.PowerState{Mode: string(mode), DrawMA: s.pwr.CurrentDrawMA(), TS: now}
	if spec, ok := power.Spec(mode); ok {
		st.WakeLatencyUS = spec.WakeLatencyUS
	}
	return st
}

func (s *service) pubReading(name string, v float64) {
	s.pubRet(bus.T("exec", "sensor", name, "value"),
		types.ReadingValue{Name: name, Value: v, TS: timex.NowMs()})
}

// -----------------------------------------------------------------------------
// Bus helpers
// -----------------------------------------------------------------------------

func (s *service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		// JSON decode errors can quote the whole payload; keep state frames small.
		st.Error = strx.Clip(err.Error(), 160)
	}
	s.conn.Publish(s.conn.NewMessage(bus.T("exec", "state"), st, true))
}

func (s *service) pubRet(topic bus.Topic, payload any) {
	s.conn.Publish(s.conn.NewMessage(topic, payload, true))
}

// decodeJSON coerces a bus payload into dst. Typed payloads pass through,
// raw JSON decodes directly, and anything else round-trips through JSON so
// generic map payloads decode like the wire form.
func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case T:
		*dst = v
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
