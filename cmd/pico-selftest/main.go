//go:build rp2040

package main

import (
	"time"

	"machine"

	"rtcore-go/comms"
	"rtcore-go/errcode"
	"rtcore-go/kernel"
	"rtcore-go/power"
	"rtcore-go/sensors"
	"rtcore-go/x/conv"
)

// --- tiny logger (avoid fmt on MCU) ------------------------------------------

func logln(s string) { println(s) }
func logf(format string, a ...interface{}) {
	// minimal %s, %d substitution to keep code tiny
	out := make([]byte, 0, len(format)+16)
	var num [20]byte
	argi := 0
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			switch format[i+1] {
			case 's':
				if argi < len(a) {
					out = append(out, toString(a[argi])...)
					argi++
				}
				i++
				continue
			case 'd':
				if argi < len(a) {
					out = append(out, conv.Itoa(num[:], intFrom(a[argi]))...)
					argi++
				}
				i++
				continue
			}
		}
		out = append(out, format[i])
	}
	println(string(out))
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return "<val>"
	}
}

func intFrom(v interface{}) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case kernel.TaskID:
		return int64(x)
	default:
		return 0
	}
}

// near compares floats to a fixed tolerance; milli drops one to an int for logf.
func near(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func milli(f float64) int64 { return int64(f * 1000) }

// manual clock so rate-limit checks do not depend on wall time
type testClock struct{ at time.Time }

func (c *testClock) now() time.Time          { return c.at }
func (c *testClock) advance(d time.Duration) { c.at = c.at.Add(d) }
func newTestClock() *testClock               { return &testClock{at: time.Unix(0, 0)} }

// --- individual tests (return bool pass/fail) --------------------------------

func TestKernelPriorityOrder() bool {
	k := kernel.New(kernel.Config{TickHz: 100, MaxTasks: 4})

	var order []string
	lo, _ := k.Create("lo", kernel.Low, 0, func(id kernel.TaskID) {
		order = append(order, "lo")
		_ = k.Delay(id, time.Hour)
	})
	hi, _ := k.Create("hi", kernel.Critical, 0, func(id kernel.TaskID) {
		order = append(order, "hi")
		_ = k.Delay(id, time.Hour)
	})
	if lo != 1 || hi != 2 {
		logln("TestKernelPriorityOrder: unexpected ids")
		return false
	}

	k.Dispatch()
	k.Dispatch()
	if len(order) != 2 || order[0] != "hi" || order[1] != "lo" {
		logln("TestKernelPriorityOrder: wrong run order")
		return false
	}
	return true
}

func TestKernelDelayTiming() bool {
	k := kernel.New(kernel.Config{TickHz: 100, MaxTasks: 4})

	runs := 0
	id, _ := k.Create("beat", kernel.Normal, 0, func(id kernel.TaskID) { runs++ })
	if err := k.Delay(id, 25*time.Millisecond); err != nil {
		logf("TestKernelDelayTiming: delay: %s", err.Error())
		return false
	}

	// 25ms at 100Hz is 2 ticks
	k.Tick()
	if _, ok := k.Dispatch(); ok {
		logln("TestKernelDelayTiming: ran one tick early")
		return false
	}
	k.Tick()
	if _, ok := k.Dispatch(); !ok || runs != 1 {
		logf("TestKernelDelayTiming: runs=%d after wake", runs)
		return false
	}
	return true
}

func TestKernelTableLimit() bool {
	k := kernel.New(kernel.Config{MaxTasks: 2})
	k.Create("a", kernel.Normal, 0, nil)
	k.Create("b", kernel.Normal, 0, nil)
	if _, err := k.Create("c", kernel.Normal, 0, nil); err != errcode.CapacityExceeded {
		logln("TestKernelTableLimit: third create not rejected")
		return false
	}
	return true
}

func TestSensorRateLimit() bool {
	clk := newTestClock()
	pulls := 0
	reg := sensors.New(sensors.Config{
		Source: sensors.SourceFunc(func(string) (float64, error) {
			pulls++
			return float64(pulls), nil
		}),
		Now: clk.now,
	})
	reg.Register("temp0", 10, 12) // 100ms period

	reg.Read("temp0")
	reg.Read("temp0")
	if pulls != 1 {
		logf("TestSensorRateLimit: pulls=%d within period", pulls)
		return false
	}
	clk.advance(100 * time.Millisecond)
	reg.Read("temp0")
	if pulls != 2 {
		logf("TestSensorRateLimit: pulls=%d after period", pulls)
		return false
	}
	return true
}

func TestSensorFilters() bool {
	clk := newTestClock()
	next := 0.0
	reg := sensors.New(sensors.Config{
		Source: sensors.SourceFunc(func(string) (float64, error) {
			next++
			return next, nil
		}),
		Now: clk.now,
	})
	reg.Register("temp0", 10, 12)

	for i := 0; i < 5; i++ {
		reg.Read("temp0")
		clk.advance(100 * time.Millisecond)
	}

	ma, err := reg.Filtered("temp0", sensors.MovingAverage, 5)
	if err != nil || !near(ma, 3.0) {
		logf("TestSensorFilters: ma=%d milli", milli(ma))
		return false
	}
	ema, err := reg.Filtered("temp0", sensors.Exponential, 5)
	if err != nil || !near(ema, 275.0/81.0) {
		logf("TestSensorFilters: ema=%d milli", milli(ema))
		return false
	}
	return true
}

func TestPowerModeTable() bool {
	m := power.New()
	if m.CurrentMode() != power.Active || !near(m.CurrentDrawMA(), 25.0) {
		logln("TestPowerModeTable: boot mode wrong")
		return false
	}
	if err := m.EnterMode(power.DeepSleep); err != nil || !near(m.CurrentDrawMA(), 0.01) {
		logln("TestPowerModeTable: deep_sleep wrong")
		return false
	}
	if err := m.EnterMode("overdrive"); err != errcode.UnknownMode {
		logln("TestPowerModeTable: unknown mode accepted")
		return false
	}
	return true
}

func TestPowerEstimate() bool {
	m := power.New()
	h, err := m.EstimateBatteryLife(2000, 1.0)
	if err != nil || !near(h, 2000) {
		logf("TestPowerEstimate: explicit draw hours=%d", int64(h))
		return false
	}
	h, err = m.EstimateBatteryLife(2000)
	if err != nil || !near(h, 80) {
		logf("TestPowerEstimate: active draw hours=%d", int64(h))
		return false
	}
	if _, err := m.EstimateBatteryLife(2000, 0); err != errcode.ZeroCurrent {
		logln("TestPowerEstimate: zero draw not rejected")
		return false
	}
	return true
}

func TestPowerPlanBudget() bool {
	plan := power.OptimizeSchedule([]power.TaskPlan{
		{Name: "a", DeadlineHours: 1, PowerMA: 5, DurationHours: 2},
		{Name: "b", DeadlineHours: 2, PowerMA: 50, DurationHours: 1},
		{Name: "c", DeadlineHours: 3, PowerMA: 8, DurationHours: 4},
	}, 240)
	if len(plan) != 2 || plan[0].Name != "a" || plan[1].Name != "c" {
		logf("TestPowerPlanBudget: accepted=%d", len(plan))
		return false
	}
	return true
}

func TestCRCKnownVector() bool {
	var hx [4]byte
	if got := comms.CRC16([]byte("123456789")); got != 0x4B37 {
		logf("TestCRCKnownVector: got=%s", string(conv.U16Hex(hx[:], got)))
		return false
	}
	if got := comms.CRC16(nil); got != 0xFFFF {
		logf("TestCRCKnownVector: empty=%s", string(conv.U16Hex(hx[:], got)))
		return false
	}
	return true
}

func TestFrameRoundTrip() bool {
	wire, err := comms.EncodeFrame([]byte("hello-rig"))
	if err != nil {
		logf("TestFrameRoundTrip: encode: %s", err.Error())
		return false
	}

	r := comms.NewFrameReader()
	r.Feed(wire[:3])
	if p, _ := r.Next(); p != nil {
		logln("TestFrameRoundTrip: frame before all bytes")
		return false
	}
	r.Feed(wire[3:])
	p, err := r.Next()
	if err != nil || string(p) != "hello-rig" {
		logf("TestFrameRoundTrip: payload=%s", string(p))
		return false
	}
	if r.Buffered() != 0 {
		logf("TestFrameRoundTrip: %d bytes left", r.Buffered())
		return false
	}
	return true
}

func TestFrameCorruptionResync() bool {
	bad, _ := comms.EncodeFrame([]byte("first"))
	bad[3] ^= 0xFF // corrupt payload, keep length plausible
	good, _ := comms.EncodeFrame([]byte("second"))

	r := comms.NewFrameReader()
	r.Feed(bad)
	r.Feed(good)

	if _, err := r.Next(); err != errcode.BadChecksum {
		logln("TestFrameCorruptionResync: corrupt frame not dropped")
		return false
	}
	p, err := r.Next()
	if err != nil || string(p) != "second" {
		logln("TestFrameCorruptionResync: lost the good frame")
		return false
	}
	return true
}

func TestStackQueues() bool {
	s := comms.NewStack()
	s.AddProtocol("uart0", "uart")

	if ok := s.Send("uart0", []byte("out")); !ok {
		logln("TestStackQueues: send rejected")
		return false
	}
	if st, _ := s.Status("uart0"); st != comms.Transmitting {
		logln("TestStackQueues: not transmitting after send")
		return false
	}
	if f, ok := s.PopTX("uart0"); !ok || string(f) != "out" {
		logln("TestStackQueues: pop mismatch")
		return false
	}
	if st, _ := s.Status("uart0"); st != comms.Idle {
		logln("TestStackQueues: not idle after drain")
		return false
	}

	s.InjectRX("uart0", []byte("abc"))
	s.InjectRX("uart0", []byte("def"))
	got, ok := s.Receive("uart0", 4)
	if !ok || string(got) != "abcd" {
		logf("TestStackQueues: first receive=%s", string(got))
		return false
	}
	got, ok = s.Receive("uart0", 10)
	if !ok || string(got) != "ef" {
		logf("TestStackQueues: second receive=%s", string(got))
		return false
	}
	return true
}

// --- main: run all tests, report, and blink LED on failure --------------------

type testFn struct {
	name string
	fn   func() bool
}

func main() {
	// Give the USB CDC time to enumerate so logs show up reliably.
	time.Sleep(250 * time.Millisecond)

	// Configure onboard LED (GP25 on Pico).
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.High() // signal "running"

	tests := []testFn{
		{"TestKernelPriorityOrder", TestKernelPriorityOrder},
		{"TestKernelDelayTiming", TestKernelDelayTiming},
		{"TestKernelTableLimit", TestKernelTableLimit},
		{"TestSensorRateLimit", TestSensorRateLimit},
		{"TestSensorFilters", TestSensorFilters},
		{"TestPowerModeTable", TestPowerModeTable},
		{"TestPowerEstimate", TestPowerEstimate},
		{"TestPowerPlanBudget", TestPowerPlanBudget},
		{"TestCRCKnownVector", TestCRCKnownVector},
		{"TestFrameRoundTrip", TestFrameRoundTrip},
		{"TestFrameCorruptionResync", TestFrameCorruptionResync},
		{"TestStackQueues", TestStackQueues},
	}

	passed, failed := 0, 0
	logln("== rtcore self-test starting ==")
	for _, tc := range tests {
		ok := tc.fn()
		if ok {
			logf("[PASS] %s", tc.name)
			passed++
		} else {
			logf("[FAIL] %s", tc.name)
			failed++
		}
		// tiny pause between tests to keep timings sane on MCU
		time.Sleep(10 * time.Millisecond)
	}
	logf("== done: %d passed, %d failed ==", passed, failed)

	// LED: solid ON if all passed, otherwise slow blink forever.
	if failed == 0 {
		for {
			led.High()
			time.Sleep(2 * time.Second)
		}
	} else {
		for {
			led.High()
			time.Sleep(250 * time.Millisecond)
			led.Low()
			time.Sleep(250 * time.Millisecond)
		}
	}
}
