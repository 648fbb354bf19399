// Package power manages the device power mode table and battery budget
// estimation. A Manager is single-owner state; the owning service goroutine
// performs all calls.
package power

import (
	"rtcore-go/errcode"
)

// Mode names a power state in the mode table.
type Mode string

const (
	Active      Mode = "active"
	Sleep       Mode = "sleep"
	DeepSleep   Mode = "deep_sleep"
	Hibernation Mode = "hibernation"
)

// ModeSpec describes one mode's cost and exit latency.
type ModeSpec struct {
	CurrentDrawMA float64
	WakeLatencyUS uint32
}

// The mode table is fixed at build time, shallowest to deepest.
var modeOrder = [...]Mode{Active, Sleep, DeepSleep, Hibernation}

var modeTable = map[Mode]ModeSpec{
	Active:      {CurrentDrawMA: 25.0, WakeLatencyUS: 0},
	Sleep:       {CurrentDrawMA: 1.5, WakeLatencyUS: 10},
	DeepSleep:   {CurrentDrawMA: 0.01, WakeLatencyUS: 1000},
	Hibernation: {CurrentDrawMA: 0.001, WakeLatencyUS: 5000},
}

// Modes returns the mode table order, shallowest first.
func Modes() []Mode {
	out := make([]Mode, len(modeOrder))
	copy(out, modeOrder[:])
	return out
}

// Spec returns the table entry for a mode.
func Spec(mode Mode) (ModeSpec, bool) {
	s, ok := modeTable[mode]
	return s, ok
}

// Manager tracks the active power mode. Devices boot Active.
type Manager struct {
	mode Mode
}

func New() *Manager {
	return &Manager{mode: Active}
}

// EnterMode switches the active mode. Modes outside the table are rejected.
func (m *Manager) EnterMode(mode Mode) error {
	if _, ok := modeTable[mode]; !ok {
		return errcode.UnknownMode
	}
	m.mode = mode
	return nil
}

// CurrentMode returns the active mode.
func (m *Manager) CurrentMode() Mode { return m.mode }

// CurrentDrawMA returns the active mode's draw.
func (m *Manager) CurrentDrawMA() float64 { return modeTable[m.mode].CurrentDrawMA }

// EstimateBatteryLife projects runtime hours for a battery capacity. With no
// explicit draw it uses the active mode's. A non-positive draw is reported,
// never divided by.
func (m *Manager) EstimateBatteryLife(capacityMAh float64, avgCurrentMA ...float64) (float64, error) {
	if capacityMAh < 0 {
		return 0, errcode.InvalidParams
	}
	draw := modeTable[m.mode].CurrentDrawMA
	if len(avgCurrentMA) > 0 {
		draw = avgCurrentMA[0]
	}
	if draw <= 0 {
		return 0, errcode.ZeroCurrent
	}
	return capacityMAh / draw, nil
}
