package types

// Executive configuration supplied on topic "config/exec".

// ExecConfig provisions the executive: kernel geometry, declared sensors and
// protocol channels, the initial power mode and the built-in task set.
// Zero fields take the executive's defaults.
type ExecConfig struct {
	TickHz      uint32         `json:"tick_hz,omitempty"`
	MaxTasks    int            `json:"max_tasks,omitempty"`
	StackSize   int            `json:"stack_size,omitempty"`
	PowerMode   string         `json:"power_mode,omitempty"`
	TelemetryMs uint32         `json:"telemetry_ms,omitempty"`
	Link        LinkSpec       `json:"link,omitempty"`
	Sensors     []SensorSpec   `json:"sensors,omitempty"`
	Protocols   []ProtocolSpec `json:"protocols,omitempty"`
	Tasks       []TaskSpec     `json:"tasks,omitempty"`
}

// SensorSpec declares one sensor to register.
type SensorSpec struct {
	Name           string  `json:"name"`
	SampleHz       float64 `json:"sample_hz"`
	ResolutionBits int     `json:"resolution_bits"`
}

// ProtocolSpec declares one protocol channel.
type ProtocolSpec struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // e.g. "uart", "i2c", "spi"
}

// TaskSpec declares a kernel task. Action selects the built-in body:
// "sample" reads Sensor once, "telemetry" frames the latest readings and
// sends them on Protocol, "noop" only reschedules. A task with PeriodMs > 0
// re-arms itself with a delay after each run; with 0 it stays ready and
// runs every dispatch cycle.
type TaskSpec struct {
	Name      string `json:"name"`
	Priority  string `json:"priority,omitempty"` // "critical".."low"; default "normal"
	StackSize int    `json:"stack_size,omitempty"`
	PeriodMs  uint32 `json:"period_ms,omitempty"`
	Action    string `json:"action"`
	Sensor    string `json:"sensor,omitempty"`   // for "sample"
	Protocol  string `json:"protocol,omitempty"` // for "telemetry"
}

// LinkSpec names the protocol channel pumped over the wire port.
type LinkSpec struct {
	Protocol string `json:"protocol,omitempty"`
	Baud     uint32 `json:"baud,omitempty"`
}

// UplinkConfig provisions the host-side telemetry mirror.
type UplinkConfig struct {
	Addr    string `json:"addr"` // redis host:port
	DB      int    `json:"db,omitempty"`
	Device  string `json:"device"` // key namespace, e.g. "rig-01"
	FlushMs uint32 `json:"flush_ms,omitempty"`
}
