package types

// Retained telemetry payloads the executive publishes.

// TaskRow mirrors one kernel task control block.
type TaskRow struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Priority  string `json:"priority"`
	State     string `json:"state"`
	WaitTicks uint32 `json:"wait_ticks"`
	Runs      uint32 `json:"runs"`
	StackSize int    `json:"stack_size"`
}

// TaskTable is published retained on exec/task/table.
type TaskTable struct {
	Ticks   uint64    `json:"ticks"`
	Current int       `json:"current,omitempty"` // 0 when nothing scheduled
	Tasks   []TaskRow `json:"tasks"`
}

// ReadingValue is published retained on exec/sensor/<name>/value.
type ReadingValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	TS    int64   `json:"ts_ms"`
}

// PowerState is published retained on exec/power/state.
type PowerState struct {
	Mode          string  `json:"mode"`
	DrawMA        float64 `json:"draw_ma"`
	WakeLatencyUS uint32  `json:"wake_latency_us"`
	TS            int64   `json:"ts_ms"`
}

// BatteryLife answers a battery estimate request.
type BatteryLife struct {
	Hours float64 `json:"hours"`
}

// CommStatus is published retained on exec/comm/<name>/status.
type CommStatus struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Status  string `json:"status"` // "idle" | "transmitting"
	TXDepth int    `json:"tx_depth"`
	RXDepth int    `json:"rx_depth"`
	TS      int64  `json:"ts_ms"`
}

// Heartbeat is published retained on heartbeat/beat.
type Heartbeat struct {
	Seq uint32 `json:"seq"`
	TS  int64  `json:"ts_ms"`
}
