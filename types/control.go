package types

// Control payloads for exec/<area>/control/<verb> requests. Replies are
// OKReply/ErrorReply or the typed results below.

// ------------------------
// Task controls
// ------------------------

// TaskDelay parks a task for Ms milliseconds. Ms 0 leaves it ready.
type TaskDelay struct {
	ID int    `json:"id"`
	Ms uint32 `json:"ms"`
}

// ------------------------
// Sensor controls
// ------------------------

type SensorRead struct {
	Name string `json:"name"`
}

type SensorFiltered struct {
	Name   string `json:"name"`
	Filter string `json:"filter"` // "ma" | "ema"
	Window int    `json:"window"`
}

// ------------------------
// Power controls
// ------------------------

type PowerSet struct {
	Mode string `json:"mode"`
}

// BatteryEstimate asks for runtime hours at a draw. A nil DrawMA means the
// current mode's draw.
type BatteryEstimate struct {
	CapacityMAh float64  `json:"capacity_mah"`
	DrawMA      *float64 `json:"draw_ma,omitempty"`
}

// PlanItem is one schedulable duty-cycle entry.
type PlanItem struct {
	Name          string  `json:"name"`
	DeadlineHours float64 `json:"deadline_h"`
	PowerMA       float64 `json:"power_ma"`
	DurationHours float64 `json:"duration_h"`
}

type PlanRequest struct {
	CapacityMAh float64    `json:"capacity_mah"`
	Tasks       []PlanItem `json:"tasks"`
}

type PlanReply struct {
	Accepted []PlanItem `json:"accepted"`
}

// ------------------------
// Comm controls
// ------------------------

type CommSend struct {
	Protocol string `json:"protocol"`
	Data     []byte `json:"data"`
}

type CommReceive struct {
	Protocol string `json:"protocol"`
	Max      int    `json:"max"`
}

type CommData struct {
	Protocol string `json:"protocol"`
	Data     []byte `json:"data"`
}
