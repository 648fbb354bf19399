package types

// ------------------------
// Service state (retained)
// ------------------------

// ServiceState is published retained on <service>/state.
type ServiceState struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // detail, e.g. "configured"
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"` // errcode string
}
