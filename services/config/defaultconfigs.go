package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgSim = `{
  "exec": {
    "tick_hz": 100,
    "max_tasks": 16,
    "telemetry_ms": 1000,
    "power_mode": "active",
    "link": {"protocol": "uart0", "baud": 115200},
    "sensors": [
      {"name": "temp0", "sample_hz": 10, "resolution_bits": 12},
      {"name": "vbat", "sample_hz": 1, "resolution_bits": 10}
    ],
    "protocols": [
      {"name": "uart0", "kind": "uart"},
      {"name": "i2c0", "kind": "i2c"}
    ],
    "tasks": [
      {"name": "sample-temp0", "action": "sample", "sensor": "temp0", "period_ms": 100, "priority": "high"},
      {"name": "sample-vbat", "action": "sample", "sensor": "vbat", "period_ms": 1000},
      {"name": "uplink", "action": "telemetry", "period_ms": 1000, "priority": "low"}
    ]
  },
  "heartbeat": {
    "interval_ms": 2000
  },
  "uplink": {
    "addr": "127.0.0.1:6379",
    "device": "sim",
    "flush_ms": 500
  }
}`

const cfgPico = `{
  "exec": {
    "tick_hz": 1000,
    "max_tasks": 8,
    "telemetry_ms": 2000,
    "power_mode": "active",
    "link": {"protocol": "uart0", "baud": 115200},
    "sensors": [
      {"name": "temp0", "sample_hz": 4, "resolution_bits": 12}
    ],
    "protocols": [
      {"name": "uart0", "kind": "uart"}
    ],
    "tasks": [
      {"name": "sample-temp0", "action": "sample", "sensor": "temp0", "period_ms": 250, "priority": "high"},
      {"name": "uplink", "action": "telemetry", "period_ms": 2000, "priority": "low"}
    ]
  },
  "heartbeat": {
    "interval_ms": 2000
  }
}`

var embeddedConfigs = map[string][]byte{
	"sim":  []byte(cfgSim),
	"pico": []byte(cfgPico),
}
