//go:build !rp2040

package main

import (
	"rtcore-go/comms"
	"rtcore-go/sensors"
)

// Host builds jumper the link so queued frames come straight back.
func openPort() comms.Port { return comms.NewLoopback(1024) }

// openSource returns nil; the executive falls back to its simulated source.
func openSource() sensors.Source { return nil }
