package uplink

import "fmt"

// Redis key layout.
//
// Key pattern:     rtcore:{device}:retained:{topic_path}
// Boot pattern:    rtcore:{device}:boot
// Channel pattern: rtcore:{device}:events
//
// topic_path is the bus topic joined with "/", so exec/sensor/temp0/value
// mirrors at rtcore:rig-01:retained:exec/sensor/temp0/value.

// RetainedKey returns the Redis key mirroring one retained bus topic.
func RetainedKey(device, topicPath string) string {
	return fmt.Sprintf("rtcore:%s:retained:%s", device, topicPath)
}

// BootKey returns the Redis key holding the current boot record.
func BootKey(device string) string {
	return fmt.Sprintf("rtcore:%s:boot", device)
}

// EventsChannel returns the Pub/Sub channel notified after each flush.
func EventsChannel(device string) string {
	return fmt.Sprintf("rtcore:%s:events", device)
}
