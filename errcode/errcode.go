package errcode

import (
	"context"
	"errors"
)

// Code identifies a failure in bus replies and driver results. A string
// newtype stays comparable and allocation-free while satisfying error.
type Code string

func (c Code) Error() string { return string(c) }

// Replies carry these strings verbatim; renaming one is a wire change.
const (
	OK             Code = "ok"
	Busy           Code = "busy"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	InvalidTopic   Code = "invalid_topic"
	Timeout        Code = "timeout"

	TaskNotFound     Code = "task_not_found"
	CapacityExceeded Code = "capacity_exceeded"
	SensorNotFound   Code = "sensor_not_found"
	UnknownMode      Code = "unknown_mode"
	ZeroCurrent      Code = "zero_current"
	UnknownProtocol  Code = "unknown_protocol"
	BadChecksum      Code = "bad_checksum"
	ExecNotReady     Code = "exec_not_ready"

	Error Code = "error" // fallback for uncoded errors
)

// Of extracts a Code from an error, defaulting to Error. Codes buried in
// wrapped chains are found too.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// MapSourceErr maps low-level sensor source errors to a Code. Codes pass
// through unchanged; deadline errors from slow hardware become Timeout.
func MapSourceErr(err error) Code {
	if err == nil {
		return OK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Of(err)
}
