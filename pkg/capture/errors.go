package capture

import (
	"errors"
	"fmt"
)

// Stage identifies which part of the capture chain produced a failure.
type Stage int

const (
	StageConfig Stage = iota
	StageSource
	StageSink
	StageAllocation
)

func (s Stage) String() string {
	switch s {
	case StageConfig:
		return "configuration"
	case StageSource:
		return "source"
	case StageSink:
		return "sink"
	case StageAllocation:
		return "allocation"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ErrDraining is returned for packets delivered after teardown started.
var ErrDraining = errors.New("pipeline is draining")

type Error struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(stage Stage, op string, err error) *Error {
	return &Error{Stage: stage, Op: op, Err: err}
}

// StageOf reports the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Stage, true
	}
	return 0, false
}

// ShortWriteError is returned when the sink persists fewer bytes than a full frame.
type ShortWriteError struct {
	Resolution Resolution
	Wanted     int
	Written    int
	Err        error
}

func (e *ShortWriteError) Error() string {
	msg := fmt.Sprintf("short write, samples lost (%s): wrote %d of %d bytes", e.Resolution, e.Written, e.Wanted)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ShortWriteError) Unwrap() error {
	return e.Err
}
