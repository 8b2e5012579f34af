////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable tracks the lifecycle of long-running goroutines so that
// the transport, the typing sweeper and the update reporter can be shut down
// deterministically.
package stoppable

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Stoppable is a goroutine, or group of goroutines, that can be asked to stop.
type Stoppable interface {
	Name() string
	GetStatus() Status
	IsRunning() bool
	IsStopping() bool
	IsStopped() bool
	Close() error
}

// Status is the lifecycle stage of a Stoppable.
type Status uint32

const (
	Running Status = iota
	Stopping
	Stopped
)

// String returns a human-readable version of [Status]. This function adheres
// to the [fmt.Stringer] interface.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "INVALID STATUS: " + strconv.Itoa(int(s))
	}
}

const pollInterval = 5 * time.Millisecond

// WaitForStopped polls until s reports Stopped or the timeout elapses.
func WaitForStopped(s Stoppable, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !s.IsStopped() {
		select {
		case <-deadline.C:
			return errors.Errorf("timed out after %s waiting for %q to stop; "+
				"status is %s", timeout, s.Name(), s.GetStatus())
		case <-ticker.C:
		}
	}
	return nil
}
