////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const toStoppingErr = "failed to set the status of single stoppable %q to " +
	"stopping when status is %s instead of %s"

// Single allows stopping a single goroutine using a channel. The goroutine
// selects on Quit and calls ToStopped once it has exited its loop.
type Single struct {
	name   string
	quit   chan struct{}
	status uint32
	once   sync.Once
}

// NewSingle returns a new Single in the Running state.
func NewSingle(name string) *Single {
	return &Single{
		name:   name,
		quit:   make(chan struct{}),
		status: uint32(Running),
	}
}

// Name returns the name of the Single.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the current Status.
func (s *Single) GetStatus() Status {
	return Status(atomic.LoadUint32(&s.status))
}

func (s *Single) IsRunning() bool  { return s.GetStatus() == Running }
func (s *Single) IsStopping() bool { return s.GetStatus() == Stopping }
func (s *Single) IsStopped() bool  { return s.GetStatus() == Stopped }

// Quit returns the channel that is closed when the Single is asked to stop.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// ToStopped marks the goroutine as exited. It panics if Close was not called
// first.
func (s *Single) ToStopped() {
	if !atomic.CompareAndSwapUint32(
		&s.status, uint32(Stopping), uint32(Stopped)) {
		jww.FATAL.Panicf("Failed to set the status of single stoppable %q "+
			"to stopped when status is %s instead of %s.",
			s.name, s.GetStatus(), Stopping)
	}
	jww.DEBUG.Printf("Single stoppable %q stopped.", s.name)
}

// Close signals the goroutine to stop. Only the first call has an effect;
// later calls return the result of the first.
func (s *Single) Close() error {
	var err error
	s.once.Do(func() {
		if !atomic.CompareAndSwapUint32(
			&s.status, uint32(Running), uint32(Stopping)) {
			err = errors.Errorf(toStoppingErr, s.name, s.GetStatus(), Running)
			return
		}
		jww.TRACE.Printf("Closing quit channel of single stoppable %q.",
			s.name)
		close(s.quit)
	})

	if err != nil {
		jww.ERROR.Print(err.Error())
	}
	return err
}
