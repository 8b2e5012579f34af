////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Multi groups Stoppables that are closed together.
type Multi struct {
	name       string
	stoppables []Stoppable
	mux        sync.RWMutex
	once       sync.Once
}

// NewMulti returns an empty Multi.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

func (m *Multi) Name() string {
	return m.name
}

// Add adds a Stoppable to the group.
func (m *Multi) Add(s Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, s)
	m.mux.Unlock()
}

// GetStatus returns the least advanced status of the members. An empty Multi
// is Running until closed.
func (m *Multi) GetStatus() Status {
	m.mux.RLock()
	defer m.mux.RUnlock()

	lowest := Stopped
	if len(m.stoppables) == 0 {
		lowest = Running
	}
	for _, s := range m.stoppables {
		if st := s.GetStatus(); st < lowest {
			lowest = st
		}
	}
	return lowest
}

func (m *Multi) IsRunning() bool  { return m.GetStatus() == Running }
func (m *Multi) IsStopping() bool { return m.GetStatus() == Stopping }
func (m *Multi) IsStopped() bool  { return m.GetStatus() == Stopped }

// Close closes every member concurrently and returns a combined error naming
// the members that failed.
func (m *Multi) Close() error {
	var err error
	m.once.Do(func() {
		m.mux.RLock()
		members := append([]Stoppable(nil), m.stoppables...)
		m.mux.RUnlock()

		var (
			wg     sync.WaitGroup
			errMux sync.Mutex
			failed []string
		)
		for _, s := range members {
			wg.Add(1)
			go func(s Stoppable) {
				defer wg.Done()
				if closeErr := s.Close(); closeErr != nil {
					errMux.Lock()
					failed = append(failed, s.Name())
					errMux.Unlock()
				}
			}(s)
		}
		wg.Wait()

		if len(failed) > 0 {
			err = errors.Errorf("MultiStopper %q failed to close: %s",
				m.name, strings.Join(failed, ", "))
			jww.ERROR.Print(err.Error())
		}
	})
	return err
}
