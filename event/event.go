////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package event delivers UI update streams to registered callbacks from a
// single reporting goroutine.
package event

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/stoppable"
)

// DefaultQueueSize is the backlog of updates past which Report coalesces.
const DefaultQueueSize = 1000

// ErrCallbackExists is returned when registering a name that is taken.
var ErrCallbackExists = errors.New("callback already registered")

// Manager holds the state for update reporting.
type Manager struct {
	limit int

	mux     sync.Mutex
	backlog []*queued
	latest  map[updateKey]*queued

	// signal has room for one wakeup of the reporting goroutine
	signal chan struct{}
	cbs    sync.Map
}

type queued struct {
	u Update
}

// updateKey identifies the stream an update belongs to. A newer update with
// the same key supersedes an older one.
type updateKey struct {
	kind         string
	conversation string
}

func keyOf(u Update) updateKey {
	return updateKey{kind: fmt.Sprintf("%T", u), conversation: u.Conversation()}
}

// NewManager returns a Manager that queues up to queueSize updates before it
// starts coalescing. A non-positive size uses DefaultQueueSize.
func NewManager(queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Manager{
		limit:  queueSize,
		latest: make(map[updateKey]*queued),
		signal: make(chan struct{}, 1),
	}
}

// Report queues an update for delivery and never blocks. Once the backlog
// reaches the queue size, an update replaces the queued update of the same
// kind for the same conversation instead of growing the backlog, so the
// newest snapshot of every stream is always delivered.
func (m *Manager) Report(u Update) {
	key := keyOf(u)

	m.mux.Lock()
	if q, exists := m.latest[key]; exists && len(m.backlog) >= m.limit {
		q.u = u
		m.mux.Unlock()
		jww.TRACE.Printf("Update coalesced: %s", Describe(u))
		return
	}
	q := &queued{u: u}
	m.backlog = append(m.backlog, q)
	m.latest[key] = q
	if len(m.backlog) > m.limit {
		jww.WARN.Printf("Update backlog at %d, above the queue size of %d",
			len(m.backlog), m.limit)
	}
	m.mux.Unlock()

	jww.TRACE.Printf("Update reported: %s", Describe(u))
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// drain takes every queued update in report order.
func (m *Manager) drain() []Update {
	m.mux.Lock()
	defer m.mux.Unlock()
	out := make([]Update, len(m.backlog))
	for i, q := range m.backlog {
		out[i] = q.u
	}
	m.backlog = nil
	m.latest = make(map[updateKey]*queued)
	return out
}

// pending returns the number of queued updates.
func (m *Manager) pending() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return len(m.backlog)
}

// RegisterCallback records cb under name to receive every update.
func (m *Manager) RegisterCallback(name string, cb Callback) error {
	if _, exists := m.cbs.LoadOrStore(name, cb); exists {
		return errors.Wrapf(ErrCallbackExists, "name %q", name)
	}
	return nil
}

// UnregisterCallback deletes the callback registered under name.
func (m *Manager) UnregisterCallback(name string) {
	m.cbs.Delete(name)
}

// Start launches the reporting goroutine.
func (m *Manager) Start() stoppable.Stoppable {
	stop := stoppable.NewSingle("UpdateReporting")
	go m.reportUpdatesHandler(stop)
	return stop
}

// reportUpdatesHandler delivers updates in order to every callback. Callbacks
// run on this goroutine and must not block.
func (m *Manager) reportUpdatesHandler(stop *stoppable.Single) {
	jww.DEBUG.Print("reportUpdatesHandler routine started")
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Print("Stopping reportUpdatesHandler")
			stop.ToStopped()
			return
		case <-m.signal:
			for _, u := range m.drain() {
				m.cbs.Range(func(_, cb interface{}) bool {
					cb.(Callback)(u)
					return true
				})
			}
		}
	}
}
