////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"sort"
	"sync"

	"github.com/golang-collections/collections/set"
)

type listener struct {
	room    string
	handler Handler
}

// registry maps rooms to their registered handlers.
type registry struct {
	listeners map[ListenerID]listener
	byRoom    map[string]*set.Set
	next      ListenerID
	mux       sync.RWMutex
}

func newRegistry() *registry {
	return &registry{
		listeners: make(map[ListenerID]listener),
		byRoom:    make(map[string]*set.Set),
	}
}

func (r *registry) add(room string, h Handler) ListenerID {
	r.mux.Lock()
	defer r.mux.Unlock()

	r.next++
	lid := r.next
	r.listeners[lid] = listener{room: room, handler: h}

	if s, ok := r.byRoom[room]; ok {
		s.Insert(lid)
	} else {
		r.byRoom[room] = set.New(lid)
	}
	return lid
}

// remove deletes the listener. Removing an unknown ID is a no-op.
func (r *registry) remove(lid ListenerID) {
	r.mux.Lock()
	defer r.mux.Unlock()

	l, ok := r.listeners[lid]
	if !ok {
		return
	}
	delete(r.listeners, lid)

	if s, ok := r.byRoom[l.room]; ok {
		s.Remove(lid)
		if s.Len() == 0 {
			delete(r.byRoom, l.room)
		}
	}
}

// handlers returns the handlers for the room in registration order.
func (r *registry) handlers(room string) []Handler {
	r.mux.RLock()
	defer r.mux.RUnlock()

	s, ok := r.byRoom[room]
	if !ok {
		return nil
	}

	ids := make([]ListenerID, 0, s.Len())
	s.Do(func(i interface{}) {
		ids = append(ids, i.(ListenerID))
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	hs := make([]Handler, len(ids))
	for i, lid := range ids {
		hs[i] = r.listeners[lid].handler
	}
	return hs
}

func (r *registry) count(room string) int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	if s, ok := r.byRoom[room]; ok {
		return s.Len()
	}
	return 0
}
