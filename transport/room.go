////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	lru "github.com/hashicorp/golang-lru"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/stoppable"
	"gitlab.com/heartline/convsync/wire"
)

// room is a joined room. It owns the dispatch goroutine that hands events to
// the room's handlers in arrival order.
type room struct {
	id    string
	queue chan wire.Envelope
	seen  *lru.Cache
	reg   *registry
	stop  *stoppable.Single
}

func newRoom(id string, p Params, reg *registry) *room {
	seen, err := lru.New(p.DedupeWindow)
	if err != nil {
		jww.FATAL.Panicf("Failed to make dedupe window of size %d for "+
			"room %s: %+v", p.DedupeWindow, id, err)
	}

	r := &room{
		id:    id,
		queue: make(chan wire.Envelope, p.RoomQueueSize),
		seen:  seen,
		reg:   reg,
		stop:  stoppable.NewSingle("Room-" + id),
	}
	go r.dispatchThread()
	return r
}

// deliver queues an envelope for dispatch unless it was already seen. It
// blocks while the queue is full and returns false if the room was left.
func (r *room) deliver(env wire.Envelope) bool {
	if key, ok := env.Key(); ok {
		if seen, _ := r.seen.ContainsOrAdd(key, nil); seen {
			jww.TRACE.Printf("Dropping redelivered %s", env)
			return true
		}
	}

	select {
	case r.queue <- env:
		return true
	case <-r.stop.Quit():
		return false
	}
}

func (r *room) dispatchThread() {
	jww.DEBUG.Printf("Dispatch thread for room %s started", r.id)
	for {
		select {
		case <-r.stop.Quit():
			r.stop.ToStopped()
			return
		case env := <-r.queue:
			for _, h := range r.reg.handlers(r.id) {
				h(env)
			}
		}
	}
}

func (r *room) close() {
	if err := r.stop.Close(); err != nil {
		jww.WARN.Printf("Failed to close room %s: %+v", r.id, err)
	}
}
