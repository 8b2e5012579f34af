////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"gitlab.com/heartline/convsync/stoppable"
	"gitlab.com/heartline/convsync/wire"
)

// Session is one logical connection shared by every joined room.
type Session struct {
	dialer  Dialer
	params  Params
	limiter ratelimit.Limiter

	reg      *registry
	outbound chan []byte

	// Guards everything below
	mux         sync.RWMutex
	link        Link
	rooms       map[string]*room
	reconnectCB []ReconnectCallback
	started     bool
	closed      bool

	stop *stoppable.Multi
}

// NewSession creates a Session that connects through dialer once started.
func NewSession(dialer Dialer, params Params) *Session {
	return &Session{
		dialer:   dialer,
		params:   params,
		limiter:  ratelimit.New(params.SendRate, ratelimit.WithoutSlack),
		reg:      newRegistry(),
		outbound: make(chan []byte, params.OutboundQueueSize),
		rooms:    make(map[string]*room),
		stop:     stoppable.NewMulti("TransportSession"),
	}
}

// Start launches the connection and writer threads. Rooms joined before
// Start are joined as soon as the first link is up.
func (s *Session) Start() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return ErrClosed
	} else if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	connStop := stoppable.NewSingle("TransportConnection")
	writeStop := stoppable.NewSingle("TransportWriter")
	s.stop.Add(connStop)
	s.stop.Add(writeStop)

	go s.connectionThread(connStop)
	go s.writeThread(writeStop)
	return nil
}

// Close stops all threads, closes the link and leaves every room locally.
func (s *Session) Close() error {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return nil
	}
	s.closed = true
	link := s.link
	s.link = nil
	rooms := s.rooms
	s.rooms = make(map[string]*room)
	started := s.started
	s.mux.Unlock()

	var err error
	if started {
		err = s.stop.Close()
	}
	if link != nil {
		if closeErr := link.Close(); closeErr != nil {
			jww.DEBUG.Printf("Error closing link: %+v", closeErr)
		}
	}
	for _, r := range rooms {
		r.close()
	}
	return err
}

// Stoppable returns the group of the session's threads.
func (s *Session) Stoppable() stoppable.Stoppable {
	return s.stop
}

// IsConnected reports whether a link is currently up.
func (s *Session) IsConnected() bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.link != nil
}

// Join joins a room. Joining a room that is already joined is a no-op. While
// disconnected the room is recorded and joined on the next connection. No
// history is replayed.
func (s *Session) Join(roomID string) error {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return ErrClosed
	}
	if _, exists := s.rooms[roomID]; exists {
		s.mux.Unlock()
		return nil
	}
	s.rooms[roomID] = newRoom(roomID, s.params, s.reg)
	connected := s.link != nil
	s.mux.Unlock()

	jww.INFO.Printf("Joined room %s", roomID)
	if connected {
		s.sendControl(roomID, wire.JoinRoom{})
	}
	return nil
}

// Leave leaves a room. Leaving a room that is not joined is a no-op.
// Registered handlers are kept but receive nothing until the room is joined
// again.
func (s *Session) Leave(roomID string) {
	s.mux.Lock()
	r, exists := s.rooms[roomID]
	if !exists {
		s.mux.Unlock()
		return
	}
	delete(s.rooms, roomID)
	connected := s.link != nil
	s.mux.Unlock()

	r.close()
	jww.INFO.Printf("Left room %s", roomID)
	if connected {
		s.sendControl(roomID, wire.LeaveRoom{})
	}
}

// Rooms returns the IDs of the joined rooms, sorted.
func (s *Session) Rooms() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.roomIDs()
}

func (s *Session) roomIDs() []string {
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send queues an event for the room. Delivery is fire-and-forget; an error
// wrapping model.ErrTransportUnavailable is returned when no link is up or
// the outbound queue is full.
func (s *Session) Send(roomID string, e wire.Event) error {
	s.mux.RLock()
	closed, connected := s.closed, s.link != nil
	s.mux.RUnlock()
	if closed {
		return ErrClosed
	} else if !connected {
		return ErrDisconnected
	}

	frame, err := wire.Encode(wire.Envelope{Room: roomID, Event: e})
	if err != nil {
		return errors.WithMessagef(err, "failed to encode %s for room %s",
			e.Kind(), roomID)
	}
	return s.enqueue(frame)
}

// OnEvent registers a handler for events received in the room.
func (s *Session) OnEvent(roomID string, h Handler) ListenerID {
	return s.reg.add(roomID, h)
}

// Unregister removes a handler registered with OnEvent.
func (s *Session) Unregister(lid ListenerID) {
	s.reg.remove(lid)
}

// Listeners returns the number of handlers registered for the room.
func (s *Session) Listeners(roomID string) int {
	return s.reg.count(roomID)
}

// OnReconnect registers a callback run after every reconnection.
func (s *Session) OnReconnect(cb ReconnectCallback) {
	s.mux.Lock()
	s.reconnectCB = append(s.reconnectCB, cb)
	s.mux.Unlock()
}

func (s *Session) enqueue(frame []byte) error {
	select {
	case s.outbound <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// sendControl sends a join or leave. Failures are logged; the room set is
// re-sent on reconnection.
func (s *Session) sendControl(roomID string, e wire.Event) {
	if err := s.Send(roomID, e); err != nil {
		jww.DEBUG.Printf("Failed to send %s for room %s: %+v",
			e.Kind(), roomID, err)
	}
}

// connectionThread keeps a link up, redialing with exponential backoff
// whenever it is lost.
func (s *Session) connectionThread(stop *stoppable.Single) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stop.Quit()
		cancel()
	}()

	first := true
	for {
		link, err := s.dial(ctx)
		if err != nil {
			jww.DEBUG.Printf("Stopping transport connection thread: %+v", err)
			stop.ToStopped()
			return
		}

		rooms, ok := s.attach(link)
		if !ok {
			stop.ToStopped()
			return
		}
		for _, roomID := range rooms {
			s.sendControl(roomID, wire.JoinRoom{})
		}
		if !first {
			s.notifyReconnect(rooms)
		}
		first = false

		err = s.readLoop(link)
		s.detach(link)

		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		default:
			jww.WARN.Printf("Transport link lost, reconnecting: %+v", err)
		}
	}
}

func (s *Session) dial(ctx context.Context) (Link, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.params.ReconnectInitialInterval
	b.MaxInterval = s.params.ReconnectMaxInterval
	b.MaxElapsedTime = 0

	var link Link
	op := func() error {
		var err error
		link, err = s.dialer.Dial(ctx)
		if err != nil {
			jww.DEBUG.Printf("Dial failed: %+v", err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		_ = link.Close()
		return nil, ctx.Err()
	}
	return link, nil
}

// attach installs a new link and returns the rooms to re-join. It returns
// false if the session was closed while dialing.
func (s *Session) attach(link Link) ([]string, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		_ = link.Close()
		return nil, false
	}
	s.link = link
	jww.INFO.Printf("Transport connected")
	return s.roomIDs(), true
}

func (s *Session) detach(link Link) {
	s.mux.Lock()
	if s.link == link {
		s.link = nil
	}
	s.mux.Unlock()
	_ = link.Close()
}

func (s *Session) notifyReconnect(rooms []string) {
	s.mux.RLock()
	cbs := append([]ReconnectCallback(nil), s.reconnectCB...)
	s.mux.RUnlock()

	jww.INFO.Printf("Transport reconnected; resetting rooms %v", rooms)
	for _, cb := range cbs {
		cb(rooms)
	}
}

// readLoop routes frames to their rooms until the link fails.
func (s *Session) readLoop(link Link) error {
	for {
		frame, err := link.ReadFrame()
		if err != nil {
			return err
		}

		env, err := wire.Decode(frame)
		if err != nil {
			jww.WARN.Printf("Dropping undecodable frame: %+v", err)
			continue
		}

		s.mux.RLock()
		r, joined := s.rooms[env.Room]
		s.mux.RUnlock()
		if !joined {
			jww.TRACE.Printf("Dropping %s for room that is not joined", env)
			continue
		}
		r.deliver(env)
	}
}

// writeThread writes queued frames to the current link at the configured
// rate.
func (s *Session) writeThread(stop *stoppable.Single) {
	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		case frame := <-s.outbound:
			s.limiter.Take()

			s.mux.RLock()
			link := s.link
			s.mux.RUnlock()
			if link == nil {
				jww.WARN.Printf("Dropping outbound frame of %d bytes: "+
					"not connected", len(frame))
				continue
			}
			if err := link.WriteFrame(frame); err != nil {
				jww.WARN.Printf("Write failed, dropping link: %+v", err)
				_ = link.Close()
			}
		}
	}
}
