////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package presence tracks ephemeral per-room state: which users are online
// and which are typing. Nothing here is persisted.
package presence

import (
	"sort"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/heartline/convsync/stoppable"
	"gitlab.com/heartline/convsync/wire"
)

// Sender broadcasts events to a room.
type Sender interface {
	Send(roomID string, e wire.Event) error
}

// Callbacks are told when the visible state of a room changes. They are
// called without the tracker lock held. Either may be nil.
type Callbacks struct {
	Typing   func(roomID string, users []string)
	Presence func(roomID string, online []string)
}

// Tracker holds typing and presence state for every room.
type Tracker struct {
	self   string
	sender Sender
	params Params
	cb     Callbacks

	// now is replaced in tests
	now func() time.Time

	mux   sync.Mutex
	rooms map[string]*roomState
}

type roomState struct {
	// Remote typists and the time of their last refresh
	typing map[string]time.Time
	online map[string]struct{}

	localTyping    bool
	localActivity  time.Time
	localBroadcast time.Time
}

func newRoomState() *roomState {
	return &roomState{
		typing: make(map[string]time.Time),
		online: make(map[string]struct{}),
	}
}

// NewTracker creates a Tracker for the local user self.
func NewTracker(self string, sender Sender, params Params,
	cb Callbacks) *Tracker {
	return &Tracker{
		self:   self,
		sender: sender,
		params: params,
		cb:     cb,
		now:    netTime.Now,
		rooms:  make(map[string]*roomState),
	}
}

func (t *Tracker) room(roomID string) *roomState {
	rs, ok := t.rooms[roomID]
	if !ok {
		rs = newRoomState()
		t.rooms[roomID] = rs
	}
	return rs
}

// SetTyping records local typing activity. A broadcast is sent only when the
// state flips, plus a refresh at most once per refresh interval while typing
// continues.
func (t *Tracker) SetTyping(roomID string, isTyping bool) {
	now := t.now()

	t.mux.Lock()
	rs := t.room(roomID)
	broadcast := false
	if isTyping {
		rs.localActivity = now
		if !rs.localTyping ||
			now.Sub(rs.localBroadcast) >= t.params.RefreshInterval {
			rs.localTyping = true
			rs.localBroadcast = now
			broadcast = true
		}
	} else if rs.localTyping {
		rs.localTyping = false
		broadcast = true
	}
	t.mux.Unlock()

	if broadcast {
		t.broadcast(roomID, isTyping)
	}
}

// LocalTyping reports whether the local user is marked as typing.
func (t *Tracker) LocalTyping(roomID string) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	rs, ok := t.rooms[roomID]
	return ok && rs.localTyping
}

func (t *Tracker) broadcast(roomID string, isTyping bool) {
	err := t.sender.Send(roomID,
		wire.TypingChanged{UserID: t.self, IsTyping: isTyping})
	if err != nil {
		jww.DEBUG.Printf("Dropped typing=%t for room %s: %+v",
			isTyping, roomID, err)
	}
}

// ApplyTyping applies a typing event from another user. Events about the
// local user are ignored.
func (t *Tracker) ApplyTyping(roomID, userID string, isTyping bool) {
	if userID == t.self {
		return
	}
	now := t.now()

	t.mux.Lock()
	rs := t.room(roomID)
	last, present := rs.typing[userID]
	wasVisible := present && t.fresh(last, now)

	if isTyping {
		rs.typing[userID] = now
	} else {
		delete(rs.typing, userID)
	}

	var users []string
	changed := wasVisible != isTyping
	if changed {
		users = t.visibleTyping(rs, now)
	}
	t.mux.Unlock()

	if changed {
		t.reportTyping(roomID, users)
	}
}

// TypingUsers returns the users currently typing, sorted. Entries older than
// the expiry window are excluded even before the sweeper removes them.
func (t *Tracker) TypingUsers(roomID string) []string {
	now := t.now()
	t.mux.Lock()
	defer t.mux.Unlock()
	rs, ok := t.rooms[roomID]
	if !ok {
		return []string{}
	}
	return t.visibleTyping(rs, now)
}

func (t *Tracker) fresh(last, now time.Time) bool {
	return now.Sub(last) < t.params.TypingExpiry
}

func (t *Tracker) visibleTyping(rs *roomState, now time.Time) []string {
	users := make([]string, 0, len(rs.typing))
	for u, last := range rs.typing {
		if t.fresh(last, now) {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}

// ApplyPresence applies a single online/offline change.
func (t *Tracker) ApplyPresence(roomID, userID string, online bool) {
	t.mux.Lock()
	rs := t.room(roomID)
	_, was := rs.online[userID]
	if online {
		rs.online[userID] = struct{}{}
	} else {
		delete(rs.online, userID)
		// An offline user cannot still be typing
		delete(rs.typing, userID)
	}
	users := sortedSet(rs.online)
	t.mux.Unlock()

	if was != online {
		t.reportPresence(roomID, users)
	}
}

// ApplySnapshot replaces the online set of a room with the server's view.
func (t *Tracker) ApplySnapshot(roomID string, online []string) {
	t.mux.Lock()
	rs := t.room(roomID)
	rs.online = make(map[string]struct{}, len(online))
	for _, u := range online {
		rs.online[u] = struct{}{}
	}
	users := sortedSet(rs.online)
	t.mux.Unlock()

	t.reportPresence(roomID, users)
}

// Online returns the online users of a room, sorted.
func (t *Tracker) Online(roomID string) []string {
	t.mux.Lock()
	defer t.mux.Unlock()
	rs, ok := t.rooms[roomID]
	if !ok {
		return []string{}
	}
	return sortedSet(rs.online)
}

// IsOnline reports whether the user is online in the room.
func (t *Tracker) IsOnline(roomID, userID string) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	rs, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	_, online := rs.online[userID]
	return online
}

// ResetRoom discards all remote state for a room after a reconnect. The
// online set stays empty until the next snapshot. Local typing is kept.
func (t *Tracker) ResetRoom(roomID string) {
	t.mux.Lock()
	rs, ok := t.rooms[roomID]
	if !ok {
		t.mux.Unlock()
		return
	}
	hadTyping := len(t.visibleTyping(rs, t.now())) > 0
	hadOnline := len(rs.online) > 0
	rs.typing = make(map[string]time.Time)
	rs.online = make(map[string]struct{})
	t.mux.Unlock()

	jww.DEBUG.Printf("Reset presence for room %s", roomID)
	if hadTyping {
		t.reportTyping(roomID, []string{})
	}
	if hadOnline {
		t.reportPresence(roomID, []string{})
	}
}

// RemoveRoom forgets a room entirely.
func (t *Tracker) RemoveRoom(roomID string) {
	t.mux.Lock()
	delete(t.rooms, roomID)
	t.mux.Unlock()
}

// Start launches the sweeper that expires remote typists and auto-stops
// local typing after inactivity.
func (t *Tracker) Start() stoppable.Stoppable {
	stop := stoppable.NewSingle("TypingSweeper")
	go t.sweepThread(stop)
	return stop
}

func (t *Tracker) sweepThread(stop *stoppable.Single) {
	ticker := time.NewTicker(t.params.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

type typingReport struct {
	room  string
	users []string
}

// sweep removes stale typists and stops idle local typing.
func (t *Tracker) sweep() {
	now := t.now()
	var (
		reports []typingReport
		stopped []string
	)

	t.mux.Lock()
	for roomID, rs := range t.rooms {
		removed := false
		for u, last := range rs.typing {
			if !t.fresh(last, now) {
				delete(rs.typing, u)
				removed = true
			}
		}
		if removed {
			reports = append(reports,
				typingReport{roomID, t.visibleTyping(rs, now)})
		}

		if rs.localTyping && !t.fresh(rs.localActivity, now) {
			rs.localTyping = false
			stopped = append(stopped, roomID)
		}
	}
	t.mux.Unlock()

	for _, r := range reports {
		t.reportTyping(r.room, r.users)
	}
	for _, roomID := range stopped {
		jww.TRACE.Printf("Local typing in room %s timed out", roomID)
		t.broadcast(roomID, false)
	}
}

func (t *Tracker) reportTyping(roomID string, users []string) {
	if t.cb.Typing != nil {
		t.cb.Typing(roomID, users)
	}
}

func (t *Tracker) reportPresence(roomID string, users []string) {
	if t.cb.Presence != nil {
		t.cb.Presence(roomID, users)
	}
}

func sortedSet(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
