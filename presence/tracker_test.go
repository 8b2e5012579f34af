////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/stoppable"
	"gitlab.com/heartline/convsync/wire"
)

type sentEvent struct {
	room  string
	event wire.Event
}

type mockSender struct {
	mux  sync.Mutex
	sent []sentEvent
	err  error
}

func (m *mockSender) Send(roomID string, e wire.Event) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEvent{roomID, e})
	return nil
}

func (m *mockSender) typing() []bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	var out []bool
	for _, s := range m.sent {
		out = append(out, s.event.(wire.TypingChanged).IsTyping)
	}
	return out
}

type fakeClock struct {
	mux sync.Mutex
	t   time.Time
}

func (c *fakeClock) now() time.Time {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mux.Lock()
	c.t = c.t.Add(d)
	c.mux.Unlock()
}

func newTestTracker(cb Callbacks) (*Tracker, *mockSender, *fakeClock) {
	s := &mockSender{}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tr := NewTracker("me", s, GetDefaultParams(), cb)
	tr.now = clock.now
	return tr, s, clock
}

// Tests that only edges and periodic refreshes are broadcast, not every
// keystroke.
func TestTracker_SetTyping_Edges(t *testing.T) {
	tr, s, clock := newTestTracker(Callbacks{})

	tr.SetTyping("r", true)
	for i := 0; i < 5; i++ {
		clock.advance(100 * time.Millisecond)
		tr.SetTyping("r", true)
	}
	require.Equal(t, []bool{true}, s.typing())

	// Still typing past the refresh interval
	clock.advance(2 * time.Second)
	tr.SetTyping("r", true)
	require.Equal(t, []bool{true, true}, s.typing())

	tr.SetTyping("r", false)
	tr.SetTyping("r", false)
	require.Equal(t, []bool{true, true, false}, s.typing())
	require.False(t, tr.LocalTyping("r"))
}

// Tests that local typing stops by itself after the inactivity window.
func TestTracker_SetTyping_AutoStop(t *testing.T) {
	tr, s, clock := newTestTracker(Callbacks{})

	tr.SetTyping("r", true)
	clock.advance(3 * time.Second)
	tr.sweep()

	require.False(t, tr.LocalTyping("r"))
	require.Equal(t, []bool{true, false}, s.typing())
}

// Tests that a transport failure on a typing broadcast is swallowed.
func TestTracker_SetTyping_TransportDown(t *testing.T) {
	tr, s, _ := newTestTracker(Callbacks{})
	s.err = model.ErrTransportUnavailable

	tr.SetTyping("r", true)
	require.True(t, tr.LocalTyping("r"))
}

// Tests that a remote typist with no refresh disappears from reads after the
// window even before the sweeper runs and with no stop event.
func TestTracker_TypingExpiry(t *testing.T) {
	var (
		mux     sync.Mutex
		reports [][]string
	)
	tr, _, clock := newTestTracker(Callbacks{
		Typing: func(_ string, users []string) {
			mux.Lock()
			reports = append(reports, users)
			mux.Unlock()
		},
	})

	tr.ApplyTyping("r", "bob", true)
	tr.ApplyTyping("r", "carol", true)
	require.Equal(t, []string{"bob", "carol"}, tr.TypingUsers("r"))

	clock.advance(2 * time.Second)
	tr.ApplyTyping("r", "carol", true)

	clock.advance(1500 * time.Millisecond)
	require.Equal(t, []string{"carol"}, tr.TypingUsers("r"))

	tr.sweep()
	clock.advance(2 * time.Second)
	require.Empty(t, tr.TypingUsers("r"))

	mux.Lock()
	defer mux.Unlock()
	require.Equal(t, [][]string{
		{"bob"}, {"bob", "carol"}, {"carol"},
	}, reports)
}

func TestTracker_ApplyTyping_Stop(t *testing.T) {
	tr, _, _ := newTestTracker(Callbacks{})
	tr.ApplyTyping("r", "bob", true)
	tr.ApplyTyping("r", "bob", false)
	require.Empty(t, tr.TypingUsers("r"))

	// Events about ourselves never show up
	tr.ApplyTyping("r", "me", true)
	require.Empty(t, tr.TypingUsers("r"))
}

// Tests that presence is rebuilt from snapshots and cleared on reset.
func TestTracker_Presence(t *testing.T) {
	var online [][]string
	tr, _, _ := newTestTracker(Callbacks{
		Presence: func(_ string, users []string) {
			online = append(online, users)
		},
	})

	tr.ApplySnapshot("r", []string{"bob", "alice"})
	require.Equal(t, []string{"alice", "bob"}, tr.Online("r"))

	tr.ApplyPresence("r", "carol", true)
	tr.ApplyPresence("r", "carol", true)
	tr.ApplyPresence("r", "bob", false)
	require.True(t, tr.IsOnline("r", "carol"))
	require.False(t, tr.IsOnline("r", "bob"))

	tr.ApplyTyping("r", "alice", true)
	tr.ResetRoom("r")
	require.Empty(t, tr.Online("r"))
	require.Empty(t, tr.TypingUsers("r"))

	tr.ApplySnapshot("r", []string{"dave"})
	require.Equal(t, []string{"dave"}, tr.Online("r"))

	require.Equal(t, [][]string{
		{"alice", "bob"},
		{"alice", "bob", "carol"},
		{"alice", "carol"},
		{},
		{"dave"},
	}, online)
}

func TestTracker_Start(t *testing.T) {
	tr, _, _ := newTestTracker(Callbacks{})
	stop := tr.Start()
	require.True(t, stop.IsRunning())
	require.NoError(t, stop.Close())
	require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
}
