////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/stoppable"
)

func TestManager_Report(t *testing.T) {
	var (
		mux     sync.Mutex
		updates []Update
	)
	m := NewManager(0)
	stop := m.Start()

	require.NoError(t, m.RegisterCallback("ui", func(u Update) {
		mux.Lock()
		updates = append(updates, u)
		mux.Unlock()
	}))

	m.Report(TypingChanged{ConversationID: "c1", Users: []string{"bob"}})
	m.Report(MessagesChanged{ConversationID: "c1"})
	m.Report(ConversationChanged{Conv: model.Conversation{ID: "c2"}})

	require.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(updates) == 3
	}, time.Second, 5*time.Millisecond)

	mux.Lock()
	require.Equal(t, "c1", updates[0].Conversation())
	require.IsType(t, MessagesChanged{}, updates[1])
	require.Equal(t, "c2", updates[2].Conversation())
	mux.Unlock()

	// No more deliveries after unregistering
	m.UnregisterCallback("ui")
	m.Report(MessagesChanged{ConversationID: "c1"})
	time.Sleep(50 * time.Millisecond)
	mux.Lock()
	require.Len(t, updates, 3)
	mux.Unlock()

	require.NoError(t, stop.Close())
	require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
}

func TestManager_RegisterCallback_Duplicate(t *testing.T) {
	m := NewManager(1)
	require.NoError(t, m.RegisterCallback("a", func(Update) {}))
	err := m.RegisterCallback("a", func(Update) {})
	require.True(t, errors.Is(err, ErrCallbackExists))
}

// Tests that a full queue coalesces per conversation instead of blocking or
// dropping updates.
func TestManager_Report_Coalesce(t *testing.T) {
	m := NewManager(1)
	done := make(chan struct{})
	go func() {
		m.Report(TypingChanged{ConversationID: "a", Users: []string{"bob"}})
		m.Report(TypingChanged{ConversationID: "b", Users: []string{"carol"}})
		m.Report(TypingChanged{ConversationID: "a", Users: []string{"bob", "dave"}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report blocked on a full queue")
	}
	require.Equal(t, 2, m.pending())

	updates := make(chan Update, 10)
	require.NoError(t, m.RegisterCallback("ui", func(u Update) { updates <- u }))
	stop := m.Start()
	defer func() {
		require.NoError(t, stop.Close())
		require.NoError(t, stoppable.WaitForStopped(stop, time.Second))
	}()

	// Later updates follow the coalesced backlog
	m.Report(MessagesChanged{ConversationID: "c"})

	var got []Update
	require.Eventually(t, func() bool {
		for {
			select {
			case u := <-updates:
				got = append(got, u)
			default:
				return len(got) == 3
			}
		}
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, TypingChanged{ConversationID: "a",
		Users: []string{"bob", "dave"}}, got[0])
	require.Equal(t, "b", got[1].Conversation())
	require.IsType(t, MessagesChanged{}, got[2])
}
