////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"context"
	"strconv"
	"sync"
	"time"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
	"gitlab.com/heartline/convsync/wire"
)

type mockSender struct {
	mux  sync.Mutex
	sent []wire.Event
	err  error

	// onSend is called after a successful send, as a server replying
	// straight away would
	onSend func(roomID string, e wire.Event)
}

func (m *mockSender) Send(roomID string, e wire.Event) error {
	m.mux.Lock()
	if m.err != nil {
		m.mux.Unlock()
		return m.err
	}
	m.sent = append(m.sent, e)
	onSend := m.onSend
	m.mux.Unlock()

	if onSend != nil {
		onSend(roomID, e)
	}
	return nil
}

func (m *mockSender) events() []wire.Event {
	m.mux.Lock()
	defer m.mux.Unlock()
	return append([]wire.Event(nil), m.sent...)
}

type mockSource struct {
	pages map[uint64][]model.Message
	calls int
	err   error
}

func (m *mockSource) History(_ context.Context, _ string, beforeID uint64,
	_ int) ([]model.Message, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.Message(nil), m.pages[beforeID]...), nil
}

type mockUploader struct {
	media model.Media
	err   error
	// Closed to let an upload finish
	release chan struct{}
}

func (m *mockUploader) Upload(ctx context.Context, _ string,
	_ model.MessageType) (model.Media, error) {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return model.Media{}, ctx.Err()
		}
	}
	return m.media, m.err
}

type testLedger struct {
	*Ledger
	sender   *mockSender
	source   *mockSource
	uploader *mockUploader
	clock    time.Time

	mux     sync.Mutex
	changes int
}

func newTestLedger(kv *versioned.KV) *testLedger {
	tl := &testLedger{
		sender:   &mockSender{},
		source:   &mockSource{pages: make(map[uint64][]model.Message)},
		uploader: &mockUploader{},
		clock:    time.Unix(1700000000, 0).UTC(),
	}
	tl.Ledger = NewLedger("me", tl.sender, tl.source, tl.uploader, kv,
		GetDefaultParams(), func(string, []model.Message) {
			tl.mux.Lock()
			tl.changes++
			tl.mux.Unlock()
		})
	tl.now = func() time.Time { return tl.clock }

	n := 0
	tl.newTemp = func() string {
		n++
		return "t" + strconv.Itoa(n)
	}
	return tl
}

func text(body string) model.Payload { return model.Text{Body: body} }

func remote(id uint64, sender, body string) wire.MessagePosted {
	return wire.MessagePosted{
		ServerID:  id,
		SenderID:  sender,
		Payload:   text(body),
		CreatedAt: time.Unix(int64(1700000000+id), 0).UTC(),
	}
}

// ids returns the server IDs of messages, with 0 for unconfirmed entries.
func ids(messages []model.Message) []uint64 {
	out := make([]uint64, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}
