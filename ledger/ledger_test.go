////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
	"gitlab.com/heartline/convsync/wire"
)

// Tests the optimistic send scenario: a sending entry is replaced in place by
// the acknowledged message with no duplicate.
func TestLedger_Send_Reconcile(t *testing.T) {
	l := newTestLedger(nil)

	m, err := l.Send("c", "me", text("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, "t1", m.TempID)

	msgs := l.Messages("c")
	require.Len(t, msgs, 1)
	require.Equal(t, "t1", msgs[0].TempID)
	require.Equal(t, model.Sending, msgs[0].Status)
	require.Equal(t, text("hello"), msgs[0].Payload)

	sent := l.sender.events()
	require.Len(t, sent, 1)
	require.Equal(t, "t1", sent[0].(wire.MessagePosted).TempID)

	l.ApplyAck("c", wire.MessageAck{TempID: "t1", ServerID: 42})

	msgs = l.Messages("c")
	require.Len(t, msgs, 1)
	require.Equal(t, uint64(42), msgs[0].ID)
	require.Equal(t, model.Sent, msgs[0].Status)
	require.Equal(t, text("hello"), msgs[0].Payload)
	require.Empty(t, l.Unconfirmed("c"))
}

// Tests that a send acknowledged before Send returns hands back the message
// as it was inserted while the ledger holds the acknowledged one.
func TestLedger_Send_AckedBeforeReturn(t *testing.T) {
	l := newTestLedger(nil)
	acked := make(chan struct{})
	l.sender.onSend = func(roomID string, e wire.Event) {
		posted, ok := e.(wire.MessagePosted)
		if !ok {
			return
		}
		go func() {
			l.ApplyAck(roomID, wire.MessageAck{TempID: posted.TempID,
				ServerID: 42})
			close(acked)
		}()
		<-acked
	}

	m, err := l.Send("c", "me", text("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, model.Sending, m.Status)
	require.Zero(t, m.ID)

	msgs := l.Messages("c")
	require.Len(t, msgs, 1)
	require.Equal(t, uint64(42), msgs[0].ID)
	require.Equal(t, model.Sent, msgs[0].Status)
}

// Tests that every ordering of ack and echo leaves exactly one entry per
// temp ID.
func TestLedger_NoDuplicates(t *testing.T) {
	echo := func(tempID string, id uint64) wire.MessagePosted {
		e := remote(id, "me", "hi")
		e.TempID = tempID
		return e
	}

	orders := map[string]func(l *testLedger){
		"ack then echo": func(l *testLedger) {
			l.ApplyAck("c", wire.MessageAck{TempID: "t1", ServerID: 7})
			l.ApplyMessage("c", echo("t1", 7))
		},
		"echo then ack": func(l *testLedger) {
			l.ApplyMessage("c", echo("t1", 7))
			l.ApplyAck("c", wire.MessageAck{TempID: "t1", ServerID: 7})
		},
		"echo twice": func(l *testLedger) {
			l.ApplyMessage("c", echo("t1", 7))
			l.ApplyMessage("c", echo("t1", 7))
		},
	}

	for name, apply := range orders {
		l := newTestLedger(nil)
		_, err := l.Send("c", "me", text("hi"), 0)
		require.NoError(t, err, name)
		apply(l)

		msgs := l.Messages("c")
		require.Len(t, msgs, 1, name)
		require.Equal(t, uint64(7), msgs[0].ID, name)
		require.Equal(t, "t1", msgs[0].TempID, name)
	}
}

// Tests that remote messages are ordered by server ID ahead of the local
// unconfirmed tail.
func TestLedger_ApplyMessage_Order(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyMessage("c", remote(10, "bob", "a"))
	_, err := l.Send("c", "me", text("pending"), 0)
	require.NoError(t, err)

	l.ApplyMessage("c", remote(12, "bob", "c"))
	l.ApplyMessage("c", remote(11, "carol", "b"))
	l.ApplyMessage("c", remote(11, "carol", "b"))

	require.Equal(t, []uint64{10, 11, 12, 0}, ids(l.Messages("c")))

	// A broadcast without a server ID is dropped
	l.ApplyMessage("c", wire.MessagePosted{SenderID: "bob", Payload: text("x")})
	require.Len(t, l.Messages("c"), 4)
}

func TestLedger_Send_Invalid(t *testing.T) {
	l := newTestLedger(nil)

	_, err := l.Send("c", "me", text("   "), 0)
	require.True(t, errors.Is(err, ErrEmptyMessage))
	_, err = l.Send("c", "me", nil, 0)
	require.Equal(t, model.KindInvalid, model.KindOf(err))
	_, err = l.Send("c", "me", model.System{Code: "x"}, 0)
	require.Equal(t, model.KindInvalid, model.KindOf(err))
	require.Empty(t, l.Messages("c"))
}

// Tests that a send the transport cannot take stays sending, then fails
// after the timeout and can be resent under a new temp ID.
func TestLedger_ExpireAndResend(t *testing.T) {
	l := newTestLedger(nil)
	l.sender.err = model.ErrTransportUnavailable

	_, err := l.Send("c", "me", text("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, model.Sending, l.Messages("c")[0].Status)

	require.Empty(t, l.ExpirePending(l.clock.Add(29*time.Second)))
	require.Equal(t, []string{"t1"},
		l.ExpirePending(l.clock.Add(30*time.Second)))
	require.Equal(t, model.Failed, l.Messages("c")[0].Status)

	// Only failed messages can be resent
	l.sender.err = nil
	l.ApplyMessage("c", remote(5, "bob", "other"))
	_, err = l.Resend(context.Background(), "c", "nope")
	require.Equal(t, model.KindNotFound, model.KindOf(err))

	resent, err := l.Resend(context.Background(), "c", "t1")
	require.NoError(t, err)
	require.Equal(t, "t2", resent.TempID)

	msgs := l.Messages("c")
	require.Len(t, msgs, 2)
	require.Equal(t, uint64(5), msgs[0].ID)
	require.Equal(t, "t2", msgs[1].TempID)
	require.Equal(t, model.Sending, msgs[1].Status)

	_, err = l.Resend(context.Background(), "c", "t2")
	require.True(t, errors.Is(err, ErrNotFailed))

	// The original send turned out to have been accepted
	l.ApplyAck("c", wire.MessageAck{TempID: "t1", ServerID: 6})
	l.ApplyAck("c", wire.MessageAck{TempID: "t2", ServerID: 7})
	require.Equal(t, []uint64{5, 6, 7}, ids(l.Messages("c")))
}

// Tests that a late ack for a failed message still confirms it in place.
func TestLedger_LateAck(t *testing.T) {
	l := newTestLedger(nil)
	_, err := l.Send("c", "me", text("hello"), 0)
	require.NoError(t, err)
	l.ExpirePending(l.clock.Add(time.Minute))

	l.ApplyAck("c", wire.MessageAck{TempID: "t1", ServerID: 3})
	msgs := l.Messages("c")
	require.Len(t, msgs, 1)
	require.Equal(t, model.Sent, msgs[0].Status)
	require.Equal(t, uint64(3), msgs[0].ID)
}

// Tests that unconfirmed messages survive a restart as failed.
func TestLedger_Init_RestoresFailed(t *testing.T) {
	kv := versioned.NewMemKV()
	l := newTestLedger(kv)
	_, err := l.Send("c", "me", text("one"), 0)
	require.NoError(t, err)
	_, err = l.Send("c", "me", text("two"), 0)
	require.NoError(t, err)
	l.ApplyAck("c", wire.MessageAck{TempID: "t1", ServerID: 1})

	restarted := newTestLedger(kv)
	require.NoError(t, restarted.Init())

	msgs := restarted.Messages("c")
	require.Len(t, msgs, 1)
	require.Equal(t, "t2", msgs[0].TempID)
	require.Equal(t, model.Failed, msgs[0].Status)
	require.Equal(t, text("two"), msgs[0].Payload)
}

func TestLedger_SendMedia(t *testing.T) {
	l := newTestLedger(nil)
	l.uploader.media = model.Media{URL: "https://cdn/p.jpg",
		ThumbnailURL: "https://cdn/p_t.jpg"}
	l.uploader.release = make(chan struct{})

	m, err := l.SendMedia(context.Background(), "c", "me", "/tmp/p.jpg",
		model.ImageMessage, "look", 0)
	require.NoError(t, err)
	require.Equal(t, model.Image{Media: model.Media{LocalPath: "/tmp/p.jpg"},
		Caption: "look"}, m.Payload)
	require.Empty(t, l.sender.events())

	close(l.uploader.release)
	require.Eventually(t, func() bool { return len(l.sender.events()) == 1 },
		time.Second, time.Millisecond)

	posted := l.sender.events()[0].(wire.MessagePosted)
	img := posted.Payload.(model.Image)
	require.Equal(t, "https://cdn/p.jpg", img.URL)
	require.Equal(t, "look", img.Caption)
	require.Equal(t, model.Sending, l.Messages("c")[0].Status)
}

func TestLedger_SendMedia_UploadFails(t *testing.T) {
	l := newTestLedger(nil)
	l.uploader.err = model.ErrExternalService

	_, err := l.SendMedia(context.Background(), "c", "me", "/tmp/doc.pdf",
		model.FileMessage, "", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return l.Messages("c")[0].Status == model.Failed
	}, time.Second, time.Millisecond)
	require.Equal(t, "doc.pdf", l.Messages("c")[0].Payload.(model.File).Name)
	require.Empty(t, l.sender.events())

	_, err = l.SendMedia(context.Background(), "c", "me", "/tmp/x", model.TextMessage, "", 0)
	require.Equal(t, model.KindInvalid, model.KindOf(err))
}
