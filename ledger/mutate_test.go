////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/emoji"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/wire"
)

func TestLedger_Edit(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyMessage("c", remote(1, "me", "helo"))
	l.ApplyMessage("c", remote(2, "bob", "hi"))

	require.NoError(t, l.Edit("c", 1, "me", text("hello")))
	msgs := l.Messages("c")
	require.Equal(t, []uint64{1, 2}, ids(msgs))
	require.Equal(t, text("hello"), msgs[0].Payload)
	require.False(t, msgs[0].EditedAt.IsZero())

	err := l.Edit("c", 2, "me", text("mine now"))
	require.True(t, errors.Is(err, ErrNotSender))
	require.Equal(t, model.KindAuthorization, model.KindOf(err))

	err = l.Edit("c", 1, "me", model.Image{Caption: "x"})
	require.True(t, errors.Is(err, ErrPayloadMismatch))

	err = l.Edit("c", 99, "me", text("x"))
	require.Equal(t, model.KindNotFound, model.KindOf(err))

	// A broadcast edit from the other client applies
	l.ApplyEdit("c", wire.MessageEdited{ServerID: 2, EditorID: "bob",
		Payload: text("hey")})
	require.Equal(t, text("hey"), l.Messages("c")[1].Payload)
}

// Tests that a failed transport leaves the message unedited.
func TestLedger_Edit_TransportDown(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyMessage("c", remote(1, "me", "a"))
	l.sender.err = model.ErrTransportUnavailable

	err := l.Edit("c", 1, "me", text("b"))
	require.Equal(t, model.KindTransportUnavailable, model.KindOf(err))
	require.Equal(t, text("a"), l.Messages("c")[0].Payload)
}

func TestLedger_Delete(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyMessage("c", remote(1, "bob", "a"))
	l.ApplyMessage("c", remote(2, "bob", "b"))
	l.ApplyMessage("c", remote(3, "me", "c"))

	// Members cannot delete other people's messages for everyone
	err := l.Delete("c", 1, "me", model.Member, true)
	require.True(t, errors.Is(err, ErrCannotDelete))

	// Own message, for everyone
	require.NoError(t, l.Delete("c", 3, "me", model.Member, true))
	// Moderators can delete anyone's
	require.NoError(t, l.Delete("c", 1, "me", model.Moderator, true))
	// Anyone can hide a message for themselves
	require.NoError(t, l.Delete("c", 2, "me", model.Guest, false))

	msgs := l.Messages("c")
	require.Equal(t, []uint64{1, 3}, ids(msgs))
	require.True(t, msgs[0].Deleted)
	require.True(t, msgs[1].Deleted)
	require.Equal(t, model.SystemMessage, msgs[0].Payload.Type())

	// IDs stay reserved
	l.ApplyMessage("c", remote(2, "bob", "b"))
	l.ApplyMessage("c", remote(3, "me", "again"))
	require.Equal(t, []uint64{1, 3}, ids(l.Messages("c")))

	// Tombstoned messages cannot be edited or reacted to
	require.Equal(t, model.KindNotFound,
		model.KindOf(l.Edit("c", 3, "me", text("x"))))
	_, err = l.React("c", 3, "me", "🔥")
	require.Equal(t, model.KindNotFound, model.KindOf(err))
}

// Tests that a delete that arrives before its message still removes the
// content once the message shows up.
func TestLedger_ApplyDelete_BeforeMessage(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyDelete("c", wire.MessageDeleted{ServerID: 4, ActorID: "bob",
		ForEveryone: true})
	l.ApplyMessage("c", remote(4, "bob", "secret"))

	msgs := l.Messages("c")
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Deleted)
	require.NotEqual(t, text("secret"), msgs[0].Payload)
}

func TestLedger_React(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyMessage("c", remote(1, "bob", "a"))

	added, err := l.React("c", 1, "me", "🔥")
	require.NoError(t, err)
	require.True(t, added)
	l.ApplyReaction("c", wire.ReactionChanged{ServerID: 1, UserID: "bob",
		Emoji: "🔥"})
	// Redelivered
	l.ApplyReaction("c", wire.ReactionChanged{ServerID: 1, UserID: "bob",
		Emoji: "🔥"})
	require.Equal(t, map[string][]string{"🔥": {"me", "bob"}},
		l.Messages("c")[0].Reactions)

	added, err = l.React("c", 1, "me", "🔥")
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, map[string][]string{"🔥": {"bob"}},
		l.Messages("c")[0].Reactions)

	_, err = l.React("c", 1, "me", "nope")
	require.True(t, errors.Is(err, emoji.ErrInvalidReaction))
}

// Tests that receipts only move a status forward.
func TestLedger_ApplyReceipt(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyMessage("c", remote(1, "me", "a"))
	l.ApplyMessage("c", remote(2, "me", "b"))
	l.ApplyMessage("c", remote(3, "bob", "c"))

	l.ApplyReceipt("c", wire.ReceiptUpdate{ServerID: 2, UserID: "bob",
		Status: model.Read})
	l.ApplyReceipt("c", wire.ReceiptUpdate{ServerID: 2, UserID: "bob",
		Status: model.Delivered})

	msgs := l.Messages("c")
	require.Equal(t, model.Read, msgs[0].Status)
	require.Equal(t, model.Read, msgs[1].Status)
	require.Equal(t, model.Sent, msgs[2].Status)
}

func TestLedger_MarkRead(t *testing.T) {
	l := newTestLedger(nil)
	l.ApplyMessage("c", remote(1, "bob", "a"))

	require.NoError(t, l.MarkRead("c", "me", 1))
	require.Equal(t, []wire.Event{wire.ReceiptUpdate{ServerID: 1,
		UserID: "me", Status: model.Read}}, l.sender.events())

	require.Equal(t, model.KindNotFound, model.KindOf(l.MarkRead("c", "me", 9)))
}
