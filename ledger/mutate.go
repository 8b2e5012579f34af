////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/emoji"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/wire"
)

// Edit replaces the content of a confirmed message. Only the sender may edit
// and the payload type cannot change. The message keeps its position.
func (l *Ledger) Edit(conversationID string, serverID uint64, editorID string,
	payload model.Payload) error {
	if err := validatePayload(payload); err != nil {
		return err
	}

	l.mux.Lock()
	m, ok := l.conv(conversationID).visible(serverID)
	if !ok {
		l.mux.Unlock()
		return errors.Wrapf(ErrMessageNotFound, "id %d in %s", serverID,
			conversationID)
	} else if m.SenderID != editorID {
		l.mux.Unlock()
		return ErrNotSender
	} else if m.Payload.Type() != payload.Type() {
		l.mux.Unlock()
		return errors.Wrapf(ErrPayloadMismatch, "%s to %s",
			m.Payload.Type(), payload.Type())
	}
	l.mux.Unlock()

	editedAt := l.now()
	err := l.sender.Send(conversationID, wire.MessageEdited{
		ServerID: serverID,
		EditorID: editorID,
		Payload:  payload,
		EditedAt: editedAt,
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to send edit of %d", serverID)
	}

	l.ApplyEdit(conversationID, wire.MessageEdited{ServerID: serverID,
		EditorID: editorID, Payload: payload, EditedAt: editedAt})
	return nil
}

// ApplyEdit applies an edit to a visible message. Edits of unknown or
// deleted messages are ignored.
func (l *Ledger) ApplyEdit(conversationID string, e wire.MessageEdited) {
	l.mux.Lock()
	m, ok := l.conv(conversationID).visible(e.ServerID)
	if ok && e.Payload != nil {
		m.Payload = e.Payload
		m.EditedAt = e.EditedAt
	} else {
		jww.DEBUG.Printf("Ignoring edit of %d in %s", e.ServerID,
			conversationID)
	}
	snap := l.snapshotIf(ok, conversationID)
	l.mux.Unlock()

	l.notify(snap)
}

// Delete removes a confirmed message. Deleting for this user only hides it
// locally. Deleting for everyone tombstones it and requires the actor to be
// the sender or to hold a moderating role. IDs are never reused.
func (l *Ledger) Delete(conversationID string, serverID uint64, actorID string,
	actorRole model.Role, forEveryone bool) error {
	l.mux.Lock()
	h := l.conv(conversationID)
	m, ok := h.byServer[serverID]
	if !ok {
		l.mux.Unlock()
		return errors.Wrapf(ErrMessageNotFound, "id %d in %s", serverID,
			conversationID)
	}

	if !forEveryone {
		h.hide(m)
		snap := l.snapshot(conversationID)
		l.mux.Unlock()
		l.notify(snap)
		return nil
	}

	if m.Deleted {
		l.mux.Unlock()
		return nil
	} else if m.SenderID != actorID && !actorRole.CanModerate() {
		l.mux.Unlock()
		return errors.Wrapf(ErrCannotDelete, "%s is %s", actorID, actorRole)
	}
	l.mux.Unlock()

	err := l.sender.Send(conversationID, wire.MessageDeleted{
		ServerID: serverID, ActorID: actorID, ForEveryone: true})
	if err != nil {
		return errors.WithMessagef(err, "failed to send delete of %d",
			serverID)
	}

	l.ApplyDelete(conversationID, wire.MessageDeleted{ServerID: serverID,
		ActorID: actorID, ForEveryone: true})
	return nil
}

// ApplyDelete tombstones a message deleted for everyone. If the message has
// not been seen yet it is tombstoned when it arrives.
func (l *Ledger) ApplyDelete(conversationID string, e wire.MessageDeleted) {
	if !e.ForEveryone {
		return
	}

	l.mux.Lock()
	h := l.conv(conversationID)
	m, ok := h.byServer[e.ServerID]
	changed := false
	switch {
	case !ok:
		if _, hidden := h.hidden[e.ServerID]; !hidden {
			h.tombstoned[e.ServerID] = struct{}{}
		}
	case !m.Deleted:
		tombstone(m)
		changed = true
	}
	snap := l.snapshotIf(changed, conversationID)
	l.mux.Unlock()

	l.notify(snap)
}

// React toggles the user's reaction on a message and returns whether the
// reaction is now present. The reaction must be a single emoji.
func (l *Ledger) React(conversationID string, serverID uint64, userID,
	reaction string) (bool, error) {
	reaction, err := emoji.ValidateReaction(reaction)
	if err != nil {
		return false, err
	}

	l.mux.Lock()
	m, ok := l.conv(conversationID).visible(serverID)
	if !ok {
		l.mux.Unlock()
		return false, errors.Wrapf(ErrMessageNotFound, "id %d in %s",
			serverID, conversationID)
	}
	remove := contains(m.Reactions[reaction], userID)
	l.mux.Unlock()

	e := wire.ReactionChanged{ServerID: serverID, UserID: userID,
		Emoji: reaction, Removed: remove}
	if err = l.sender.Send(conversationID, e); err != nil {
		return false, errors.WithMessagef(err,
			"failed to send reaction on %d", serverID)
	}

	l.ApplyReaction(conversationID, e)
	return !remove, nil
}

// ApplyReaction sets or clears one user's reaction. Applying the same change
// twice has no further effect.
func (l *Ledger) ApplyReaction(conversationID string, e wire.ReactionChanged) {
	l.mux.Lock()
	m, ok := l.conv(conversationID).visible(e.ServerID)
	changed := false
	if ok {
		users := m.Reactions[e.Emoji]
		has := contains(users, e.UserID)
		switch {
		case e.Removed && has:
			users = without(users, e.UserID)
			if len(users) == 0 {
				delete(m.Reactions, e.Emoji)
			} else {
				m.Reactions[e.Emoji] = users
			}
			changed = true
		case !e.Removed && !has:
			if m.Reactions == nil {
				m.Reactions = make(map[string][]string)
			}
			m.Reactions[e.Emoji] = append(users, e.UserID)
			changed = true
		}
	}
	snap := l.snapshotIf(changed, conversationID)
	l.mux.Unlock()

	l.notify(snap)
}

// ApplyReceipt advances the delivery status of one of the local user's
// messages. Statuses only move forward.
func (l *Ledger) ApplyReceipt(conversationID string, e wire.ReceiptUpdate) {
	if e.UserID == l.self {
		return
	}

	l.mux.Lock()
	h := l.conv(conversationID)
	changed := false
	for _, m := range h.entries {
		// A receipt covers every earlier message of ours
		if !m.Confirmed() || m.ID > e.ServerID || m.SenderID != l.self {
			continue
		}
		if m.Status.Advances(e.Status) {
			m.Status = e.Status
			changed = true
		}
	}
	snap := l.snapshotIf(changed, conversationID)
	l.mux.Unlock()

	l.notify(snap)
}

// MarkRead tells the room that the reader has read everything up to and
// including upTo.
func (l *Ledger) MarkRead(conversationID, readerID string, upTo uint64) error {
	l.mux.Lock()
	_, ok := l.conv(conversationID).byServer[upTo]
	l.mux.Unlock()
	if !ok {
		return errors.Wrapf(ErrMessageNotFound, "id %d in %s", upTo,
			conversationID)
	}

	return l.sender.Send(conversationID, wire.ReceiptUpdate{
		ServerID: upTo, UserID: readerID, Status: model.Read})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
