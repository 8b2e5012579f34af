////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"context"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/transport"
	"gitlab.com/heartline/convsync/wire"
)

// handler returns the transport handler of a conversation's room. Events are
// applied under the room lock, in the order the transport delivers them.
func (e *Engine) handler(conversationID string) transport.Handler {
	return func(env wire.Envelope) {
		r := e.room(conversationID)
		if r == nil {
			return
		}
		r.mux.Lock()
		defer r.mux.Unlock()
		if r.removed {
			jww.TRACE.Printf("Dropping %s for %s after removal",
				env.Event.Kind(), conversationID)
			return
		}
		if r.observer {
			e.observed(r, env.Event)
			return
		}
		e.apply(r, env.Event)
	}
}

// apply applies one room event. The caller holds the room lock.
func (e *Engine) apply(r *room, ev wire.Event) {
	id := r.id
	switch ev := ev.(type) {
	case wire.JoinRoom, wire.LeaveRoom:
		jww.TRACE.Printf("Ignoring control frame %s in %s", ev.Kind(), id)
	case wire.MessagePosted:
		e.ledger.ApplyMessage(id, ev)
		e.directory.Touch(id, ev.CreatedAt)
	case wire.MessageAck:
		e.ledger.ApplyAck(id, ev)
	case wire.MessageEdited:
		e.ledger.ApplyEdit(id, ev)
	case wire.MessageDeleted:
		e.ledger.ApplyDelete(id, ev)
	case wire.ReceiptUpdate:
		e.ledger.ApplyReceipt(id, ev)
	case wire.ReactionChanged:
		e.ledger.ApplyReaction(id, ev)
	case wire.TypingChanged:
		e.presence.ApplyTyping(id, ev.UserID, ev.IsTyping)
	case wire.PresenceChanged:
		e.presence.ApplyPresence(id, ev.UserID, ev.Online)
	case wire.PresenceSnapshot:
		e.presence.ApplySnapshot(id, ev.Online)
	case wire.MembershipChanged:
		changed, removedSelf := e.members.Apply(id, ev)
		if removedSelf {
			r.removed = true
			go e.teardown(id)
		} else if changed {
			e.reportMembership(id)
		}
	case wire.SettingsChanged:
		if ev.Ended {
			e.sessionEnded(id)
			return
		}
		if err := e.members.SetCapacity(id, ev.Settings.MaxParticipants); err != nil {
			jww.WARN.Printf("Capacity of %s not applied: %+v", id, err)
		}
		e.directory.ApplySettings(id, ev.Title, ev.Settings, false)
	case wire.JoinRequested:
		e.requests.Apply(ev)
	case wire.JoinDecided:
		if _, changed := e.requests.Apply(ev); changed &&
			ev.Status == model.Approved {
			e.reportMembership(id)
		}
	case wire.CallSignal:
		jww.DEBUG.Printf("%s %s the call in %s", ev.UserID, ev.Action, id)
	default:
		jww.WARN.Printf("Unhandled event %s in %s", ev.Kind(), id)
	}
}

// observed handles the events a requester receives while waiting for a
// decision. Once its own request is approved the room is entered, otherwise
// the room is left.
func (e *Engine) observed(r *room, ev wire.Event) {
	switch ev := ev.(type) {
	case wire.JoinDecided:
		req, changed := e.requests.Apply(ev)
		if !changed || req.RequesterID != e.self {
			return
		}
		switch req.Status {
		case model.Approved:
			go e.admitted(r.id)
		case model.Rejected:
			go e.abandon(r.id)
		}
	case wire.SettingsChanged:
		if ev.Ended {
			e.sessionEnded(r.id)
			go e.abandon(r.id)
		}
	default:
		jww.TRACE.Printf("Observer of %s ignoring %s", r.id, ev.Kind())
	}
}

// admitted opens a live session after the local user's request was
// approved.
func (e *Engine) admitted(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(),
		e.params.RosterTimeout)
	defer cancel()
	if err := e.Open(ctx, sessionID); err != nil {
		jww.ERROR.Printf("Approved for %s but failed to open it: %+v",
			sessionID, err)
	}
}
