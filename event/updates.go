////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package event

import (
	"fmt"

	"gitlab.com/heartline/convsync/call"
	"gitlab.com/heartline/convsync/model"
)

// Update is a change the UI observes. Every update carries a full snapshot of
// the state it describes, so a subscriber that missed an update only needs
// the next one.
type Update interface {
	// Conversation returns the ID of the conversation the update is for.
	Conversation() string
	isUpdate()
}

// MessagesChanged carries the ordered message list of a conversation.
type MessagesChanged struct {
	ConversationID string
	Messages       []model.Message
}

// TypingChanged carries the users currently typing in a conversation.
type TypingChanged struct {
	ConversationID string
	Users          []string
}

// MembershipChanged carries the roster. RemovedSelf is set once the local
// user has been removed and the conversation is no longer usable.
type MembershipChanged struct {
	ConversationID string
	Participants   []model.Participant
	RemovedSelf    bool
}

// JoinRequestsChanged carries the pending join requests of a live session.
type JoinRequestsChanged struct {
	ConversationID string
	Pending        []model.JoinRequest

	// Decided is the request whose status just changed, if any.
	Decided *model.JoinRequest
}

// CallStateChanged carries the local call state.
type CallStateChanged struct {
	ConversationID string
	Call           call.Snapshot
}

// ConversationChanged carries a conversation whose metadata changed.
type ConversationChanged struct {
	Conv model.Conversation
}

func (u MessagesChanged) Conversation() string     { return u.ConversationID }
func (u TypingChanged) Conversation() string       { return u.ConversationID }
func (u MembershipChanged) Conversation() string   { return u.ConversationID }
func (u JoinRequestsChanged) Conversation() string { return u.ConversationID }
func (u CallStateChanged) Conversation() string    { return u.ConversationID }
func (u ConversationChanged) Conversation() string { return u.Conv.ID }

func (MessagesChanged) isUpdate()     {}
func (TypingChanged) isUpdate()       {}
func (MembershipChanged) isUpdate()   {}
func (JoinRequestsChanged) isUpdate() {}
func (CallStateChanged) isUpdate()    {}
func (ConversationChanged) isUpdate() {}

// Describe returns a short log line for an update.
func Describe(u Update) string {
	switch u := u.(type) {
	case MessagesChanged:
		return fmt.Sprintf("MessagesChanged(%s, %d messages)",
			u.ConversationID, len(u.Messages))
	case TypingChanged:
		return fmt.Sprintf("TypingChanged(%s, %v)", u.ConversationID, u.Users)
	case MembershipChanged:
		return fmt.Sprintf("MembershipChanged(%s, %d participants, "+
			"removedSelf:%t)", u.ConversationID, len(u.Participants),
			u.RemovedSelf)
	case JoinRequestsChanged:
		return fmt.Sprintf("JoinRequestsChanged(%s, %d pending)",
			u.ConversationID, len(u.Pending))
	case CallStateChanged:
		return fmt.Sprintf("CallStateChanged(%s, %s)",
			u.ConversationID, u.Call.State)
	case ConversationChanged:
		return fmt.Sprintf("ConversationChanged(%s)", u.Conv.ID)
	default:
		return fmt.Sprintf("unknown update %T", u)
	}
}
