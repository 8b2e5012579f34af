////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package wire defines the closed set of events exchanged over a room and
// their binary frame encoding.
package wire

import (
	"strconv"
	"time"

	"gitlab.com/heartline/convsync/model"
)

// Kind identifies the concrete type of an Event on the wire.
type Kind uint8

const (
	KindJoinRoom Kind = iota + 1
	KindLeaveRoom
	KindMessagePosted
	KindMessageAck
	KindMessageEdited
	KindMessageDeleted
	KindReceiptUpdate
	KindReactionChanged
	KindTypingChanged
	KindPresenceChanged
	KindPresenceSnapshot
	KindMembershipChanged
	KindSettingsChanged
	KindJoinRequested
	KindJoinDecided
	KindCallSignal
)

// String returns a human-readable version of [Kind], used for debugging and
// logging. This function adheres to the [fmt.Stringer] interface.
func (k Kind) String() string {
	switch k {
	case KindJoinRoom:
		return "JoinRoom"
	case KindLeaveRoom:
		return "LeaveRoom"
	case KindMessagePosted:
		return "MessagePosted"
	case KindMessageAck:
		return "MessageAck"
	case KindMessageEdited:
		return "MessageEdited"
	case KindMessageDeleted:
		return "MessageDeleted"
	case KindReceiptUpdate:
		return "ReceiptUpdate"
	case KindReactionChanged:
		return "ReactionChanged"
	case KindTypingChanged:
		return "TypingChanged"
	case KindPresenceChanged:
		return "PresenceChanged"
	case KindPresenceSnapshot:
		return "PresenceSnapshot"
	case KindMembershipChanged:
		return "MembershipChanged"
	case KindSettingsChanged:
		return "SettingsChanged"
	case KindJoinRequested:
		return "JoinRequested"
	case KindJoinDecided:
		return "JoinDecided"
	case KindCallSignal:
		return "CallSignal"
	default:
		return "Unknown Kind " + strconv.Itoa(int(k))
	}
}

// Ephemeral returns true for kinds whose handlers are last-write-wins and
// which are therefore not subject to duplicate suppression. A typing refresh
// is byte-identical to the event it refreshes.
func (k Kind) Ephemeral() bool {
	switch k {
	case KindTypingChanged, KindPresenceChanged, KindPresenceSnapshot:
		return true
	default:
		return false
	}
}

// Event is one of the event structs in this file. The set is closed; switch
// statements over it are expected to be exhaustive.
type Event interface {
	Kind() Kind
	isEvent()
}

// JoinRoom subscribes the connection to a room.
type JoinRoom struct{}

// LeaveRoom unsubscribes the connection from a room.
type LeaveRoom struct{}

// MessagePosted is both the send intent of a client and the broadcast of a
// stored message. ServerID is zero on the intent.
type MessagePosted struct {
	TempID    string
	ServerID  uint64
	SenderID  string
	Payload   model.Payload
	ReplyTo   uint64
	CreatedAt time.Time
}

// MessageAck confirms a send to its sender.
type MessageAck struct {
	TempID    string
	ServerID  uint64
	CreatedAt time.Time
}

type MessageEdited struct {
	ServerID uint64
	EditorID string
	Payload  model.Payload
	EditedAt time.Time
}

type MessageDeleted struct {
	ServerID    uint64
	ActorID     string
	ForEveryone bool
}

// ReceiptUpdate reports that UserID has received or read every message up to
// and including ServerID.
type ReceiptUpdate struct {
	ServerID uint64
	UserID   string
	Status   model.Status
}

type ReactionChanged struct {
	ServerID uint64
	UserID   string
	Emoji    string
	Removed  bool
}

type TypingChanged struct {
	UserID   string
	IsTyping bool
}

type PresenceChanged struct {
	UserID string
	Online bool
}

// PresenceSnapshot is sent by the server after every join of a room and
// replaces the room's online set.
type PresenceSnapshot struct {
	Online []string
}

// MembershipAction is the kind of roster mutation.
type MembershipAction uint8

const (
	MemberAdded MembershipAction = iota + 1
	MemberRemoved
	MemberRoleChanged
)

// String returns a human-readable version of [MembershipAction]. This
// function adheres to the [fmt.Stringer] interface.
func (a MembershipAction) String() string {
	switch a {
	case MemberAdded:
		return "added"
	case MemberRemoved:
		return "removed"
	case MemberRoleChanged:
		return "roleChanged"
	default:
		return "Invalid MembershipAction: " + strconv.Itoa(int(a))
	}
}

type MembershipChanged struct {
	UserID  string
	ActorID string
	Action  MembershipAction
	Role    model.Role
	At      time.Time
}

type SettingsChanged struct {
	Title    string
	Settings model.Settings
	// Ended is set when a live session ends or a conversation is deleted.
	Ended bool
}

type JoinRequested struct {
	Request model.JoinRequest
}

type JoinDecided struct {
	RequestID   string
	RequesterID string
	Status      model.RequestStatus
	DecidedBy   string
	DecidedAt   time.Time
}

// CallAction announces call lifecycle changes to the room.
type CallAction uint8

const (
	CallStarted CallAction = iota + 1
	CallEnded
)

// String returns a human-readable version of [CallAction]. This function
// adheres to the [fmt.Stringer] interface.
func (a CallAction) String() string {
	switch a {
	case CallStarted:
		return "started"
	case CallEnded:
		return "ended"
	default:
		return "Invalid CallAction: " + strconv.Itoa(int(a))
	}
}

type CallSignal struct {
	Action      CallAction
	ChannelName string
	UserID      string
}

func (JoinRoom) Kind() Kind          { return KindJoinRoom }
func (LeaveRoom) Kind() Kind         { return KindLeaveRoom }
func (MessagePosted) Kind() Kind     { return KindMessagePosted }
func (MessageAck) Kind() Kind        { return KindMessageAck }
func (MessageEdited) Kind() Kind     { return KindMessageEdited }
func (MessageDeleted) Kind() Kind    { return KindMessageDeleted }
func (ReceiptUpdate) Kind() Kind     { return KindReceiptUpdate }
func (ReactionChanged) Kind() Kind   { return KindReactionChanged }
func (TypingChanged) Kind() Kind     { return KindTypingChanged }
func (PresenceChanged) Kind() Kind   { return KindPresenceChanged }
func (PresenceSnapshot) Kind() Kind  { return KindPresenceSnapshot }
func (MembershipChanged) Kind() Kind { return KindMembershipChanged }
func (SettingsChanged) Kind() Kind   { return KindSettingsChanged }
func (JoinRequested) Kind() Kind     { return KindJoinRequested }
func (JoinDecided) Kind() Kind       { return KindJoinDecided }
func (CallSignal) Kind() Kind        { return KindCallSignal }

func (JoinRoom) isEvent()          {}
func (LeaveRoom) isEvent()         {}
func (MessagePosted) isEvent()     {}
func (MessageAck) isEvent()        {}
func (MessageEdited) isEvent()     {}
func (MessageDeleted) isEvent()    {}
func (ReceiptUpdate) isEvent()     {}
func (ReactionChanged) isEvent()   {}
func (TypingChanged) isEvent()     {}
func (PresenceChanged) isEvent()   {}
func (PresenceSnapshot) isEvent()  {}
func (MembershipChanged) isEvent() {}
func (SettingsChanged) isEvent()   {}
func (JoinRequested) isEvent()     {}
func (JoinDecided) isEvent()       {}
func (CallSignal) isEvent()        {}
