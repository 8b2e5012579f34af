////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package model

import (
	"strconv"
	"time"
)

// Kind distinguishes the conversation variants.
type Kind uint8

const (
	Direct Kind = iota + 1
	Group
	LiveSession
)

// String returns a human-readable version of [Kind]. This function adheres to
// the [fmt.Stringer] interface.
func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Group:
		return "group"
	case LiveSession:
		return "live-session"
	default:
		return "Invalid Kind: " + strconv.Itoa(int(k))
	}
}

// LiveStatus is the status of a live session.
type LiveStatus uint8

const (
	LiveActive LiveStatus = iota + 1
	LiveEnded
)

// String returns a human-readable version of [LiveStatus]. This function
// adheres to the [fmt.Stringer] interface.
func (s LiveStatus) String() string {
	switch s {
	case LiveActive:
		return "active"
	case LiveEnded:
		return "ended"
	default:
		return "Invalid LiveStatus: " + strconv.Itoa(int(s))
	}
}

// Settings are the mutable options of a conversation. A MaxParticipants of
// zero means unbounded.
type Settings struct {
	MaxParticipants int  `json:"maxParticipants"`
	RequireApproval bool `json:"requireApproval"`
	VoiceEnabled    bool `json:"voiceEnabled"`
	VideoEnabled    bool `json:"videoEnabled"`
}

// Live holds the fields specific to a live session.
type Live struct {
	HostID   string     `json:"hostID"`
	Status   LiveStatus `json:"status"`
	StartsAt time.Time  `json:"startsAt"`
	EndsAt   time.Time  `json:"endsAt"`
}

// Conversation is a direct chat, a group or a live session.
type Conversation struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Title        string    `json:"title"`
	OwnerID      string    `json:"ownerID"`
	Settings     Settings  `json:"settings"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`

	// Live is only set when Kind is LiveSession.
	Live *Live `json:"live,omitempty"`
}

// IsLive returns true if the conversation is a live session that has not
// ended.
func (c Conversation) IsLive() bool {
	return c.Kind == LiveSession && c.Live != nil && c.Live.Status == LiveActive
}

// IsHost returns true if the user hosts this live session.
func (c Conversation) IsHost(userID string) bool {
	return c.Live != nil && c.Live.HostID == userID
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	if c.Live != nil {
		l := *c.Live
		c.Live = &l
	}
	return c
}
