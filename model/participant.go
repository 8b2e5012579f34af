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

	"github.com/pkg/errors"
)

// Role is the standing of a participant within a conversation.
type Role uint8

const (
	// Guest is a participant admitted to a live session with the least
	// privileges.
	Guest Role = iota + 1

	// Member is a regular participant.
	Member

	// Moderator may remove other users' messages.
	Moderator

	// Admin may manage participants and roles.
	Admin

	// Owner is the single creator of the conversation.
	Owner
)

// String returns a human-readable version of [Role], used for debugging and
// logging. This function adheres to the [fmt.Stringer] interface.
func (r Role) String() string {
	switch r {
	case Guest:
		return "guest"
	case Member:
		return "member"
	case Moderator:
		return "moderator"
	case Admin:
		return "admin"
	case Owner:
		return "owner"
	default:
		return "Invalid Role: " + strconv.Itoa(int(r))
	}
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for r := Guest; r <= Owner; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalid, "unknown role %q", s)
}

// Valid returns true if the role is one of the five enumerated roles.
func (r Role) Valid() bool {
	return r >= Guest && r <= Owner
}

// CanManage returns true if the role may add or remove participants and
// change their roles.
func (r Role) CanManage() bool {
	return r == Admin || r == Owner
}

// CanModerate returns true if the role may delete the messages of others.
func (r Role) CanModerate() bool {
	return r == Moderator || r.CanManage()
}

// Participant is the membership of one user in one conversation.
type Participant struct {
	ConversationID string    `json:"conversationID"`
	UserID         string    `json:"userID"`
	Role           Role      `json:"role"`
	Online         bool      `json:"online"`
	JoinedAt       time.Time `json:"joinedAt"`
}
