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

// RequestStatus is the state of a join request.
type RequestStatus uint8

const (
	Pending RequestStatus = iota + 1
	Approved
	Rejected
)

// String returns a human-readable version of [RequestStatus]. This function
// adheres to the [fmt.Stringer] interface.
func (s RequestStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "Invalid RequestStatus: " + strconv.Itoa(int(s))
	}
}

// Terminal returns true for approved and rejected.
func (s RequestStatus) Terminal() bool {
	return s == Approved || s == Rejected
}

// JoinRequest asks a live session's hosts for entry.
type JoinRequest struct {
	ID            string        `json:"id"`
	LiveSessionID string        `json:"liveSessionID"`
	RequesterID   string        `json:"requesterID"`
	Message       string        `json:"message,omitempty"`
	RequestedAt   time.Time     `json:"requestedAt"`
	Status        RequestStatus `json:"status"`
	DecidedBy     string        `json:"decidedBy,omitempty"`
	DecidedAt     time.Time     `json:"decidedAt,omitempty"`
}
