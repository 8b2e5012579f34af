////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package model

import (
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrAuthorization is returned when the acting user does not hold a role
	// sufficient for a privileged action.
	ErrAuthorization = errors.New("insufficient role for this action")

	// ErrConflict is returned when an action collides with current state,
	// such as deciding a join request twice.
	ErrConflict = errors.New("the action conflicts with the current state")

	// ErrNotFound is returned when the conversation, message, participant or
	// request no longer exists.
	ErrNotFound = errors.New("the requested item cannot be found")

	// ErrTransportUnavailable is returned when the real-time channel is
	// disconnected.
	ErrTransportUnavailable = errors.New("the real-time transport is unavailable")

	// ErrExternalService is returned when the credential issuer or the upload
	// store fails.
	ErrExternalService = errors.New("an external service failed")

	// ErrInvalid is returned when an argument fails validation.
	ErrInvalid = errors.New("invalid argument")
)

var (
	// ErrSessionFull is returned when a join would exceed the capacity of a
	// live session.
	ErrSessionFull = errors.Wrap(ErrConflict, "the session is full")

	// ErrAlreadyDecided is returned when approving or rejecting a join request
	// that is no longer pending.
	ErrAlreadyDecided = errors.Wrap(ErrConflict,
		"the join request has already been decided")

	// ErrOwnerImmutable is returned when an action targets the role of the
	// conversation owner.
	ErrOwnerImmutable = errors.Wrap(ErrAuthorization,
		"the owner's role cannot be changed")

	// ErrRemoved is returned for intents against a conversation the local
	// user has been removed from.
	ErrRemoved = errors.Wrap(ErrAuthorization,
		"the user is no longer a participant of the conversation")
)

// ErrorKind classifies an error into the taxonomy the UI presents.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindConflict
	KindNotFound
	KindTransportUnavailable
	KindExternalService
	KindInvalid
)

// String returns a human-readable version of [ErrorKind]. This function
// adheres to the [fmt.Stringer] interface.
func (k ErrorKind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	case KindTransportUnavailable:
		return "transport unavailable"
	case KindExternalService:
		return "external service failure"
	case KindInvalid:
		return "invalid"
	default:
		return "Invalid ErrorKind: " + strconv.Itoa(int(k))
	}
}

// KindOf returns the taxonomy kind of err, looking through any wrapping.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAuthorization):
		return KindAuthorization
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransportUnavailable):
		return KindTransportUnavailable
	case errors.Is(err, ErrExternalService):
		return KindExternalService
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	default:
		return KindUnknown
	}
}
