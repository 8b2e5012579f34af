////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"context"
	"time"
)

// Role is the media role a credential is issued for.
type Role uint8

const (
	Publisher Role = iota + 1
	Subscriber
)

// Credential is a short-lived token authorizing access to a media channel.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// CredentialIssuer mints media tokens.
type CredentialIssuer interface {
	Issue(ctx context.Context, channel string, uid uint32, role Role) (
		Credential, error)
}

// MediaTransport is the real-time audio/video engine. Its events are fed back
// into the Coordinator through the On* methods.
type MediaTransport interface {
	Join(channel string, uid uint32, token string) error
	Leave() error
	RenewToken(token string) error
	SetMuted(muted bool) error
	SetVideoEnabled(enabled bool) error
	SetSpeakerOn(on bool) error
	SwitchCamera() error
}

// Peer is a remote participant in the media channel.
type Peer struct {
	UID      uint32
	HasAudio bool
	HasVideo bool
}

// Snapshot is a consistent copy of the call state.
type Snapshot struct {
	Channel     string
	LocalUID    uint32
	State       State
	Reason      string
	Peers       []Peer
	Muted       bool
	VideoOn     bool
	SpeakerOn   bool
	FrontCamera bool
	ExpiresAt   time.Time
}

// Listener is called after every change of the call state.
type Listener func(s Snapshot)
