////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"context"
	"hash/crc32"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/call"
	"gitlab.com/heartline/convsync/wire"
)

// MediaUID maps a user ID to the numeric ID used in media channels.
func MediaUID(userID string) uint32 {
	return crc32.ChecksumIEEE([]byte(userID))
}

// StartCall starts a call in a conversation. Only one call runs at a time.
func (e *Engine) StartCall(ctx context.Context, conversationID string) error {
	if e.call == nil {
		return ErrNoCalls
	}
	r, err := e.guard(conversationID)
	if err != nil {
		return err
	}
	conv, err := e.directory.Get(conversationID)
	r.mux.Unlock()
	if err != nil {
		return err
	}
	if !conv.Settings.VoiceEnabled && !conv.Settings.VideoEnabled {
		return errors.Wrapf(ErrCallsDisabled, "%s", conversationID)
	}

	e.callMux.Lock()
	defer e.callMux.Unlock()
	e.mux.Lock()
	if e.call.Snapshot().State.InProgress() {
		current := e.callConv
		e.mux.Unlock()
		return errors.WithMessagef(call.ErrInProgress, "in %s", current)
	}
	e.callConv = conversationID
	e.mux.Unlock()

	// The credential request is not made under the room lock
	if err = e.call.Start(ctx, conversationID, MediaUID(e.self)); err != nil {
		return err
	}
	if !e.call.Snapshot().State.InProgress() {
		jww.DEBUG.Printf("Call in %s ended while connecting", conversationID)
		return nil
	}
	if err = e.session.Send(conversationID, wire.CallSignal{
		Action: wire.CallStarted, ChannelName: conversationID,
		UserID: e.self}); err != nil {
		jww.DEBUG.Printf("Call start in %s not signalled: %+v",
			conversationID, err)
	}
	return nil
}

// EndCall hangs up the call in a conversation.
func (e *Engine) EndCall(conversationID string) error {
	c, err := e.activeCall(conversationID)
	if err != nil {
		return err
	}
	if c.End(call.ReasonHangUp) {
		if err = e.session.Send(conversationID, wire.CallSignal{
			Action: wire.CallEnded, ChannelName: conversationID,
			UserID: e.self}); err != nil {
			jww.DEBUG.Printf("Call end in %s not signalled: %+v",
				conversationID, err)
		}
	}
	return nil
}

// ToggleMute flips the microphone and returns whether it is now muted.
func (e *Engine) ToggleMute(conversationID string) (bool, error) {
	c, err := e.activeCall(conversationID)
	if err != nil {
		return false, err
	}
	return c.ToggleMute()
}

// ToggleVideo flips the camera and returns whether video is now on.
func (e *Engine) ToggleVideo(conversationID string) (bool, error) {
	c, err := e.activeCall(conversationID)
	if err != nil {
		return false, err
	}
	return c.ToggleVideo()
}

// ToggleSpeaker flips the audio output and returns whether the speaker is
// now on.
func (e *Engine) ToggleSpeaker(conversationID string) (bool, error) {
	c, err := e.activeCall(conversationID)
	if err != nil {
		return false, err
	}
	return c.ToggleSpeaker()
}

// SwitchCamera flips between cameras and returns whether the front camera
// is now in use.
func (e *Engine) SwitchCamera(conversationID string) (bool, error) {
	c, err := e.activeCall(conversationID)
	if err != nil {
		return false, err
	}
	return c.SwitchCamera()
}

// CallState returns the call snapshot of a conversation. A conversation
// without a call reports idle.
func (e *Engine) CallState(conversationID string) call.Snapshot {
	e.mux.Lock()
	inCall := e.call != nil && e.callConv == conversationID
	e.mux.Unlock()
	if !inCall {
		return call.Snapshot{Channel: conversationID, State: call.Idle}
	}
	return e.call.Snapshot()
}

// Call returns the coordinator so that the media transport can deliver its
// events. It is nil when calls are not configured.
func (e *Engine) Call() *call.Coordinator {
	return e.call
}

func (e *Engine) activeCall(conversationID string) (*call.Coordinator, error) {
	if e.call == nil {
		return nil, ErrNoCalls
	}
	e.mux.Lock()
	current := e.callConv
	e.mux.Unlock()
	if current != conversationID {
		return nil, errors.WithMessagef(call.ErrNoCall, "in %s",
			conversationID)
	}
	return e.call, nil
}
