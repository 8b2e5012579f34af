////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package call coordinates the local user's voice and video call in a
// conversation: credentials, the media channel lifecycle, the peer roster and
// the local device toggles.
package call

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/model"
)

// Coordinator is the sole writer of one conversation's call state. The
// MediaTransport is only called with the Coordinator's lock held, so its
// methods must not call back into the Coordinator.
type Coordinator struct {
	issuer   CredentialIssuer
	media    MediaTransport
	breaker  *gobreaker.CircuitBreaker
	params   Params
	onChange Listener

	mux sync.Mutex

	// generation increments on every Start so that a credential arriving
	// for an earlier attempt is dropped
	generation uint64

	state       State
	channel     string
	uid         uint32
	reason      string
	peers       map[uint32]Peer
	muted       bool
	videoOn     bool
	speakerOn   bool
	frontCamera bool
	expiresAt   time.Time
}

// NewCoordinator builds an idle Coordinator. onChange may be nil.
func NewCoordinator(issuer CredentialIssuer, media MediaTransport,
	params Params, onChange Listener) *Coordinator {
	settings := gobreaker.Settings{
		Name:        "CredentialIssuer",
		MaxRequests: 1,
		Timeout:     params.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= params.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			jww.WARN.Printf("Circuit breaker %s moved from %s to %s", name,
				from, to)
		},
	}
	return &Coordinator{
		issuer:   issuer,
		media:    media,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		params:   params,
		onChange: onChange,
		peers:    make(map[uint32]Peer),
	}
}

// Start obtains a publisher credential for channel and joins the media
// channel as uid. The call is connecting until OnLocalJoined. If the
// credential cannot be obtained the call ends with a reason and an
// ExternalService error is returned. A credential that arrives after the call
// ended is discarded and Start returns nil.
func (c *Coordinator) Start(ctx context.Context, channel string, uid uint32) error {
	c.mux.Lock()
	if c.state.InProgress() {
		c.mux.Unlock()
		return errors.WithMessagef(ErrInProgress, "channel %s", c.channel)
	}
	c.generation++
	gen := c.generation
	c.channel, c.uid, c.reason = channel, uid, ""
	c.peers = make(map[uint32]Peer)
	c.muted, c.videoOn = false, c.params.VideoOnStart
	c.speakerOn, c.frontCamera = true, true
	c.expiresAt = time.Time{}
	c.moveLocked(Connecting)
	snap := c.snapshotLocked()
	c.mux.Unlock()
	c.report(snap)

	cred, issueErr := c.issue(ctx, channel, uid)

	c.mux.Lock()
	if c.generation != gen || c.state != Connecting {
		state := c.state
		c.mux.Unlock()
		jww.DEBUG.Printf("Dropping credential for %s: call is %s", channel,
			state)
		return nil
	}

	if issueErr != nil {
		snap, _ = c.endLocked(ReasonCredential)
		c.mux.Unlock()
		c.report(snap)
		return issueErr
	}

	c.expiresAt = cred.ExpiresAt
	if err := c.media.Join(channel, uid, cred.Token); err != nil {
		snap, _ = c.endLocked(ReasonJoinFailed)
		c.mux.Unlock()
		c.report(snap)
		return errors.Wrapf(model.ErrExternalService,
			"failed to join media channel %s: %v", channel, err)
	}
	c.mux.Unlock()

	jww.INFO.Printf("Joining media channel %s as %d", channel, uid)
	return nil
}

func (c *Coordinator) issue(ctx context.Context, channel string,
	uid uint32) (Credential, error) {
	if c.params.IssueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.params.IssueTimeout)
		defer cancel()
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.issuer.Issue(ctx, channel, uid, Publisher)
	})
	if err != nil {
		jww.WARN.Printf("Failed to issue credential for %s: %+v", channel, err)
		return Credential{}, errors.Wrapf(model.ErrExternalService,
			"failed to issue credential for %s: %v", channel, err)
	}
	return res.(Credential), nil
}

// OnLocalJoined marks a connecting call as active.
func (c *Coordinator) OnLocalJoined() {
	c.mux.Lock()
	if c.state != Connecting {
		c.mux.Unlock()
		return
	}
	c.moveLocked(Active)
	snap := c.snapshotLocked()
	c.mux.Unlock()
	c.report(snap)
}

// OnPeerJoined records a remote peer. Repeated joins replace the entry.
func (c *Coordinator) OnPeerJoined(p Peer) {
	c.mux.Lock()
	if !c.state.InProgress() {
		c.mux.Unlock()
		return
	}
	if old, ok := c.peers[p.UID]; ok && old == p {
		c.mux.Unlock()
		return
	}
	c.peers[p.UID] = p
	snap := c.snapshotLocked()
	c.mux.Unlock()
	c.report(snap)
}

// OnPeerLeft removes a remote peer. When the last peer of an active call
// leaves, the call ends. Unknown peers are ignored.
func (c *Coordinator) OnPeerLeft(uid uint32) {
	c.mux.Lock()
	if _, ok := c.peers[uid]; !ok {
		c.mux.Unlock()
		return
	}
	delete(c.peers, uid)

	var snap Snapshot
	if c.state == Active && len(c.peers) == 0 {
		snap, _ = c.endLocked(ReasonLastPeerLeft)
	} else {
		snap = c.snapshotLocked()
	}
	c.mux.Unlock()
	c.report(snap)
}

// OnPeerMedia updates the published tracks of a known peer.
func (c *Coordinator) OnPeerMedia(uid uint32, hasAudio, hasVideo bool) {
	c.mux.Lock()
	p, ok := c.peers[uid]
	if !ok || (p.HasAudio == hasAudio && p.HasVideo == hasVideo) {
		c.mux.Unlock()
		return
	}
	p.HasAudio, p.HasVideo = hasAudio, hasVideo
	c.peers[uid] = p
	snap := c.snapshotLocked()
	c.mux.Unlock()
	c.report(snap)
}

// OnMediaError handles an error from the media transport. Fatal errors end
// the call.
func (c *Coordinator) OnMediaError(err error, fatal bool) {
	if !fatal {
		jww.WARN.Printf("Media error in %s: %+v", c.Snapshot().Channel, err)
		return
	}
	jww.ERROR.Printf("Fatal media error in %s: %+v", c.Snapshot().Channel, err)
	c.End(ReasonMediaError)
}

// OnTokenExpiring renews the credential of the current call and hands it to
// the media transport.
func (c *Coordinator) OnTokenExpiring(ctx context.Context) error {
	c.mux.Lock()
	if !c.state.InProgress() {
		c.mux.Unlock()
		return ErrNoCall
	}
	gen, channel, uid := c.generation, c.channel, c.uid
	c.mux.Unlock()

	cred, err := c.issue(ctx, channel, uid)
	if err != nil {
		return err
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	if c.generation != gen || !c.state.InProgress() {
		jww.DEBUG.Printf("Dropping renewed credential for %s", channel)
		return nil
	}
	if err = c.media.RenewToken(cred.Token); err != nil {
		return errors.Wrapf(model.ErrExternalService,
			"failed to renew media token for %s: %v", channel, err)
	}
	c.expiresAt = cred.ExpiresAt
	return nil
}

// End leaves the call. It returns false and does nothing when no call is in
// progress, so the ended state is reported exactly once per call.
func (c *Coordinator) End(reason string) bool {
	c.mux.Lock()
	snap, ok := c.endLocked(reason)
	c.mux.Unlock()
	if ok {
		c.report(snap)
	}
	return ok
}

func (c *Coordinator) endLocked(reason string) (Snapshot, bool) {
	if !c.state.InProgress() {
		return Snapshot{}, false
	}
	if err := c.media.Leave(); err != nil {
		jww.WARN.Printf("Failed to leave media channel %s: %+v", c.channel,
			err)
	}
	c.reason = reason
	c.peers = make(map[uint32]Peer)
	c.moveLocked(Ended)
	jww.INFO.Printf("Call in %s ended: %s", c.channel, reason)
	return c.snapshotLocked(), true
}

// ToggleMute flips the microphone and returns the new muted flag.
func (c *Coordinator) ToggleMute() (bool, error) {
	return c.toggle(&c.muted, c.media.SetMuted, "mute")
}

// ToggleVideo flips the camera and returns whether video is now on.
func (c *Coordinator) ToggleVideo() (bool, error) {
	return c.toggle(&c.videoOn, c.media.SetVideoEnabled, "video")
}

// ToggleSpeaker flips between speaker and earpiece output.
func (c *Coordinator) ToggleSpeaker() (bool, error) {
	return c.toggle(&c.speakerOn, c.media.SetSpeakerOn, "speaker")
}

// SwitchCamera flips between the front and back camera and returns whether
// the front camera is now in use.
func (c *Coordinator) SwitchCamera() (bool, error) {
	return c.toggle(&c.frontCamera, func(bool) error {
		return c.media.SwitchCamera()
	}, "camera")
}

// toggle flips a local flag and applies it to the media transport. The flag
// is restored if the transport refuses.
func (c *Coordinator) toggle(flag *bool, apply func(bool) error,
	name string) (bool, error) {
	c.mux.Lock()
	if !c.state.InProgress() {
		c.mux.Unlock()
		return false, ErrNoCall
	}
	*flag = !*flag
	if err := apply(*flag); err != nil {
		*flag = !*flag
		value := *flag
		c.mux.Unlock()
		return value, errors.Wrapf(model.ErrExternalService,
			"failed to toggle %s: %v", name, err)
	}
	value := *flag
	snap := c.snapshotLocked()
	c.mux.Unlock()
	c.report(snap)
	return value, nil
}

// Snapshot returns a copy of the call state with peers ordered by UID.
func (c *Coordinator) Snapshot() Snapshot {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	peers := make([]Peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].UID < peers[j].UID })
	return Snapshot{
		Channel:     c.channel,
		LocalUID:    c.uid,
		State:       c.state,
		Reason:      c.reason,
		Peers:       peers,
		Muted:       c.muted,
		VideoOn:     c.videoOn,
		SpeakerOn:   c.speakerOn,
		FrontCamera: c.frontCamera,
		ExpiresAt:   c.expiresAt,
	}
}

func (c *Coordinator) moveLocked(to State) {
	if !canTransition(c.state, to) {
		jww.FATAL.Panicf("Invalid call transition from %s to %s in %s",
			c.state, to, c.channel)
	}
	jww.DEBUG.Printf("Call in %s: %s -> %s", c.channel, c.state, to)
	c.state = to
}

func (c *Coordinator) report(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}
