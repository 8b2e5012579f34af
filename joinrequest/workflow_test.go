////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package joinrequest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
	"gitlab.com/heartline/convsync/wire"
)

func TestCheckTransition(t *testing.T) {
	statuses := []model.RequestStatus{model.Pending, model.Approved,
		model.Rejected}
	for _, from := range statuses {
		for _, to := range statuses {
			err := checkTransition(from, to)
			allowed := from == model.Pending && to != model.Pending
			if allowed {
				require.NoError(t, err, "%s -> %s", from, to)
			} else {
				require.True(t, errors.Is(err, model.ErrAlreadyDecided),
					"%s -> %s", from, to)
				require.Equal(t, model.KindConflict, model.KindOf(err))
			}
		}
	}
}

func TestWorkflow_Request(t *testing.T) {
	tw := newTestWorkflow(t, nil, 0)

	req := tw.request(t, "dave")
	require.Equal(t, "r1", req.ID)
	require.Equal(t, model.Pending, req.Status)
	require.Len(t, tw.submitter.submitted, 1)
	require.Equal(t, []model.JoinRequest{req}, tw.Pending("s1"))

	session, _ := tw.sessions.Get("s1")
	_, err := tw.Request(context.Background(), session, "dave", "again")
	require.True(t, errors.Is(err, ErrRequestPending))

	_, err = tw.Request(context.Background(), session, "viewer", "")
	require.True(t, errors.Is(err, model.ErrConflict))

	_, err = tw.Request(context.Background(), session, "erin",
		strings.Repeat("x", maxMessageLength+1))
	require.True(t, errors.Is(err, model.ErrInvalid))
}

func TestWorkflow_Request_Invalid(t *testing.T) {
	tw := newTestWorkflow(t, nil, 0)
	session, _ := tw.sessions.Get("s1")
	ctx := context.Background()

	open := session.Clone()
	open.Settings.RequireApproval = false
	_, err := tw.Request(ctx, open, "dave", "")
	require.True(t, errors.Is(err, ErrApprovalNotRequired))

	ended := session.Clone()
	ended.Live.Status = model.LiveEnded
	_, err = tw.Request(ctx, ended, "dave", "")
	require.True(t, errors.Is(err, ErrSessionEnded))

	group := model.Conversation{ID: "g", Kind: model.Group, Active: true}
	_, err = tw.Request(ctx, group, "dave", "")
	require.True(t, errors.Is(err, ErrNotLiveSession))

	tw.submitter.err = errors.New("boom")
	_, err = tw.Request(ctx, session, "dave", "")
	require.True(t, errors.Is(err, model.ErrExternalService))
	require.Empty(t, tw.Pending("s1"))
}

func TestWorkflow_Approve(t *testing.T) {
	tw := newTestWorkflow(t, nil, 0)
	req := tw.request(t, "dave")

	decided, err := tw.Approve(req.ID, "host")
	require.NoError(t, err)
	require.Equal(t, model.Approved, decided.Status)
	require.Equal(t, "host", decided.DecidedBy)
	require.False(t, decided.DecidedAt.IsZero())

	role, ok := tw.members.Role("s1", "dave")
	require.True(t, ok)
	require.Equal(t, model.Guest, role)
	require.Empty(t, tw.Pending("s1"))
	require.Len(t, tw.decided, 1)

	_, err = tw.Reject(req.ID, "host")
	require.True(t, errors.Is(err, model.ErrAlreadyDecided))
}

func TestWorkflow_Decide_Unauthorized(t *testing.T) {
	tw := newTestWorkflow(t, nil, 0)
	req := tw.request(t, "dave")

	_, err := tw.Approve(req.ID, "viewer")
	require.True(t, errors.Is(err, model.ErrAuthorization))
	require.False(t, tw.members.IsParticipant("s1", "dave"))

	_, err = tw.Approve("missing", "host")
	require.True(t, errors.Is(err, model.ErrNotFound))

	// The owner may decide without hosting
	_, err = tw.Reject(req.ID, "owner")
	require.NoError(t, err)
}

// Tests that approving into a full session leaves the request pending.
func TestWorkflow_Approve_Full(t *testing.T) {
	tw := newTestWorkflow(t, nil, 3)
	req := tw.request(t, "dave")

	_, err := tw.Approve(req.ID, "host")
	require.True(t, errors.Is(err, model.ErrSessionFull))
	require.False(t, tw.members.IsParticipant("s1", "dave"))

	pending, err := tw.Get(req.ID)
	require.NoError(t, err)
	require.Equal(t, model.Pending, pending.Status)

	_, err = tw.Reject(req.ID, "host")
	require.NoError(t, err)
}

// Tests that two hosts deciding at once produce exactly one decision and
// admit the requester at most once.
func TestWorkflow_ConcurrentDecisions(t *testing.T) {
	tw := newTestWorkflow(t, nil, 0)
	req := tw.request(t, "dave")

	var (
		wg        sync.WaitGroup
		mux       sync.Mutex
		successes int
		conflicts int
	)
	decide := func(approve bool, actor string) {
		defer wg.Done()
		var err error
		if approve {
			_, err = tw.Approve(req.ID, actor)
		} else {
			_, err = tw.Reject(req.ID, actor)
		}
		mux.Lock()
		defer mux.Unlock()
		if err == nil {
			successes++
		} else if errors.Is(err, model.ErrAlreadyDecided) {
			conflicts++
		}
	}
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go decide(true, "host")
		go decide(i%2 == 0, "owner")
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, 19, conflicts)
	require.Len(t, tw.decided, 1)

	count := 0
	for _, p := range tw.members.Participants("s1") {
		if p.UserID == "dave" {
			count++
		}
	}
	final, _ := tw.Get(req.ID)
	if final.Status == model.Approved {
		require.Equal(t, 1, count)
	} else {
		require.Zero(t, count)
	}
}

// Tests that a rejected requester may ask again with a new request.
func TestWorkflow_RequestAfterRejection(t *testing.T) {
	tw := newTestWorkflow(t, nil, 0)
	first := tw.request(t, "dave")
	_, err := tw.Reject(first.ID, "host")
	require.NoError(t, err)

	second := tw.request(t, "dave")
	require.NotEqual(t, first.ID, second.ID)

	history := tw.ForRequester("s1", "dave")
	require.Len(t, history, 2)
	require.Equal(t, model.Rejected, history[0].Status)
	require.Equal(t, model.Pending, history[1].Status)
}

func TestWorkflow_Apply(t *testing.T) {
	tw := newTestWorkflow(t, nil, 0)

	requested := wire.JoinRequested{Request: model.JoinRequest{
		ID: "x1", LiveSessionID: "s1", RequesterID: "erin"}}
	req, changed := tw.Apply(requested)
	require.True(t, changed)
	require.Equal(t, model.Pending, req.Status)
	_, changed = tw.Apply(requested)
	require.False(t, changed)

	decision := wire.JoinDecided{RequestID: "x1", RequesterID: "erin",
		Status: model.Rejected, DecidedBy: "host"}
	req, changed = tw.Apply(decision)
	require.True(t, changed)
	require.Equal(t, model.Rejected, req.Status)
	_, changed = tw.Apply(decision)
	require.False(t, changed)

	// A conflicting late decision does not overwrite the first
	decision.Status = model.Approved
	req, changed = tw.Apply(decision)
	require.False(t, changed)
	require.Equal(t, model.Rejected, req.Status)

	_, changed = tw.Apply(wire.JoinDecided{RequestID: "unknown",
		Status: model.Approved})
	require.False(t, changed)
	_, changed = tw.Apply(wire.TypingChanged{})
	require.False(t, changed)
}

func TestWorkflow_Load(t *testing.T) {
	kv := versioned.NewMemKV()
	tw := newTestWorkflow(t, kv, 0)
	a := tw.request(t, "dave")
	tw.request(t, "erin")
	_, err := tw.Approve(a.ID, "host")
	require.NoError(t, err)

	restored := newTestWorkflow(t, kv, 0)
	require.NoError(t, restored.Load("s1"))
	require.NoError(t, restored.Load("nothing"))
	pending := restored.Pending("s1")
	require.Len(t, pending, 1)
	require.Equal(t, "erin", pending[0].RequesterID)

	got, err := restored.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, model.Approved, got.Status)
}
