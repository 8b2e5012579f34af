////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package joinrequest

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/membership"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
)

type mockSessions struct {
	convs map[string]model.Conversation
}

func (m *mockSessions) Get(id string) (model.Conversation, error) {
	c, ok := m.convs[id]
	if !ok {
		return model.Conversation{}, errors.Wrap(model.ErrNotFound, id)
	}
	return c, nil
}

type mockSubmitter struct {
	mux       sync.Mutex
	submitted []model.JoinRequest
	err       error
}

func (m *mockSubmitter) SubmitJoinRequest(_ context.Context,
	req model.JoinRequest) (model.JoinRequest, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.err != nil {
		return model.JoinRequest{}, m.err
	}
	m.submitted = append(m.submitted, req)
	return req, nil
}

type testWorkflow struct {
	*Workflow
	members   *membership.Manager
	sessions  *mockSessions
	submitter *mockSubmitter

	mux     sync.Mutex
	decided []model.JoinRequest
}

// newTestWorkflow builds a workflow for live session "s1" hosted by "host",
// owned by "owner" and holding at most capacity participants.
func newTestWorkflow(t *testing.T, kv *versioned.KV, capacity int) *testWorkflow {
	session := model.Conversation{
		ID:      "s1",
		Kind:    model.LiveSession,
		OwnerID: "owner",
		Active:  true,
		Settings: model.Settings{
			MaxParticipants: capacity,
			RequireApproval: true,
		},
		Live: &model.Live{HostID: "host", Status: model.LiveActive},
	}

	tw := &testWorkflow{
		members:   membership.NewManager("host", nil),
		sessions:  &mockSessions{convs: map[string]model.Conversation{"s1": session}},
		submitter: &mockSubmitter{},
	}
	require.NoError(t, tw.members.Init(session, []model.Participant{
		{UserID: "owner", Role: model.Owner},
		{UserID: "host", Role: model.Member},
		{UserID: "viewer", Role: model.Member},
	}))

	tw.Workflow = NewWorkflow(tw.members, tw.sessions, tw.submitter, kv,
		func(_ string, _ []model.JoinRequest, decided *model.JoinRequest) {
			if decided != nil {
				tw.mux.Lock()
				tw.decided = append(tw.decided, *decided)
				tw.mux.Unlock()
			}
		})

	clock := time.Unix(1700000000, 0).UTC()
	tw.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	tw.newID = func() string {
		n++
		return "r" + strconv.Itoa(n)
	}
	return tw
}

func (tw *testWorkflow) request(t *testing.T, requester string) model.JoinRequest {
	session, err := tw.sessions.Get("s1")
	require.NoError(t, err)
	req, err := tw.Request(context.Background(), session, requester, "hi")
	require.NoError(t, err)
	return req
}
