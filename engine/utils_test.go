////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/call"
	"gitlab.com/heartline/convsync/event"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/transport"
	"gitlab.com/heartline/convsync/wire"
)

var epoch = time.Unix(1700000000, 0).UTC()

// mockBackend is an in-memory durable store.
type mockBackend struct {
	mux       sync.Mutex
	convs     map[string]model.Conversation
	rosters   map[string][]model.Participant
	history   map[string][]model.Message
	requests  []model.JoinRequest
	roles     []string
	roleErr   error
	rosterErr error
	next      int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		convs:   make(map[string]model.Conversation),
		rosters: make(map[string][]model.Participant),
		history: make(map[string][]model.Message),
	}
}

// seed stores a conversation whose roster holds the given users. The owner
// is the first user.
func (b *mockBackend) seed(conv model.Conversation, roles map[string]model.Role) {
	b.mux.Lock()
	defer b.mux.Unlock()
	conv.Active = true
	conv.CreatedAt = epoch
	conv.LastActivity = epoch
	b.convs[conv.ID] = conv
	roster := make([]model.Participant, 0, len(roles))
	i := 0
	for u, role := range roles {
		roster = append(roster, model.Participant{ConversationID: conv.ID,
			UserID: u, Role: role, JoinedAt: epoch.Add(time.Duration(i))})
		i++
	}
	b.rosters[conv.ID] = roster
}

func (b *mockBackend) addToRoster(conversationID, userID string, role model.Role) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.rosters[conversationID] = append(b.rosters[conversationID],
		model.Participant{ConversationID: conversationID, UserID: userID,
			Role: role, JoinedAt: epoch.Add(time.Hour)})
}

func (b *mockBackend) CreateConversation(_ context.Context,
	req CreateRequest) (model.Conversation, []model.Participant, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.next++
	conv := model.Conversation{
		ID:           "new" + strconv.Itoa(b.next),
		Kind:         req.Kind,
		Title:        req.Title,
		OwnerID:      req.OwnerID,
		Settings:     req.Settings,
		Active:       true,
		CreatedAt:    epoch,
		LastActivity: epoch,
		Live:         req.Live,
	}
	roster := []model.Participant{{ConversationID: conv.ID,
		UserID: req.OwnerID, Role: model.Owner, JoinedAt: epoch}}
	for _, u := range req.Participants {
		roster = append(roster, model.Participant{ConversationID: conv.ID,
			UserID: u, Role: model.Member, JoinedAt: epoch})
	}
	b.convs[conv.ID] = conv
	b.rosters[conv.ID] = roster
	return conv, roster, nil
}

func (b *mockBackend) Conversations(context.Context) ([]model.Conversation, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	out := make([]model.Conversation, 0, len(b.convs))
	for _, c := range b.convs {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (b *mockBackend) Roster(_ context.Context,
	conversationID string) ([]model.Participant, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	if b.rosterErr != nil {
		return nil, b.rosterErr
	}
	return append([]model.Participant(nil), b.rosters[conversationID]...), nil
}

func (b *mockBackend) History(_ context.Context, conversationID string,
	beforeID uint64, _ int) ([]model.Message, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	if beforeID != 0 {
		return nil, nil
	}
	return append([]model.Message(nil), b.history[conversationID]...), nil
}

func (b *mockBackend) SubmitJoinRequest(_ context.Context,
	req model.JoinRequest) (model.JoinRequest, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.requests = append(b.requests, req)
	return req, nil
}

func (b *mockBackend) ChangeRole(_ context.Context, conversationID, _,
	userID string, role model.Role) error {
	b.mux.Lock()
	defer b.mux.Unlock()
	if b.roleErr != nil {
		return b.roleErr
	}
	b.roles = append(b.roles, conversationID+"/"+userID+"="+role.String())
	return nil
}

// mockLink is an in-memory Link standing in for the server.
type mockLink struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mux sync.Mutex
	seq uint64
}

func newMockLink() *mockLink {
	return &mockLink{
		in:     make(chan []byte, 256),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (l *mockLink) WriteFrame(frame []byte) error {
	select {
	case <-l.closed:
		return errors.New("link closed")
	case l.out <- frame:
		return nil
	}
}

func (l *mockLink) ReadFrame() ([]byte, error) {
	select {
	case f := <-l.in:
		return f, nil
	case <-l.closed:
		return nil, errors.New("link closed")
	}
}

func (l *mockLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// push delivers an event to the engine as the server would.
func (l *mockLink) push(t *testing.T, room string, ev wire.Event) {
	l.mux.Lock()
	l.seq++
	seq := l.seq
	l.mux.Unlock()

	frame, err := wire.Encode(wire.Envelope{Room: room, Seq: seq, Event: ev})
	require.NoError(t, err)
	l.in <- frame
}

// next returns the next frame of the given kind written by the engine,
// skipping any other frames.
func (l *mockLink) next(t *testing.T, kind wire.Kind) wire.Envelope {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-l.out:
			env, err := wire.Decode(frame)
			require.NoError(t, err)
			if env.Event.Kind() == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for a %s frame", kind)
			return wire.Envelope{}
		}
	}
}

// none asserts that no frame of the given kind is written for a short time.
func (l *mockLink) none(t *testing.T, kind wire.Kind) {
	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case frame := <-l.out:
			env, err := wire.Decode(frame)
			require.NoError(t, err)
			require.NotEqual(t, kind, env.Event.Kind(), "unexpected %s", env)
		case <-deadline:
			return
		}
	}
}

type mockDialer struct {
	links chan *mockLink
}

func (d *mockDialer) Dial(ctx context.Context) (transport.Link, error) {
	select {
	case l := <-d.links:
		return l, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type mockIssuer struct {
	err error
}

func (m *mockIssuer) Issue(_ context.Context, channel string, _ uint32,
	_ call.Role) (call.Credential, error) {
	if m.err != nil {
		return call.Credential{}, m.err
	}
	return call.Credential{Token: channel, ExpiresAt: epoch.Add(time.Hour)}, nil
}

type mockMedia struct {
	mux    sync.Mutex
	joined []string
	left   int
}

func (m *mockMedia) Join(channel string, _ uint32, _ string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.joined = append(m.joined, channel)
	return nil
}

func (m *mockMedia) Leave() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.left++
	return nil
}

func (m *mockMedia) RenewToken(string) error   { return nil }
func (m *mockMedia) SetMuted(bool) error        { return nil }
func (m *mockMedia) SetVideoEnabled(bool) error { return nil }
func (m *mockMedia) SetSpeakerOn(bool) error    { return nil }
func (m *mockMedia) SwitchCamera() error        { return nil }

// harness is a started engine for one local user connected to a mockLink.
type harness struct {
	*Engine
	backend *mockBackend
	dialer  *mockDialer
	link    *mockLink
	media   *mockMedia

	mux     sync.Mutex
	updates []event.Update
}

func testEngineParams() Params {
	p := GetDefaultParams()
	p.Transport.SendRate = 10000
	p.Transport.ReconnectInitialInterval = time.Millisecond
	p.Transport.ReconnectMaxInterval = 10 * time.Millisecond
	return p
}

func newHarness(t *testing.T, self string, backend *mockBackend) *harness {
	h := &harness{
		backend: backend,
		dialer:  &mockDialer{links: make(chan *mockLink, 4)},
		link:    newMockLink(),
		media:   &mockMedia{},
	}
	h.Engine = NewEngine(self, Dependencies{
		Backend: backend,
		Dialer:  h.dialer,
		Issuer:  &mockIssuer{},
		Media:   h.media,
	}, testEngineParams())

	require.NoError(t, h.Subscribe("test", func(u event.Update) {
		h.mux.Lock()
		h.updates = append(h.updates, u)
		h.mux.Unlock()
	}))
	require.NoError(t, h.Start())
	t.Cleanup(func() { _ = h.Close() })

	h.dialer.links <- h.link
	require.Eventually(t, h.IsConnected, time.Second, time.Millisecond)
	require.NoError(t, h.SyncConversations(context.Background()))
	return h
}

// lastMembership returns the newest membership update for a conversation.
func (h *harness) lastMembership(conversationID string) (event.MembershipChanged, bool) {
	h.mux.Lock()
	defer h.mux.Unlock()
	for i := len(h.updates) - 1; i >= 0; i-- {
		if u, ok := h.updates[i].(event.MembershipChanged); ok &&
			u.ConversationID == conversationID {
			return u, true
		}
	}
	return event.MembershipChanged{}, false
}

func (h *harness) lastCall() (event.CallStateChanged, bool) {
	h.mux.Lock()
	defer h.mux.Unlock()
	for i := len(h.updates) - 1; i >= 0; i-- {
		if u, ok := h.updates[i].(event.CallStateChanged); ok {
			return u, true
		}
	}
	return event.CallStateChanged{}, false
}

func eventually(t *testing.T, cond func() bool) {
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

// group is a conversation owned by "owner" with "admin", "me" and "bob".
func group(capacity int) (model.Conversation, map[string]model.Role) {
	return model.Conversation{
			ID:       "g1",
			Kind:     model.Group,
			Title:    "friends",
			OwnerID:  "owner",
			Settings: model.Settings{MaxParticipants: capacity, VoiceEnabled: true},
		}, map[string]model.Role{
			"owner": model.Owner,
			"admin": model.Admin,
			"me":    model.Member,
			"bob":   model.Member,
		}
}

// liveSession is hosted by "host", owned by "owner" and requires approval.
func liveSession(capacity int) (model.Conversation, map[string]model.Role) {
	return model.Conversation{
			ID:      "s1",
			Kind:    model.LiveSession,
			Title:   "speed dating",
			OwnerID: "owner",
			Settings: model.Settings{MaxParticipants: capacity,
				RequireApproval: true, VideoEnabled: true},
			Live: &model.Live{HostID: "host", Status: model.LiveActive,
				StartsAt: epoch},
		}, map[string]model.Role{
			"owner": model.Owner,
			"host":  model.Member,
		}
}
