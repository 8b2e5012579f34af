////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package joinrequest runs the approval workflow of live sessions that
// require the host to admit new participants.
package joinrequest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/heartline/convsync/membership"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
	"gitlab.com/heartline/convsync/wire"
)

const maxMessageLength = 500

// Workflow owns every join request known to the client. Decisions are
// serialized so that a request is decided at most once.
type Workflow struct {
	roster    Roster
	sessions  Sessions
	submitter Submitter
	kv        *versioned.KV
	onChange  ChangeCallback

	// replaced in tests
	now   func() time.Time
	newID func() string

	mux       sync.Mutex
	bySession map[string]map[string]*model.JoinRequest
	sessionOf map[string]string
}

// NewWorkflow builds a Workflow. kv may be nil to disable persistence and
// onChange may be nil.
func NewWorkflow(roster Roster, sessions Sessions, submitter Submitter,
	kv *versioned.KV, onChange ChangeCallback) *Workflow {
	if kv != nil {
		kv = kv.Prefix("joinrequest")
	}
	return &Workflow{
		roster:    roster,
		sessions:  sessions,
		submitter: submitter,
		kv:        kv,
		onChange:  onChange,
		now:       netTime.Now,
		newID:     uuid.NewString,
		bySession: make(map[string]map[string]*model.JoinRequest),
		sessionOf: make(map[string]string),
	}
}

// Load restores the requests of a session from local storage. A session with
// nothing stored is not an error.
func (w *Workflow) Load(sessionID string) error {
	if w.kv == nil {
		return nil
	}
	requests, err := loadSession(w.kv, sessionID)
	if err != nil {
		if !w.kv.Exists(err) {
			return nil
		}
		return err
	}

	w.mux.Lock()
	defer w.mux.Unlock()
	w.bySession[sessionID] = requests
	for id := range requests {
		w.sessionOf[id] = sessionID
	}
	return nil
}

// Request asks to join a live session that requires approval. It returns
// once the durable store has accepted the request.
func (w *Workflow) Request(ctx context.Context, session model.Conversation,
	requesterID, message string) (model.JoinRequest, error) {
	switch {
	case session.Kind != model.LiveSession:
		return model.JoinRequest{}, ErrNotLiveSession
	case !session.IsLive():
		return model.JoinRequest{}, ErrSessionEnded
	case !session.Settings.RequireApproval:
		return model.JoinRequest{}, ErrApprovalNotRequired
	}
	if _, ok := w.roster.Role(session.ID, requesterID); ok {
		return model.JoinRequest{}, ErrAlreadyParticipant
	}

	message = strings.TrimSpace(message)
	if len(message) > maxMessageLength {
		return model.JoinRequest{}, errors.Wrapf(model.ErrInvalid,
			"message is %d bytes, the limit is %d", len(message),
			maxMessageLength)
	}

	w.mux.Lock()
	if w.pendingFor(session.ID, requesterID) != nil {
		w.mux.Unlock()
		return model.JoinRequest{}, ErrRequestPending
	}
	w.mux.Unlock()

	req := model.JoinRequest{
		ID:            w.newID(),
		LiveSessionID: session.ID,
		RequesterID:   requesterID,
		Message:       message,
		RequestedAt:   w.now(),
		Status:        model.Pending,
	}
	submitted, err := w.submitter.SubmitJoinRequest(ctx, req)
	if err != nil {
		if model.KindOf(err) == model.KindUnknown {
			err = errors.Wrapf(model.ErrExternalService, "%v", err)
		}
		return model.JoinRequest{}, errors.WithMessagef(err,
			"failed to submit join request to %s", session.ID)
	}
	if submitted.ID != "" {
		req.ID = submitted.ID
	}
	if !submitted.RequestedAt.IsZero() {
		req.RequestedAt = submitted.RequestedAt
	}

	w.mux.Lock()
	if _, exists := w.sessionOf[req.ID]; !exists {
		w.insert(req)
	}
	pending := w.pendingLocked(session.ID)
	w.mux.Unlock()

	jww.INFO.Printf("%s requested to join %s with request %s", requesterID,
		session.ID, req.ID)
	w.notify(session.ID, pending, nil)
	return req, nil
}

// Approve admits the requester as a guest. The actor must be the session
// host, an admin or the owner. If the session is full the request stays
// pending and ErrSessionFull is returned.
func (w *Workflow) Approve(requestID, actorID string) (model.JoinRequest, error) {
	return w.decide(requestID, actorID, model.Approved)
}

// Reject declines a request. The same actors as Approve may reject.
func (w *Workflow) Reject(requestID, actorID string) (model.JoinRequest, error) {
	return w.decide(requestID, actorID, model.Rejected)
}

func (w *Workflow) decide(requestID, actorID string,
	status model.RequestStatus) (model.JoinRequest, error) {
	w.mux.Lock()
	sessionID, ok := w.sessionOf[requestID]
	if !ok {
		w.mux.Unlock()
		return model.JoinRequest{}, errors.Wrapf(ErrRequestNotFound, "%s",
			requestID)
	}
	req := w.bySession[sessionID][requestID]

	if err := checkTransition(req.Status, status); err != nil {
		w.mux.Unlock()
		return model.JoinRequest{}, errors.WithMessagef(err, "request %s",
			requestID)
	}

	session, err := w.sessions.Get(sessionID)
	if err != nil {
		w.mux.Unlock()
		return model.JoinRequest{}, err
	}
	if !w.canDecide(session, actorID) {
		w.mux.Unlock()
		return model.JoinRequest{}, ErrNotDecider
	}

	if status == model.Approved {
		if !session.IsLive() {
			w.mux.Unlock()
			return model.JoinRequest{}, ErrSessionEnded
		}
		_, err = w.roster.Admit(sessionID, req.RequesterID, model.Guest)
		if err != nil && !errors.Is(err, membership.ErrAlreadyParticipant) {
			w.mux.Unlock()
			return model.JoinRequest{}, errors.WithMessagef(err,
				"failed to admit %s", req.RequesterID)
		}
	}

	req.Status = status
	req.DecidedBy = actorID
	req.DecidedAt = w.now()
	w.persist(sessionID)
	decided := *req
	pending := w.pendingLocked(sessionID)
	w.mux.Unlock()

	jww.INFO.Printf("%s %s request %s from %s", actorID, status, requestID,
		decided.RequesterID)
	w.notify(sessionID, pending, &decided)
	return decided, nil
}

func (w *Workflow) canDecide(session model.Conversation, actorID string) bool {
	if session.IsHost(actorID) {
		return true
	}
	role, ok := w.roster.Role(session.ID, actorID)
	return ok && role.CanManage()
}

// Apply applies a broadcast request or decision. It returns the affected
// request and whether anything changed.
func (w *Workflow) Apply(e wire.Event) (model.JoinRequest, bool) {
	w.mux.Lock()

	var (
		result    model.JoinRequest
		sessionID string
		decided   *model.JoinRequest
	)
	switch e := e.(type) {
	case wire.JoinRequested:
		if _, exists := w.sessionOf[e.Request.ID]; exists || e.Request.ID == "" {
			w.mux.Unlock()
			return e.Request, false
		}
		req := e.Request
		if req.Status == 0 {
			req.Status = model.Pending
		}
		w.insert(req)
		result, sessionID = req, req.LiveSessionID
	case wire.JoinDecided:
		id, exists := w.sessionOf[e.RequestID]
		if !exists {
			w.mux.Unlock()
			jww.DEBUG.Printf("Ignoring decision for unknown request %s",
				e.RequestID)
			return model.JoinRequest{}, false
		}
		req := w.bySession[id][e.RequestID]
		if err := checkTransition(req.Status, e.Status); err != nil {
			w.mux.Unlock()
			if req.Status != e.Status {
				jww.WARN.Printf("Conflicting decision for %s: %+v",
					e.RequestID, err)
			}
			return *req, false
		}
		req.Status = e.Status
		req.DecidedBy = e.DecidedBy
		req.DecidedAt = e.DecidedAt
		w.persist(id)
		result, sessionID = *req, id
		decided = &result
	default:
		w.mux.Unlock()
		jww.WARN.Printf("Join request workflow cannot apply %s", e.Kind())
		return model.JoinRequest{}, false
	}

	pending := w.pendingLocked(sessionID)
	w.mux.Unlock()
	w.notify(sessionID, pending, decided)
	return result, true
}

// Pending returns the pending requests of a session, oldest first.
func (w *Workflow) Pending(sessionID string) []model.JoinRequest {
	w.mux.Lock()
	defer w.mux.Unlock()
	return w.pendingLocked(sessionID)
}

// Get returns a request by ID.
func (w *Workflow) Get(requestID string) (model.JoinRequest, error) {
	w.mux.Lock()
	defer w.mux.Unlock()
	sessionID, ok := w.sessionOf[requestID]
	if !ok {
		return model.JoinRequest{}, errors.Wrapf(ErrRequestNotFound, "%s",
			requestID)
	}
	return *w.bySession[sessionID][requestID], nil
}

// ForRequester returns every request a user made to a session, oldest
// first.
func (w *Workflow) ForRequester(sessionID, requesterID string) []model.JoinRequest {
	w.mux.Lock()
	defer w.mux.Unlock()
	var out []model.JoinRequest
	for _, req := range w.bySession[sessionID] {
		if req.RequesterID == requesterID {
			out = append(out, *req)
		}
	}
	sortRequests(out)
	return out
}

func (w *Workflow) insert(req model.JoinRequest) {
	requests, ok := w.bySession[req.LiveSessionID]
	if !ok {
		requests = make(map[string]*model.JoinRequest)
		w.bySession[req.LiveSessionID] = requests
	}
	requests[req.ID] = &req
	w.sessionOf[req.ID] = req.LiveSessionID
	w.persist(req.LiveSessionID)
}

func (w *Workflow) persist(sessionID string) {
	if err := saveSession(w.kv, sessionID, w.bySession[sessionID]); err != nil {
		jww.ERROR.Printf("Failed to store join requests of %s: %+v",
			sessionID, err)
	}
}

func (w *Workflow) pendingFor(sessionID, requesterID string) *model.JoinRequest {
	for _, req := range w.bySession[sessionID] {
		if req.RequesterID == requesterID && req.Status == model.Pending {
			return req
		}
	}
	return nil
}

func (w *Workflow) pendingLocked(sessionID string) []model.JoinRequest {
	out := make([]model.JoinRequest, 0)
	for _, req := range w.bySession[sessionID] {
		if req.Status == model.Pending {
			out = append(out, *req)
		}
	}
	sortRequests(out)
	return out
}

func (w *Workflow) notify(sessionID string, pending []model.JoinRequest,
	decided *model.JoinRequest) {
	if w.onChange != nil {
		w.onChange(sessionID, pending, decided)
	}
}

func sortRequests(requests []model.JoinRequest) {
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].RequestedAt.Equal(requests[j].RequestedAt) {
			return requests[i].RequestedAt.Before(requests[j].RequestedAt)
		}
		return requests[i].ID < requests[j].ID
	})
}
