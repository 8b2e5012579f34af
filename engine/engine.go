////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package engine ties the transport, presence, ledger, membership, join
// request, call and directory components into one coordination engine for
// the conversations of a single local user.
package engine

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/call"
	"gitlab.com/heartline/convsync/directory"
	"gitlab.com/heartline/convsync/event"
	"gitlab.com/heartline/convsync/joinrequest"
	"gitlab.com/heartline/convsync/ledger"
	"gitlab.com/heartline/convsync/membership"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/presence"
	"gitlab.com/heartline/convsync/stoppable"
	"gitlab.com/heartline/convsync/transport"
)

// Engine is the entry point of the UI layer. Every intent names the
// conversation it acts on; state changes are observed through Subscribe.
type Engine struct {
	self    string
	params  Params
	backend Backend

	session   *transport.Session
	events    *event.Manager
	directory *directory.Directory
	members   *membership.Manager
	requests  *joinrequest.Workflow
	ledger    *ledger.Ledger
	presence  *presence.Tracker
	call      *call.Coordinator

	// callMux serializes StartCall
	callMux sync.Mutex

	mux      sync.Mutex
	rooms    map[string]*room
	callConv string
	started  bool
	stop     *stoppable.Multi
}

// room is the engine's state for one open conversation. Its lock serializes
// intents and room events for the conversation.
type room struct {
	mux      sync.Mutex
	id       string
	listener transport.ListenerID

	// observer rooms are joined by a requester waiting for a decision
	observer bool
	removed  bool
}

// NewEngine builds an engine for the local user self. Nothing runs until
// Start is called.
func NewEngine(self string, deps Dependencies, params Params) *Engine {
	e := &Engine{
		self:    self,
		params:  params,
		backend: deps.Backend,
		session: transport.NewSession(deps.Dialer, params.Transport),
		events:  event.NewManager(params.EventQueueSize),
		rooms:   make(map[string]*room),
		stop:    stoppable.NewMulti("Engine"),
	}

	e.directory = directory.NewDirectory(deps.Backend, deps.KV,
		func(c model.Conversation) {
			e.events.Report(event.ConversationChanged{Conv: c})
		})
	e.members = membership.NewManager(self, deps.KV)
	e.requests = joinrequest.NewWorkflow(e.members, e.directory,
		deps.Backend, deps.KV, func(sessionID string,
			pending []model.JoinRequest, decided *model.JoinRequest) {
			e.events.Report(event.JoinRequestsChanged{
				ConversationID: sessionID,
				Pending:        pending,
				Decided:        decided,
			})
		})
	e.ledger = ledger.NewLedger(self, e.session, deps.Backend, deps.Uploader,
		deps.KV, params.Ledger, func(conversationID string,
			messages []model.Message) {
			e.events.Report(event.MessagesChanged{
				ConversationID: conversationID,
				Messages:       messages,
			})
		})
	e.presence = presence.NewTracker(self, e.session, params.Presence,
		presence.Callbacks{
			Typing: func(roomID string, users []string) {
				e.events.Report(event.TypingChanged{
					ConversationID: roomID,
					Users:          users,
				})
			},
			Presence: func(roomID string, online []string) {
				if e.members.SetOnline(roomID, online) {
					e.reportMembership(roomID)
				}
			},
		})
	if deps.Issuer != nil && deps.Media != nil {
		e.call = call.NewCoordinator(deps.Issuer, deps.Media, params.Call,
			e.reportCall)
	}

	e.session.OnReconnect(e.onReconnect)
	return e
}

// Start restores local state and launches the transport and the background
// threads.
func (e *Engine) Start() error {
	e.mux.Lock()
	defer e.mux.Unlock()
	if e.started {
		return ErrStarted
	}

	if err := e.ledger.Init(); err != nil {
		return errors.WithMessage(err, "failed to restore unsent messages")
	}
	if err := e.directory.Load(); err != nil {
		return errors.WithMessage(err, "failed to restore conversations")
	}

	e.stop.Add(e.events.Start())
	if err := e.session.Start(); err != nil {
		return errors.WithMessage(err, "failed to start transport")
	}
	e.stop.Add(e.session.Stoppable())
	e.stop.Add(e.presence.Start())
	e.stop.Add(e.ledger.Start())
	e.started = true

	jww.INFO.Printf("Engine started for %s", e.self)
	return nil
}

// Close ends any call, leaves every room and stops all threads.
func (e *Engine) Close() error {
	if e.call != nil {
		e.call.End(call.ReasonHangUp)
	}
	if err := e.session.Close(); err != nil {
		jww.WARN.Printf("Error closing transport: %+v", err)
	}
	err := e.stop.Close()
	jww.INFO.Printf("Engine for %s closed", e.self)
	return err
}

// Subscribe registers a named callback for every update.
func (e *Engine) Subscribe(name string, cb event.Callback) error {
	return e.events.RegisterCallback(name, cb)
}

// Unsubscribe removes a callback registered with Subscribe.
func (e *Engine) Unsubscribe(name string) {
	e.events.UnregisterCallback(name)
}

// IsConnected reports whether the real-time transport is up.
func (e *Engine) IsConnected() bool {
	return e.session.IsConnected()
}

// guard locks the room of an open conversation the local user still
// participates in. The caller must unlock the returned room.
func (e *Engine) guard(conversationID string) (*room, error) {
	e.mux.Lock()
	r, ok := e.rooms[conversationID]
	e.mux.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotOpen, "%s", conversationID)
	}

	r.mux.Lock()
	switch {
	case r.removed || e.members.RemovedSelf(conversationID):
		r.mux.Unlock()
		return nil, errors.Wrapf(model.ErrRemoved, "%s", conversationID)
	case r.observer:
		r.mux.Unlock()
		return nil, errors.Wrapf(ErrNotParticipant, "%s", conversationID)
	}
	return r, nil
}

func (e *Engine) room(conversationID string) *room {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.rooms[conversationID]
}

// onReconnect drops server-owned ephemeral state of every re-joined room.
func (e *Engine) onReconnect(rooms []string) {
	for _, id := range rooms {
		e.presence.ResetRoom(id)
	}
	jww.INFO.Printf("Reconnected to %d rooms", len(rooms))
}

func (e *Engine) reportMembership(conversationID string) {
	e.events.Report(event.MembershipChanged{
		ConversationID: conversationID,
		Participants:   e.members.Participants(conversationID),
		RemovedSelf:    e.members.RemovedSelf(conversationID),
	})
}

func (e *Engine) reportCall(s call.Snapshot) {
	e.mux.Lock()
	conversationID := e.callConv
	e.mux.Unlock()
	e.events.Report(event.CallStateChanged{
		ConversationID: conversationID,
		Call:           s,
	})
}

// requireConnected fails fast for intents whose local effect must be
// broadcast.
func (e *Engine) requireConnected() error {
	if !e.session.IsConnected() {
		return transport.ErrDisconnected
	}
	return nil
}
