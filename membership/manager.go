////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package membership is the authoritative participant roster of every
// conversation and authorizes privileged roster changes.
package membership

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
	"gitlab.com/heartline/convsync/wire"
)

// Manager is the sole writer of participant and role state.
type Manager struct {
	self string
	kv   *versioned.KV

	// now is replaced in tests
	now func() time.Time

	mux     sync.RWMutex
	rosters map[string]*roster
}

// NewManager creates a Manager for the local user self. kv may be nil to
// disable persistence.
func NewManager(self string, kv *versioned.KV) *Manager {
	if kv != nil {
		kv = kv.Prefix("membership")
	}
	return &Manager{
		self:    self,
		kv:      kv,
		now:     netTime.Now,
		rosters: make(map[string]*roster),
	}
}

// Init replaces the roster of a conversation with the one from the durable
// store. The conversation owner always holds the owner role and no one else
// does.
func (m *Manager) Init(conv model.Conversation,
	participants []model.Participant) error {
	r := newRoster(conv.OwnerID, conv.Settings.MaxParticipants)
	for i := range participants {
		p := participants[i]
		if !p.Role.Valid() {
			jww.WARN.Printf("Skipping %s in %s with invalid role %d",
				p.UserID, conv.ID, p.Role)
			continue
		}
		p.ConversationID = conv.ID
		switch {
		case p.UserID == conv.OwnerID:
			p.Role = model.Owner
		case p.Role == model.Owner:
			jww.WARN.Printf("Demoting second owner %s in %s", p.UserID,
				conv.ID)
			p.Role = model.Admin
		}
		r.Participants[p.UserID] = &p
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	m.rosters[conv.ID] = r
	return m.save(conv.ID, r)
}

// Load restores a roster from local storage.
func (m *Manager) Load(conversationID string) error {
	if m.kv == nil {
		return ErrUnknownConversation
	}
	r, err := loadRoster(m.kv, conversationID)
	if err != nil {
		if !m.kv.Exists(err) {
			return errors.Wrapf(ErrUnknownConversation, "%s", conversationID)
		}
		return err
	}

	m.mux.Lock()
	m.rosters[conversationID] = r
	m.mux.Unlock()
	return nil
}

// Forget drops the in-memory roster of a conversation.
func (m *Manager) Forget(conversationID string) {
	m.mux.Lock()
	delete(m.rosters, conversationID)
	m.mux.Unlock()
}

func (m *Manager) roster(conversationID string) (*roster, error) {
	r, ok := m.rosters[conversationID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConversation, "%s", conversationID)
	}
	return r, nil
}

func (m *Manager) save(conversationID string, r *roster) error {
	if err := saveRoster(m.kv, conversationID, r); err != nil {
		jww.ERROR.Printf("Failed to store roster of %s: %+v",
			conversationID, err)
		return err
	}
	return nil
}

// authorize checks that the actor may manage the roster.
func authorize(r *roster, actorID string) error {
	actor, ok := r.Participants[actorID]
	if !ok || !actor.Role.CanManage() {
		return ErrNotManager
	}
	return nil
}

// Add adds a participant. The actor must be an admin or the owner, the role
// cannot be owner and the conversation must have room.
func (m *Manager) Add(conversationID, actorID, userID string,
	role model.Role) (model.Participant, error) {
	if !role.Valid() {
		return model.Participant{}, errors.Wrapf(model.ErrInvalid,
			"invalid role %d", role)
	} else if role == model.Owner {
		return model.Participant{}, ErrOwnershipTransfer
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	r, err := m.roster(conversationID)
	if err != nil {
		return model.Participant{}, err
	}
	if err = authorize(r, actorID); err != nil {
		return model.Participant{}, err
	}
	return m.admit(conversationID, r, userID, role)
}

// Admit adds a participant on behalf of an already authorized decision, such
// as an approved join request. Capacity is still enforced.
func (m *Manager) Admit(conversationID, userID string,
	role model.Role) (model.Participant, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	r, err := m.roster(conversationID)
	if err != nil {
		return model.Participant{}, err
	}
	return m.admit(conversationID, r, userID, role)
}

func (m *Manager) admit(conversationID string, r *roster, userID string,
	role model.Role) (model.Participant, error) {
	if _, exists := r.Participants[userID]; exists {
		return model.Participant{}, errors.Wrapf(ErrAlreadyParticipant,
			"%s in %s", userID, conversationID)
	} else if r.full() {
		return model.Participant{}, errors.Wrapf(model.ErrSessionFull,
			"%d of %d in %s", len(r.Participants), r.Capacity,
			conversationID)
	}

	p := &model.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		JoinedAt:       m.now(),
	}
	r.Participants[userID] = p
	if err := m.save(conversationID, r); err != nil {
		delete(r.Participants, userID)
		return model.Participant{}, err
	}
	jww.INFO.Printf("Added %s to %s as %s", userID, conversationID, role)
	return *p, nil
}

// Remove removes a participant. Anyone but the owner may remove themselves;
// removing someone else requires an admin or the owner, and the owner can
// never be removed.
func (m *Manager) Remove(conversationID, actorID, userID string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	r, err := m.roster(conversationID)
	if err != nil {
		return err
	}

	target, ok := r.Participants[userID]
	if actorID == userID {
		if !ok {
			return errors.Wrapf(ErrNotParticipant, "%s in %s", userID,
				conversationID)
		} else if target.Role == model.Owner {
			return ErrOwnerCannotLeave
		}
	} else {
		if err = authorize(r, actorID); err != nil {
			return err
		} else if !ok {
			return errors.Wrapf(ErrNotParticipant, "%s in %s", userID,
				conversationID)
		} else if target.Role == model.Owner {
			return model.ErrOwnerImmutable
		}
	}

	delete(r.Participants, userID)
	if userID == m.self {
		r.RemovedSelf = true
	}
	if err = m.save(conversationID, r); err != nil {
		r.Participants[userID] = target
		return err
	}
	jww.INFO.Printf("%s removed %s from %s", actorID, userID, conversationID)
	return nil
}

// ChangeRole changes a participant's role. The actor must be an admin or the
// owner. The owner's role cannot change and no one can be made owner.
func (m *Manager) ChangeRole(conversationID, actorID, userID string,
	role model.Role) error {
	if !role.Valid() {
		return errors.Wrapf(model.ErrInvalid, "invalid role %d", role)
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	r, err := m.roster(conversationID)
	if err != nil {
		return err
	}
	if err = authorize(r, actorID); err != nil {
		return err
	}

	target, ok := r.Participants[userID]
	switch {
	case !ok:
		return errors.Wrapf(ErrNotParticipant, "%s in %s", userID,
			conversationID)
	case target.Role == model.Owner:
		return model.ErrOwnerImmutable
	case role == model.Owner:
		return ErrOwnershipTransfer
	case target.Role == role:
		return nil
	}

	old := target.Role
	target.Role = role
	if err = m.save(conversationID, r); err != nil {
		target.Role = old
		return err
	}
	jww.INFO.Printf("%s changed role of %s in %s from %s to %s", actorID,
		userID, conversationID, old, role)
	return nil
}

// SetCapacity changes the maximum number of participants. Zero removes the
// bound. The capacity cannot drop below the current count.
func (m *Manager) SetCapacity(conversationID string, capacity int) error {
	if capacity < 0 {
		return errors.Wrapf(model.ErrInvalid, "capacity %d", capacity)
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	r, err := m.roster(conversationID)
	if err != nil {
		return err
	}
	if capacity > 0 && capacity < len(r.Participants) {
		return errors.Wrapf(ErrBelowCurrent, "%d < %d", capacity,
			len(r.Participants))
	}
	r.Capacity = capacity
	return m.save(conversationID, r)
}

// Apply applies a broadcast roster change. Applying the same change twice
// has no further effect. It returns removedSelf when the change removed the
// local user, which ends the local user's use of the conversation.
func (m *Manager) Apply(conversationID string,
	e wire.MembershipChanged) (changed, removedSelf bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	r, err := m.roster(conversationID)
	if err != nil {
		jww.DEBUG.Printf("Ignoring %s for %s: %+v", e.Action,
			conversationID, err)
		return false, false
	}

	p, exists := r.Participants[e.UserID]
	switch e.Action {
	case wire.MemberAdded:
		if exists {
			return false, false
		}
		role := e.Role
		if !role.Valid() || role == model.Owner {
			role = model.Member
		}
		at := e.At
		if at.IsZero() {
			at = m.now()
		}
		r.Participants[e.UserID] = &model.Participant{
			ConversationID: conversationID,
			UserID:         e.UserID,
			Role:           role,
			JoinedAt:       at,
		}
		if e.UserID == m.self {
			r.RemovedSelf = false
		}
	case wire.MemberRemoved:
		if !exists {
			return false, e.UserID == m.self && r.RemovedSelf
		}
		delete(r.Participants, e.UserID)
		if e.UserID == m.self {
			r.RemovedSelf = true
			removedSelf = true
		}
	case wire.MemberRoleChanged:
		if !exists || p.Role == e.Role || !e.Role.Valid() ||
			p.Role == model.Owner || e.Role == model.Owner {
			return false, false
		}
		p.Role = e.Role
	default:
		jww.WARN.Printf("Unknown membership action %d in %s", e.Action,
			conversationID)
		return false, false
	}

	if err = m.save(conversationID, r); err != nil {
		jww.WARN.Printf("Roster of %s changed but was not stored",
			conversationID)
	}
	return true, removedSelf
}

// SetOnline mirrors the online set of a room onto its participants. It
// returns true if any flag changed.
func (m *Manager) SetOnline(conversationID string, online []string) bool {
	set := make(map[string]struct{}, len(online))
	for _, u := range online {
		set[u] = struct{}{}
	}

	m.mux.Lock()
	defer m.mux.Unlock()
	r, ok := m.rosters[conversationID]
	if !ok {
		return false
	}
	changed := false
	for id, p := range r.Participants {
		_, on := set[id]
		if p.Online != on {
			p.Online = on
			changed = true
		}
	}
	return changed
}

// Participants returns the roster ordered by join time.
func (m *Manager) Participants(conversationID string) []model.Participant {
	m.mux.RLock()
	defer m.mux.RUnlock()
	r, ok := m.rosters[conversationID]
	if !ok {
		return []model.Participant{}
	}
	return r.list()
}

// Role returns the role of a participant.
func (m *Manager) Role(conversationID, userID string) (model.Role, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	r, ok := m.rosters[conversationID]
	if !ok {
		return 0, false
	}
	p, ok := r.Participants[userID]
	if !ok {
		return 0, false
	}
	return p.Role, true
}

// IsParticipant reports whether the user is in the roster.
func (m *Manager) IsParticipant(conversationID, userID string) bool {
	_, ok := m.Role(conversationID, userID)
	return ok
}

// Count returns the number of participants and the capacity.
func (m *Manager) Count(conversationID string) (current, capacity int) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	r, ok := m.rosters[conversationID]
	if !ok {
		return 0, 0
	}
	return len(r.Participants), r.Capacity
}

// RemovedSelf reports whether the local user was removed.
func (m *Manager) RemovedSelf(conversationID string) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	r, ok := m.rosters[conversationID]
	return ok && r.RemovedSelf
}
