////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"time"

	"gitlab.com/heartline/convsync/model"
)

// history is the ordered message list of one conversation. Entries are in
// display order, oldest first. Unconfirmed entries are appended at the end and
// confirmed entries are inserted by server ID ahead of them.
type history struct {
	entries []*model.Message

	byServer map[uint64]*model.Message

	// Unconfirmed entries, sending or failed
	byTemp map[string]*model.Message

	// Temp IDs already matched to a server ID
	reconciled map[string]uint64

	// Failed entries replaced by a resend, kept so a late ack can still
	// be recorded
	retired map[string]*model.Message

	// When each unconfirmed entry was handed to the transport
	dispatched map[string]time.Time

	// Server IDs deleted for this user only; never shown again
	hidden map[uint64]struct{}

	// Server IDs deleted for everyone before the message was seen
	tombstoned map[uint64]struct{}
}

func newHistory() *history {
	return &history{
		byServer:   make(map[uint64]*model.Message),
		byTemp:     make(map[string]*model.Message),
		reconciled: make(map[string]uint64),
		retired:    make(map[string]*model.Message),
		dispatched: make(map[string]time.Time),
		hidden:     make(map[uint64]struct{}),
		tombstoned: make(map[uint64]struct{}),
	}
}

// appendPending adds an unconfirmed entry at the end.
func (h *history) appendPending(m *model.Message) {
	h.entries = append(h.entries, m)
	h.byTemp[m.TempID] = m
}

// known reports whether a server ID is present or reserved.
func (h *history) known(id uint64) bool {
	if _, exists := h.byServer[id]; exists {
		return true
	}
	_, hidden := h.hidden[id]
	return hidden
}

// insertConfirmed inserts a confirmed message ordered by server ID, ahead of
// any unconfirmed tail. It returns false if the ID is already known.
func (h *history) insertConfirmed(m *model.Message) bool {
	if h.known(m.ID) {
		return false
	}
	if _, dead := h.tombstoned[m.ID]; dead {
		tombstone(m)
		delete(h.tombstoned, m.ID)
	}

	// Walk back past unconfirmed entries and newer confirmed ones
	i := len(h.entries)
	for i > 0 {
		prev := h.entries[i-1]
		if prev.Confirmed() && prev.ID < m.ID {
			break
		}
		i--
	}

	h.entries = append(h.entries, nil)
	copy(h.entries[i+1:], h.entries[i:])
	h.entries[i] = m
	h.byServer[m.ID] = m
	return true
}

// reconcile assigns the server ID to the unconfirmed entry with the temp ID,
// in place. If the server ID is already present, from a history page that
// raced the ack, the unconfirmed entry is dropped instead. It returns false
// if there is no unconfirmed entry for the temp ID.
func (h *history) reconcile(tempID string, serverID uint64,
	createdAt time.Time) bool {
	m, pending := h.byTemp[tempID]
	if !pending {
		return false
	}
	delete(h.byTemp, tempID)
	delete(h.dispatched, tempID)
	h.reconciled[tempID] = serverID

	if h.known(serverID) {
		h.remove(m)
		return true
	}

	m.ID = serverID
	m.Status = model.Sent
	if !createdAt.IsZero() {
		m.CreatedAt = createdAt
	}
	if _, dead := h.tombstoned[serverID]; dead {
		tombstone(m)
		delete(h.tombstoned, serverID)
	}
	h.byServer[serverID] = m
	return true
}

// remove drops an entry from the display list.
func (h *history) remove(m *model.Message) {
	for i, e := range h.entries {
		if e == m {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

// visible returns the entry with the server ID unless it was deleted.
func (h *history) visible(serverID uint64) (*model.Message, bool) {
	m, ok := h.byServer[serverID]
	if !ok || m.Deleted {
		return nil, false
	}
	return m, true
}

// hide removes a confirmed message for this user and reserves its ID.
func (h *history) hide(m *model.Message) {
	h.remove(m)
	delete(h.byServer, m.ID)
	h.hidden[m.ID] = struct{}{}
}

func (h *history) snapshot() []model.Message {
	out := make([]model.Message, len(h.entries))
	for i, m := range h.entries {
		out[i] = m.Clone()
	}
	return out
}

// tombstone clears the content of a message deleted for everyone. The entry
// and its ID remain.
func tombstone(m *model.Message) {
	m.Deleted = true
	m.Payload = model.System{Code: deletedCode}
	m.Reactions = nil
}

const deletedCode = "deleted"
