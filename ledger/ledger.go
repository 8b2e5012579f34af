////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package ledger keeps the ordered message history of every conversation and
// reconciles optimistic local sends with the server's acknowledgements.
//
// A sent message is inserted immediately with status sending and a fresh temp
// ID. When an ack or broadcast carrying that temp ID arrives, the entry is
// given its server ID in place; it is never appended a second time.
package ledger

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/stoppable"
	"gitlab.com/heartline/convsync/storage/versioned"
	"gitlab.com/heartline/convsync/wire"
)

// Ledger is the sole writer of message content and status.
type Ledger struct {
	self     string
	sender   Sender
	source   HistorySource
	uploader Uploader
	params   Params
	onChange ChangeCallback

	// now is replaced in tests
	now func() time.Time

	mux     sync.Mutex
	convs   map[string]*history
	unsent  *unsentStore
	newTemp func() string
}

// NewLedger creates a Ledger for the local user self. kv may be nil to
// disable persistence of unconfirmed sends and uploader may be nil if media
// is never sent.
func NewLedger(self string, sender Sender, source HistorySource,
	uploader Uploader, kv *versioned.KV, params Params,
	onChange ChangeCallback) *Ledger {
	if kv != nil {
		kv = kv.Prefix("ledger")
	}
	return &Ledger{
		self:     self,
		sender:   sender,
		source:   source,
		uploader: uploader,
		params:   params,
		onChange: onChange,
		now:      netTime.Now,
		convs:    make(map[string]*history),
		unsent:   newUnsentStore(kv),
		newTemp:  uuid.NewString,
	}
}

// Init restores unconfirmed messages from storage. Anything that was still
// sending when the client stopped is restored as failed so the user can
// resend it.
func (l *Ledger) Init() error {
	l.mux.Lock()
	if err := l.unsent.load(); err != nil {
		l.mux.Unlock()
		return err
	}

	restored := make([]model.Message, 0, len(l.unsent.messages))
	for _, m := range l.unsent.messages {
		restored = append(restored, m)
	}
	sort.Slice(restored, func(i, j int) bool {
		return restored[i].CreatedAt.Before(restored[j].CreatedAt)
	})

	changed := make(map[string]struct{})
	for i := range restored {
		m := restored[i]
		if m.Status == model.Sending {
			jww.INFO.Printf("Marking send %s in %s as failed after "+
				"restart", m.TempID, m.ConversationID)
			m.Status = model.Failed
			l.unsent.messages[m.TempID] = m
		}
		l.conv(m.ConversationID).appendPending(&m)
		changed[m.ConversationID] = struct{}{}
	}
	if len(restored) > 0 {
		l.unsent.save()
	}
	snaps := l.snapshots(changed)
	l.mux.Unlock()

	l.notify(snaps)
	return nil
}

// conv returns the history of a conversation, creating it if needed. The
// caller must hold the lock.
func (l *Ledger) conv(conversationID string) *history {
	h, ok := l.convs[conversationID]
	if !ok {
		h = newHistory()
		l.convs[conversationID] = h
	}
	return h
}

// Messages returns the ordered messages of a conversation.
func (l *Ledger) Messages(conversationID string) []model.Message {
	l.mux.Lock()
	defer l.mux.Unlock()
	h, ok := l.convs[conversationID]
	if !ok {
		return []model.Message{}
	}
	return h.snapshot()
}

// Get returns the confirmed message with the server ID.
func (l *Ledger) Get(conversationID string, serverID uint64) (model.Message,
	error) {
	l.mux.Lock()
	defer l.mux.Unlock()
	m, ok := l.conv(conversationID).byServer[serverID]
	if !ok {
		return model.Message{}, errors.Wrapf(ErrMessageNotFound,
			"id %d in %s", serverID, conversationID)
	}
	return m.Clone(), nil
}

// Unconfirmed returns the sending and failed messages of a conversation.
func (l *Ledger) Unconfirmed(conversationID string) []model.Message {
	l.mux.Lock()
	defer l.mux.Unlock()
	var out []model.Message
	for _, m := range l.conv(conversationID).entries {
		if !m.Confirmed() {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Send inserts a message with status sending at the end of the conversation
// and dispatches it. The returned message carries the temp ID. A transport
// failure leaves the message sending until it expires.
func (l *Ledger) Send(conversationID, senderID string, payload model.Payload,
	replyTo uint64) (model.Message, error) {
	if err := validatePayload(payload); err != nil {
		return model.Message{}, err
	}

	l.mux.Lock()
	m := l.insertPending(conversationID, senderID, payload, replyTo)
	posted := l.markDispatched(m)
	out := m.Clone()
	snap := l.snapshot(conversationID)
	l.mux.Unlock()

	// m may be reconciled by an ack as soon as the lock is released
	l.notify(snap)
	l.dispatch(conversationID, posted)
	return out, nil
}

// SendMedia inserts a media message referencing the local file, uploads the
// file in the background, then dispatches the message with the durable URL.
// A failed upload marks the message failed.
func (l *Ledger) SendMedia(ctx context.Context, conversationID,
	senderID, localPath string, kind model.MessageType, caption string,
	replyTo uint64) (model.Message, error) {
	if l.uploader == nil {
		return model.Message{}, ErrNoUploader
	}
	payload, err := mediaPayload(localPath, kind, caption)
	if err != nil {
		return model.Message{}, err
	}

	l.mux.Lock()
	m := l.insertPending(conversationID, senderID, payload, replyTo)
	out := m.Clone()
	snap := l.snapshot(conversationID)
	l.mux.Unlock()
	l.notify(snap)

	go l.upload(ctx, conversationID, out.TempID, payload)
	return out, nil
}

func (l *Ledger) upload(ctx context.Context, conversationID, tempID string,
	payload model.Payload) {
	local, _ := model.MediaOf(payload)
	media, err := l.uploader.Upload(ctx, local.LocalPath, payload.Type())

	l.mux.Lock()
	h := l.conv(conversationID)
	m, pending := h.byTemp[tempID]
	if !pending {
		l.mux.Unlock()
		jww.DEBUG.Printf("Upload for %s finished after it was retired",
			tempID)
		return
	}

	var posted *wire.MessagePosted
	if err != nil {
		jww.WARN.Printf("Upload of %s for %s failed: %+v",
			local.LocalPath, tempID, err)
		m.Status = model.Failed
	} else {
		media.LocalPath = local.LocalPath
		m.Payload = model.WithMedia(m.Payload, media)
		posted = l.markDispatched(m)
	}
	l.unsent.put(*m)
	snap := l.snapshot(conversationID)
	l.mux.Unlock()

	l.notify(snap)
	if posted != nil {
		l.dispatch(conversationID, posted)
	}
}

// insertPending creates and stores a sending entry. The caller must hold the
// lock.
func (l *Ledger) insertPending(conversationID, senderID string,
	payload model.Payload, replyTo uint64) *model.Message {
	m := &model.Message{
		ConversationID: conversationID,
		TempID:         l.newTemp(),
		SenderID:       senderID,
		Payload:        payload,
		ReplyTo:        replyTo,
		Status:         model.Sending,
		CreatedAt:      l.now(),
	}
	l.conv(conversationID).appendPending(m)
	l.unsent.put(*m)
	jww.DEBUG.Printf("Pending send %s in %s: %s", m.TempID, conversationID,
		payload.Type())
	return m
}

// markDispatched starts the send timeout for an entry and returns the intent
// to send. The caller must hold the lock.
func (l *Ledger) markDispatched(m *model.Message) *wire.MessagePosted {
	l.conv(m.ConversationID).dispatched[m.TempID] = l.now()
	return &wire.MessagePosted{
		TempID:    m.TempID,
		SenderID:  m.SenderID,
		Payload:   m.Payload,
		ReplyTo:   m.ReplyTo,
		CreatedAt: m.CreatedAt,
	}
}

func (l *Ledger) dispatch(conversationID string, posted *wire.MessagePosted) {
	if err := l.sender.Send(conversationID, *posted); err != nil {
		jww.WARN.Printf("Send %s in %s not delivered to the transport, "+
			"leaving it pending: %+v", posted.TempID, conversationID, err)
	}
}

// ApplyMessage applies a message broadcast. If it carries the temp ID of a
// local unconfirmed entry, that entry is confirmed in place; otherwise the
// message is inserted by server ID. Duplicate server IDs are ignored.
func (l *Ledger) ApplyMessage(conversationID string, e wire.MessagePosted) {
	if e.ServerID == 0 {
		jww.WARN.Printf("Ignoring broadcast %s in %s without a server ID",
			e.TempID, conversationID)
		return
	}

	l.mux.Lock()
	changed := l.applyConfirmation(conversationID, e.TempID, e.ServerID,
		e.CreatedAt)
	if !changed {
		h := l.conv(conversationID)
		if _, done := h.reconciled[e.TempID]; !done {
			changed = h.insertConfirmed(&model.Message{
				ConversationID: conversationID,
				ID:             e.ServerID,
				TempID:         e.TempID,
				SenderID:       e.SenderID,
				Payload:        e.Payload,
				ReplyTo:        e.ReplyTo,
				Status:         model.Sent,
				CreatedAt:      e.CreatedAt,
			})
		}
	}
	snap := l.snapshotIf(changed, conversationID)
	l.mux.Unlock()

	l.notify(snap)
}

// ApplyAck confirms a local send.
func (l *Ledger) ApplyAck(conversationID string, e wire.MessageAck) {
	l.mux.Lock()
	changed := l.applyConfirmation(conversationID, e.TempID, e.ServerID,
		e.CreatedAt)
	snap := l.snapshotIf(changed, conversationID)
	l.mux.Unlock()

	l.notify(snap)
}

// applyConfirmation reconciles a temp ID at most once. It returns true if the
// ledger changed. The caller must hold the lock.
func (l *Ledger) applyConfirmation(conversationID, tempID string,
	serverID uint64, createdAt time.Time) bool {
	if tempID == "" {
		return false
	}
	h := l.conv(conversationID)

	if h.reconcile(tempID, serverID, createdAt) {
		l.unsent.delete(tempID)
		jww.DEBUG.Printf("Reconciled %s in %s as %d", tempID,
			conversationID, serverID)
		return true
	}

	// A resent message's original send was accepted after all
	if m, retired := h.retired[tempID]; retired {
		delete(h.retired, tempID)
		h.reconciled[tempID] = serverID
		m.ID = serverID
		m.Status = model.Sent
		if !createdAt.IsZero() {
			m.CreatedAt = createdAt
		}
		return h.insertConfirmed(m)
	}
	return false
}

// Resend retries a failed message under a new temp ID. The failed entry is
// retired and the new entry is appended at the end.
func (l *Ledger) Resend(ctx context.Context, conversationID,
	tempID string) (model.Message, error) {
	l.mux.Lock()
	h := l.conv(conversationID)
	old, exists := h.byTemp[tempID]
	if !exists {
		l.mux.Unlock()
		return model.Message{}, errors.Wrapf(ErrMessageNotFound,
			"no unconfirmed message %s in %s", tempID, conversationID)
	} else if old.Status != model.Failed {
		l.mux.Unlock()
		return model.Message{}, errors.Wrapf(ErrNotFailed,
			"message %s is %s", tempID, old.Status)
	}

	h.remove(old)
	delete(h.byTemp, tempID)
	delete(h.dispatched, tempID)
	h.retired[tempID] = old
	l.unsent.delete(tempID)

	m := l.insertPending(conversationID, old.SenderID, old.Payload,
		old.ReplyTo)
	media, isMedia := model.MediaOf(m.Payload)
	needsUpload := isMedia && !media.Uploaded()
	var posted *wire.MessagePosted
	if !needsUpload {
		posted = l.markDispatched(m)
	}
	out := m.Clone()
	snap := l.snapshot(conversationID)
	l.mux.Unlock()

	jww.INFO.Printf("Resending %s in %s as %s", tempID, conversationID,
		out.TempID)
	l.notify(snap)
	if needsUpload {
		if l.uploader == nil {
			l.failPending(conversationID, out.TempID)
			out.Status = model.Failed
			return out, ErrNoUploader
		}
		go l.upload(ctx, conversationID, out.TempID, out.Payload)
	} else {
		l.dispatch(conversationID, posted)
	}
	return out, nil
}

func (l *Ledger) failPending(conversationID, tempID string) {
	l.mux.Lock()
	h := l.conv(conversationID)
	m, ok := h.byTemp[tempID]
	if ok {
		m.Status = model.Failed
		delete(h.dispatched, tempID)
		l.unsent.put(*m)
	}
	snap := l.snapshotIf(ok, conversationID)
	l.mux.Unlock()
	l.notify(snap)
}

// ExpirePending marks every dispatched message that has not been confirmed
// within the send timeout as failed. It returns the affected temp IDs.
func (l *Ledger) ExpirePending(now time.Time) []string {
	var expired []string
	changed := make(map[string]struct{})

	l.mux.Lock()
	for convID, h := range l.convs {
		for tempID, at := range h.dispatched {
			if now.Sub(at) < l.params.SendTimeout {
				continue
			}
			delete(h.dispatched, tempID)
			m, ok := h.byTemp[tempID]
			if !ok || m.Status != model.Sending {
				continue
			}
			m.Status = model.Failed
			l.unsent.put(*m)
			expired = append(expired, tempID)
			changed[convID] = struct{}{}
		}
	}
	snaps := l.snapshots(changed)
	l.mux.Unlock()

	if len(expired) > 0 {
		jww.INFO.Printf("Sends timed out: %v", expired)
	}
	l.notify(snaps)
	return expired
}

// Start launches the thread that expires unacknowledged sends.
func (l *Ledger) Start() stoppable.Stoppable {
	stop := stoppable.NewSingle("LedgerSendExpiry")
	go func() {
		ticker := time.NewTicker(l.params.ExpiryCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop.Quit():
				stop.ToStopped()
				return
			case <-ticker.C:
				l.ExpirePending(l.now())
			}
		}
	}()
	return stop
}

type snapshot struct {
	conversationID string
	messages       []model.Message
}

// snapshot captures the messages of a conversation. The caller must hold the
// lock.
func (l *Ledger) snapshot(conversationID string) []snapshot {
	return []snapshot{{conversationID, l.conv(conversationID).snapshot()}}
}

func (l *Ledger) snapshotIf(changed bool, conversationID string) []snapshot {
	if !changed {
		return nil
	}
	return l.snapshot(conversationID)
}

func (l *Ledger) snapshots(ids map[string]struct{}) []snapshot {
	out := make([]snapshot, 0, len(ids))
	for id := range ids {
		out = append(out, snapshot{id, l.conv(id).snapshot()})
	}
	return out
}

func (l *Ledger) notify(snaps []snapshot) {
	if l.onChange == nil {
		return
	}
	for _, s := range snaps {
		l.onChange(s.conversationID, s.messages)
	}
}

func validatePayload(p model.Payload) error {
	switch v := p.(type) {
	case nil:
		return errors.Wrap(model.ErrInvalid, "message has no payload")
	case model.Text:
		if strings.TrimSpace(v.Body) == "" {
			return ErrEmptyMessage
		}
	case model.System:
		return errors.Wrap(model.ErrInvalid,
			"system messages are only created by the server")
	}
	return nil
}

func mediaPayload(localPath string, kind model.MessageType,
	caption string) (model.Payload, error) {
	if localPath == "" {
		return nil, errors.Wrap(model.ErrInvalid, "no file to send")
	}
	m := model.Media{LocalPath: localPath}
	switch kind {
	case model.ImageMessage:
		return model.Image{Media: m, Caption: caption}, nil
	case model.VideoMessage:
		return model.Video{Media: m, Caption: caption}, nil
	case model.AudioMessage:
		return model.Audio{Media: m}, nil
	case model.FileMessage:
		return model.File{Media: m, Name: filepath.Base(localPath)}, nil
	default:
		return nil, errors.Wrapf(model.ErrInvalid,
			"%s is not a media type", kind)
	}
}
