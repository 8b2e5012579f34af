////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package directory keeps the list of conversations known to the client and
// the discoverable live sessions.
package directory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
)

const (
	directoryStorageKey     = "conversations"
	directoryStorageVersion = 0
)

// ErrUnknownConversation is returned for conversations not in the directory.
var ErrUnknownConversation = errors.Wrap(model.ErrNotFound,
	"conversation is not in the directory")

// Source lists the conversations visible to the local user.
type Source interface {
	Conversations(ctx context.Context) ([]model.Conversation, error)
}

// ChangeCallback is called with a copy of a conversation after it changed.
type ChangeCallback func(c model.Conversation)

// Directory holds every known conversation. Conversations are never removed,
// only marked inactive.
type Directory struct {
	source   Source
	kv       *versioned.KV
	onChange ChangeCallback

	mux   sync.RWMutex
	convs map[string]*model.Conversation
}

// NewDirectory builds an empty Directory. kv may be nil to disable
// persistence and onChange may be nil.
func NewDirectory(source Source, kv *versioned.KV,
	onChange ChangeCallback) *Directory {
	if kv != nil {
		kv = kv.Prefix("directory")
	}
	return &Directory{
		source:   source,
		kv:       kv,
		onChange: onChange,
		convs:    make(map[string]*model.Conversation),
	}
}

// Load restores the directory from local storage.
func (d *Directory) Load() error {
	if d.kv == nil {
		return nil
	}
	obj, err := d.kv.Get(directoryStorageKey, directoryStorageVersion)
	if err != nil {
		if !d.kv.Exists(err) {
			return nil
		}
		return err
	}

	convs := make(map[string]*model.Conversation)
	if err = json.Unmarshal(obj.Data, &convs); err != nil {
		return errors.Wrap(err, "failed to unmarshal directory")
	}

	d.mux.Lock()
	d.convs = convs
	d.mux.Unlock()
	jww.DEBUG.Printf("Loaded %d conversations", len(convs))
	return nil
}

func (d *Directory) save() {
	if d.kv == nil {
		return
	}
	data, err := json.Marshal(d.convs)
	if err != nil {
		jww.FATAL.Panicf("Failed to marshal directory: %+v", err)
	}
	err = d.kv.Set(directoryStorageKey,
		versioned.NewObject(directoryStorageVersion, data))
	if err != nil {
		jww.ERROR.Printf("Failed to store directory: %+v", err)
	}
}

// Sync replaces the directory contents with the conversations listed by the
// source. Conversations the source no longer lists are marked inactive.
func (d *Directory) Sync(ctx context.Context) error {
	convs, err := d.source.Conversations(ctx)
	if err != nil {
		if model.KindOf(err) == model.KindUnknown {
			err = errors.Wrapf(model.ErrExternalService, "%v", err)
		}
		return errors.WithMessage(err, "failed to list conversations")
	}

	listed := make(map[string]struct{}, len(convs))
	var changed []model.Conversation

	d.mux.Lock()
	for i := range convs {
		c := convs[i].Clone()
		listed[c.ID] = struct{}{}
		if old, ok := d.convs[c.ID]; ok && old.LastActivity.After(c.LastActivity) {
			c.LastActivity = old.LastActivity
		}
		d.convs[c.ID] = &c
		changed = append(changed, c.Clone())
	}
	for id, c := range d.convs {
		if _, ok := listed[id]; !ok && c.Active {
			c.Active = false
			changed = append(changed, c.Clone())
		}
	}
	d.save()
	d.mux.Unlock()

	jww.INFO.Printf("Synced %d conversations", len(convs))
	for _, c := range changed {
		d.notify(c)
	}
	return nil
}

// Put adds or replaces a conversation.
func (d *Directory) Put(c model.Conversation) {
	c = c.Clone()
	d.mux.Lock()
	d.convs[c.ID] = &c
	d.save()
	d.mux.Unlock()
	d.notify(c.Clone())
}

// Get returns a copy of a conversation.
func (d *Directory) Get(id string) (model.Conversation, error) {
	d.mux.RLock()
	defer d.mux.RUnlock()
	c, ok := d.convs[id]
	if !ok {
		return model.Conversation{}, errors.Wrapf(ErrUnknownConversation,
			"%s", id)
	}
	return c.Clone(), nil
}

// List returns the active conversations, most recent activity first.
func (d *Directory) List() []model.Conversation {
	return d.filter(func(c *model.Conversation) bool { return c.Active })
}

// Discoverable returns the live sessions that can still be joined, most
// recent activity first.
func (d *Directory) Discoverable() []model.Conversation {
	return d.filter(func(c *model.Conversation) bool {
		return c.Active && c.IsLive()
	})
}

func (d *Directory) filter(keep func(c *model.Conversation) bool) []model.Conversation {
	d.mux.RLock()
	out := make([]model.Conversation, 0, len(d.convs))
	for _, c := range d.convs {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	d.mux.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Touch moves the last activity of a conversation forward to at. Older
// timestamps are ignored.
func (d *Directory) Touch(id string, at time.Time) {
	d.update(id, func(c *model.Conversation) bool {
		if !at.After(c.LastActivity) {
			return false
		}
		c.LastActivity = at
		return true
	})
}

// MarkInactive hides a conversation from List without deleting it.
func (d *Directory) MarkInactive(id string) {
	d.update(id, func(c *model.Conversation) bool {
		if !c.Active {
			return false
		}
		c.Active = false
		return true
	})
}

// ApplySettings updates the title and settings of a conversation. When ended
// is set the live session is closed and nothing else changes.
func (d *Directory) ApplySettings(id, title string, settings model.Settings,
	ended bool) bool {
	return d.update(id, func(c *model.Conversation) bool {
		if ended {
			if !c.IsLive() {
				return false
			}
			c.Live.Status = model.LiveEnded
			return true
		}
		changed := false
		if title != "" && title != c.Title {
			c.Title = title
			changed = true
		}
		if settings != c.Settings {
			c.Settings = settings
			changed = true
		}
		return changed
	})
}

// update applies fn to a conversation and stores and reports the result if
// fn returns true.
func (d *Directory) update(id string, fn func(c *model.Conversation) bool) bool {
	d.mux.Lock()
	c, ok := d.convs[id]
	if !ok || !fn(c) {
		d.mux.Unlock()
		return false
	}
	d.save()
	cp := c.Clone()
	d.mux.Unlock()
	d.notify(cp)
	return true
}

func (d *Directory) notify(c model.Conversation) {
	if d.onChange != nil {
		d.onChange(c)
	}
}
