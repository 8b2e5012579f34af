////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package membership

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
)

const rosterStorageVersion = 0

// roster is the participant set of one conversation.
type roster struct {
	OwnerID      string                        `json:"ownerID"`
	Capacity     int                           `json:"capacity"`
	Participants map[string]*model.Participant `json:"participants"`
	RemovedSelf  bool                          `json:"removedSelf"`
}

func newRoster(ownerID string, capacity int) *roster {
	return &roster{
		OwnerID:      ownerID,
		Capacity:     capacity,
		Participants: make(map[string]*model.Participant),
	}
}

// full reports whether one more participant would exceed the capacity.
func (r *roster) full() bool {
	return r.Capacity > 0 && len(r.Participants) >= r.Capacity
}

func (r *roster) list() []model.Participant {
	out := make([]model.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func saveRoster(kv *versioned.KV, conversationID string, r *roster) error {
	if kv == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal roster of %s",
			conversationID)
	}
	return kv.Set(conversationID,
		versioned.NewObject(rosterStorageVersion, data))
}

func loadRoster(kv *versioned.KV, conversationID string) (*roster, error) {
	obj, err := kv.Get(conversationID, rosterStorageVersion)
	if err != nil {
		return nil, err
	}
	r := &roster{}
	if err = json.Unmarshal(obj.Data, r); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal roster of %s",
			conversationID)
	}
	if r.Participants == nil {
		r.Participants = make(map[string]*model.Participant)
	}
	return r, nil
}
