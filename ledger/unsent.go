////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"encoding/json"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
)

const (
	unsentStorageKey     = "ledgerUnsentStorageKey"
	unsentStorageVersion = 0
)

// unsentStore persists every unconfirmed message, keyed by temp ID, so that a
// restart cannot silently lose a send.
type unsentStore struct {
	kv       *versioned.KV
	messages map[string]model.Message
}

func newUnsentStore(kv *versioned.KV) *unsentStore {
	return &unsentStore{
		kv:       kv,
		messages: make(map[string]model.Message),
	}
}

func (us *unsentStore) put(m model.Message) {
	us.messages[m.TempID] = m.Clone()
	us.save()
}

func (us *unsentStore) delete(tempID string) {
	if _, exists := us.messages[tempID]; !exists {
		return
	}
	delete(us.messages, tempID)
	us.save()
}

func (us *unsentStore) save() {
	if us.kv == nil {
		return
	}
	data, err := json.Marshal(us.messages)
	if err != nil {
		jww.FATAL.Panicf("Failed to marshal unsent messages: %+v", err)
	}
	obj := versioned.NewObject(unsentStorageVersion, data)
	if err = us.kv.Set(unsentStorageKey, obj); err != nil {
		jww.FATAL.Panicf("Failed to store unsent messages: %+v", err)
	}
}

// load reads the stored messages. A missing key is not an error.
func (us *unsentStore) load() error {
	if us.kv == nil {
		return nil
	}
	obj, err := us.kv.Get(unsentStorageKey, unsentStorageVersion)
	if err != nil {
		if !us.kv.Exists(err) {
			return nil
		}
		return errors.Wrap(err, "failed to load unsent messages")
	}
	return errors.Wrap(json.Unmarshal(obj.Data, &us.messages),
		"failed to unmarshal unsent messages")
}
