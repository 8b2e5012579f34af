////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package joinrequest

import (
	"encoding/json"

	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
)

const requestStoreVersion = 0

// saveSession stores every request of one session under the session ID.
func saveSession(kv *versioned.KV, sessionID string,
	requests map[string]*model.JoinRequest) error {
	if kv == nil {
		return nil
	}
	data, err := json.Marshal(requests)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal requests of %s",
			sessionID)
	}
	return kv.Set(sessionID, versioned.NewObject(requestStoreVersion, data))
}

func loadSession(kv *versioned.KV, sessionID string) (
	map[string]*model.JoinRequest, error) {
	obj, err := kv.Get(sessionID, requestStoreVersion)
	if err != nil {
		return nil, err
	}
	requests := make(map[string]*model.JoinRequest)
	if err = json.Unmarshal(obj.Data, &requests); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal requests of %s",
			sessionID)
	}
	return requests, nil
}
