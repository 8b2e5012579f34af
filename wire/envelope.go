////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package wire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/crypto/blake2b"
)

// Envelope carries one event for one room. Seq is assigned by the server per
// room and is zero on client intents.
type Envelope struct {
	Room    string
	Seq     uint64
	EventID string
	Event   Event
}

// String adheres to the [fmt.Stringer] interface.
func (env Envelope) String() string {
	kind := "<nil>"
	if env.Event != nil {
		kind = env.Event.Kind().String()
	}
	return fmt.Sprintf("Envelope{room:%s seq:%d id:%s kind:%s}",
		env.Room, env.Seq, env.EventID, kind)
}

// Key returns the identity of the envelope used to drop redelivered events.
// The server-assigned event ID is used when present; otherwise the key is a
// digest of the sequence number and the encoded event. Ephemeral events have
// no key and ok is false.
func (env Envelope) Key() (key string, ok bool) {
	if env.Event == nil || env.Event.Kind().Ephemeral() {
		return "", false
	}
	if env.EventID != "" {
		return "id:" + env.EventID, true
	}

	body, err := encodeEvent(env.Event)
	if err != nil {
		jww.WARN.Printf("Cannot derive key for %s: %+v", env, err)
		return "", false
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		jww.FATAL.Panicf("Failed to create blake2b hash: %+v", err)
	}
	var prefix [9]byte
	binary.BigEndian.PutUint64(prefix[:8], env.Seq)
	prefix[8] = byte(env.Event.Kind())
	h.Write(prefix[:])
	h.Write(body)
	return "h:" + hex.EncodeToString(h.Sum(nil)), true
}
