////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"encoding/json"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// Object wraps a stored record with its format version and write time.
type Object struct {
	// Format version of Data
	Version uint64

	// Set when this object is written
	Timestamp time.Time

	// Serialized record
	Data []byte
}

// NewObject wraps data for storage at the given version, stamped now.
func NewObject(version uint64, data []byte) *Object {
	return &Object{
		Version:   version,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Unmarshal deserializes an Object from a byte slice. This function adheres
// to the ekv.Unmarshaler interface.
func (o *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, o)
}

// Marshal serializes the Object into a byte slice. This function adheres to
// the ekv.Marshaler interface.
func (o *Object) Marshal() []byte {
	d, err := json.Marshal(o)
	if err != nil {
		jww.FATAL.Panicf("Could not marshal versioned object: %+v", err)
	}
	return d
}
