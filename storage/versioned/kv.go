////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package versioned is a prefixed, versioned key-value store on top of ekv.
// It persists local engine state such as unconfirmed sends and the
// conversation directory between restarts.
package versioned

import (
	"fmt"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

// PrefixSeparator is appended to every prefix.
const PrefixSeparator = "/"

// KV stores versioned objects under a key prefix. Copies made by Prefix
// share the same backing store.
type KV struct {
	data   ekv.KeyValue
	prefix string
}

// NewKV wraps a backing ekv store.
func NewKV(data ekv.KeyValue) *KV {
	return &KV{data: data}
}

// NewMemKV returns a KV backed by an in-memory store.
func NewMemKV() *KV {
	return NewKV(ekv.MakeMemstore())
}

// NewFileKV returns a KV backed by an encrypted on-disk store in dir.
func NewFileKV(dir, password string) (*KV, error) {
	fs, err := ekv.NewFilestore(dir, password)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open filestore at %s", dir)
	}
	return NewKV(fs), nil
}

// Get returns the object stored at key and version.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("Get %s", key)

	obj := &Object{}
	if err := v.data.Get(key, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Set upserts the object under key at the object's version.
func (v *KV) Set(key string, object *Object) error {
	key = v.makeKey(key, object.Version)
	jww.TRACE.Printf("Set %s", key)
	return v.data.Set(key, object)
}

// Delete removes key at version from the store.
func (v *KV) Delete(key string, version uint64) error {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("Delete %s", key)
	return v.data.Delete(key)
}

// Prefix returns a KV whose keys are nested under prefix.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{
		data:   v.data,
		prefix: v.prefix + prefix + PrefixSeparator,
	}
}

// GetPrefix returns the prefix of the KV.
func (v *KV) GetPrefix() string {
	return v.prefix
}

// GetFullKey returns the key with all prefixes applied.
func (v *KV) GetFullKey(key string, version uint64) string {
	return v.makeKey(key, version)
}

// Exists returns false if the error indicates the element doesn't exist.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}

func (v *KV) makeKey(key string, version uint64) string {
	return fmt.Sprintf("%s%s_%d", v.prefix, key, version)
}
