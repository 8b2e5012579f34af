////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKV_SetGet(t *testing.T) {
	kv := NewMemKV().Prefix("ledger").Prefix("conv-1")
	obj := NewObject(0, []byte("pending"))

	require.NoError(t, kv.Set("unsent", obj))

	loaded, err := kv.Get("unsent", 0)
	require.NoError(t, err)
	require.Equal(t, obj.Data, loaded.Data)
	require.Equal(t, uint64(0), loaded.Version)
	require.True(t, obj.Timestamp.Equal(loaded.Timestamp))
}

// Tests that prefixes isolate keys that share a name.
func TestKV_Prefix(t *testing.T) {
	root := NewMemKV()
	a := root.Prefix("a")
	b := root.Prefix("b")

	require.NoError(t, a.Set("k", NewObject(0, []byte("A"))))
	_, err := b.Get("k", 0)
	require.Error(t, err)
	require.False(t, b.Exists(err))

	require.Equal(t, "a/", a.GetPrefix())
	require.Equal(t, "a/x/k_3", a.Prefix("x").GetFullKey("k", 3))
}

func TestKV_Delete(t *testing.T) {
	kv := NewMemKV()
	require.NoError(t, kv.Set("k", NewObject(1, []byte("v"))))
	require.NoError(t, kv.Delete("k", 1))

	_, err := kv.Get("k", 1)
	require.False(t, kv.Exists(err))
}

func TestObject_MarshalUnmarshal(t *testing.T) {
	obj := NewObject(2, []byte{1, 2, 3})
	loaded := &Object{}
	require.NoError(t, loaded.Unmarshal(obj.Marshal()))
	require.Equal(t, obj.Version, loaded.Version)
	require.Equal(t, obj.Data, loaded.Data)
}
