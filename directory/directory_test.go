////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package directory

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
)

type mockSource struct {
	convs []model.Conversation
	err   error
}

func (m *mockSource) Conversations(context.Context) ([]model.Conversation, error) {
	return m.convs, m.err
}

var base = time.Unix(1700000000, 0).UTC()

func conv(id string, kind model.Kind, activity int) model.Conversation {
	c := model.Conversation{
		ID:           id,
		Kind:         kind,
		Title:        id,
		OwnerID:      "owner",
		Active:       true,
		CreatedAt:    base,
		LastActivity: base.Add(time.Duration(activity) * time.Minute),
	}
	if kind == model.LiveSession {
		c.Live = &model.Live{HostID: "host", Status: model.LiveActive}
	}
	return c
}

func ids(convs []model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestDirectory_List(t *testing.T) {
	var changes []string
	d := NewDirectory(&mockSource{}, nil, func(c model.Conversation) {
		changes = append(changes, c.ID)
	})
	d.Put(conv("a", model.Group, 1))
	d.Put(conv("b", model.Direct, 3))
	d.Put(conv("c", model.LiveSession, 2))

	require.Equal(t, []string{"b", "c", "a"}, ids(d.List()))
	require.Equal(t, []string{"c"}, ids(d.Discoverable()))

	d.Touch("a", base.Add(10*time.Minute))
	d.Touch("a", base)
	require.Equal(t, []string{"a", "b", "c"}, ids(d.List()))

	d.MarkInactive("b")
	d.MarkInactive("b")
	require.Equal(t, []string{"a", "c"}, ids(d.List()))

	// Inactive conversations are still retrievable
	b, err := d.Get("b")
	require.NoError(t, err)
	require.False(t, b.Active)

	_, err = d.Get("missing")
	require.True(t, errors.Is(err, model.ErrNotFound))

	require.Equal(t, []string{"a", "b", "c", "a", "b"}, changes)
}

// Tests that mutating a returned conversation does not change the directory.
func TestDirectory_Get_Copy(t *testing.T) {
	d := NewDirectory(&mockSource{}, nil, nil)
	d.Put(conv("live", model.LiveSession, 0))

	c, err := d.Get("live")
	require.NoError(t, err)
	c.Live.Status = model.LiveEnded
	c.Title = "changed"

	again, _ := d.Get("live")
	require.True(t, again.IsLive())
	require.Equal(t, "live", again.Title)
}

func TestDirectory_ApplySettings(t *testing.T) {
	d := NewDirectory(&mockSource{}, nil, nil)
	d.Put(conv("live", model.LiveSession, 0))

	settings := model.Settings{MaxParticipants: 4, RequireApproval: true}
	require.True(t, d.ApplySettings("live", "Friday", settings, false))
	require.False(t, d.ApplySettings("live", "Friday", settings, false))

	require.True(t, d.ApplySettings("live", "", model.Settings{}, true))
	c, _ := d.Get("live")
	require.Equal(t, "Friday", c.Title)
	require.Equal(t, settings, c.Settings)
	require.False(t, c.IsLive())
	require.Empty(t, d.Discoverable())

	require.False(t, d.ApplySettings("live", "", model.Settings{}, true))
	require.False(t, d.ApplySettings("missing", "x", settings, false))
}

func TestDirectory_Sync(t *testing.T) {
	source := &mockSource{}
	d := NewDirectory(source, nil, nil)
	d.Put(conv("old", model.Group, 0))
	touched := conv("a", model.Group, 0)
	d.Put(touched)
	d.Touch("a", base.Add(time.Hour))

	source.convs = []model.Conversation{conv("a", model.Group, 5),
		conv("b", model.Group, 1)}
	require.NoError(t, d.Sync(context.Background()))

	require.Equal(t, []string{"a", "b"}, ids(d.List()))
	a, _ := d.Get("a")
	require.Equal(t, base.Add(time.Hour), a.LastActivity)
	old, err := d.Get("old")
	require.NoError(t, err)
	require.False(t, old.Active)

	source.err = errors.New("offline")
	err = d.Sync(context.Background())
	require.True(t, errors.Is(err, model.ErrExternalService))
	require.Len(t, d.List(), 2)
}

func TestDirectory_Load(t *testing.T) {
	kv := versioned.NewMemKV()
	d := NewDirectory(&mockSource{}, kv, nil)
	d.Put(conv("a", model.Group, 0))
	d.Put(conv("live", model.LiveSession, 1))

	restored := NewDirectory(&mockSource{}, kv, nil)
	require.NoError(t, restored.Load())
	require.Equal(t, ids(d.List()), ids(restored.List()))
	require.Equal(t, []string{"live"}, ids(restored.Discoverable()))

	empty := NewDirectory(&mockSource{}, versioned.NewMemKV(), nil)
	require.NoError(t, empty.Load())
	require.Empty(t, empty.List())
}
