////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"context"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/wire"
)

// Sender delivers intents to a conversation's room.
type Sender interface {
	Send(roomID string, e wire.Event) error
}

// HistorySource returns pages of confirmed history from the durable store.
// A zero beforeID asks for the newest page.
type HistorySource interface {
	History(ctx context.Context, conversationID string, beforeID uint64,
		limit int) ([]model.Message, error)
}

// Uploader stores a local file and returns its durable location.
type Uploader interface {
	Upload(ctx context.Context, localPath string,
		kind model.MessageType) (model.Media, error)
}

// ChangeCallback is called with a snapshot of the conversation's messages
// every time they change. It is called without the ledger lock held.
type ChangeCallback func(conversationID string, messages []model.Message)
