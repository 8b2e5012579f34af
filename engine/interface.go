////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package engine

import (
	"context"

	"gitlab.com/heartline/convsync/call"
	"gitlab.com/heartline/convsync/ledger"
	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/storage/versioned"
	"gitlab.com/heartline/convsync/transport"
)

// Backend is the durable store behind the real-time rooms.
type Backend interface {
	// CreateConversation persists a new conversation and returns it with
	// its initial roster.
	CreateConversation(ctx context.Context, req CreateRequest) (
		model.Conversation, []model.Participant, error)

	// Conversations lists every conversation visible to the local user,
	// including discoverable live sessions.
	Conversations(ctx context.Context) ([]model.Conversation, error)

	// Roster returns the participants of a conversation.
	Roster(ctx context.Context, conversationID string) (
		[]model.Participant, error)

	// History returns confirmed messages older than beforeID, newest
	// first. A zero beforeID asks for the newest page.
	History(ctx context.Context, conversationID string, beforeID uint64,
		limit int) ([]model.Message, error)

	// SubmitJoinRequest stores a join request for the host to decide.
	SubmitJoinRequest(ctx context.Context, req model.JoinRequest) (
		model.JoinRequest, error)

	// ChangeRole persists a role change made by actorID.
	ChangeRole(ctx context.Context, conversationID, actorID, userID string,
		role model.Role) error
}

// CreateRequest describes a conversation to create.
type CreateRequest struct {
	Kind         model.Kind
	Title        string
	OwnerID      string
	Settings     model.Settings
	Participants []string
	Live         *model.Live
}

// Dependencies are the external collaborators of an Engine. Uploader, Issuer
// and Media may be nil when media messages or calls are not used; KV may be
// nil to keep everything in memory.
type Dependencies struct {
	Backend  Backend
	Dialer   transport.Dialer
	Uploader ledger.Uploader
	Issuer   call.CredentialIssuer
	Media    call.MediaTransport
	KV       *versioned.KV
}
