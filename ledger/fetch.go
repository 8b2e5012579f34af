////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/heartline/convsync/model"
)

// FetchHistory pulls the page of confirmed messages older than beforeID (or
// the newest page when beforeID is zero) and merges it into the ledger. The
// page is returned newest first. Messages already present are not inserted
// again, so repeated calls are harmless.
func (l *Ledger) FetchHistory(ctx context.Context, conversationID string,
	beforeID uint64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = l.params.DefaultPageSize
	}

	page, err := l.source.History(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to fetch history of %s before %d", conversationID,
			beforeID)
	}

	sort.Slice(page, func(i, j int) bool { return page[i].ID > page[j].ID })

	l.mux.Lock()
	h := l.conv(conversationID)
	inserted := 0
	for i := range page {
		m := page[i].Clone()
		if !m.Confirmed() || m.Payload == nil {
			jww.WARN.Printf("Skipping unconfirmed history entry in %s",
				conversationID)
			continue
		}
		m.ConversationID = conversationID
		if m.Status == model.Sending || m.Status == model.Failed {
			m.Status = model.Sent
		}
		if m.Deleted {
			tombstone(&m)
		}

		// Our own message confirmed through history before its ack
		if m.TempID != "" {
			if pending, ok := h.byTemp[m.TempID]; ok && m.SenderID == pending.SenderID {
				h.reconcile(m.TempID, m.ID, m.CreatedAt)
				l.unsent.delete(m.TempID)
				inserted++
				continue
			}
		}

		if h.insertConfirmed(&m) {
			inserted++
		}
	}
	snap := l.snapshotIf(inserted > 0, conversationID)
	l.mux.Unlock()

	jww.DEBUG.Printf("Fetched %d messages of %s before %d, %d new",
		len(page), conversationID, beforeID, inserted)
	l.notify(snap)

	out := make([]model.Message, len(page))
	for i := range page {
		out[i] = page[i].Clone()
	}
	return out, nil
}
