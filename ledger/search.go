////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package ledger

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/thedevsaddam/gojsonq"

	"gitlab.com/heartline/convsync/model"
)

// Query filters a search. Empty fields match everything.
type Query struct {
	// Text is matched case-insensitively against the message body,
	// caption or file name.
	Text     string
	SenderID string
	Type     model.MessageType
}

// searchRow is the flattened form of a message that queries run against.
type searchRow struct {
	Index    string `json:"index"`
	SenderID string `json:"senderID"`
	Type     string `json:"type"`
	Text     string `json:"text"`
}

// Search returns the visible messages of a conversation matching the query,
// in ledger order. The ledger is not modified.
func (l *Ledger) Search(conversationID string, q Query) ([]model.Message,
	error) {
	messages := l.Messages(conversationID)

	rows := make([]searchRow, 0, len(messages))
	for i, m := range messages {
		if m.Deleted || m.Payload == nil {
			continue
		}
		rows = append(rows, searchRow{
			Index:    strconv.Itoa(i),
			SenderID: m.SenderID,
			Type:     m.Payload.Type().String(),
			Text:     strings.ToLower(model.Summary(m.Payload)),
		})
	}
	if len(rows) == 0 {
		return []model.Message{}, nil
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search rows")
	}

	jq := gojsonq.New().FromString(string(data))
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		jq = jq.Where("text", "contains", text)
	}
	if q.SenderID != "" {
		jq = jq.Where("senderID", "=", q.SenderID)
	}
	if q.Type != 0 {
		jq = jq.Where("type", "=", q.Type.String())
	}
	found := jq.Pluck("index")
	if err = jq.Error(); err != nil {
		return nil, errors.Wrap(err, "search query failed")
	}

	indices, _ := found.([]interface{})
	out := make([]model.Message, 0, len(indices))
	for _, v := range indices {
		s, _ := v.(string)
		i, err := strconv.Atoi(s)
		if err != nil || i < 0 || i >= len(messages) {
			continue
		}
		out = append(out, messages[i])
	}
	return out, nil
}
