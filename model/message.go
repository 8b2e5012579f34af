////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// MessageType is the kind of payload a message carries.
type MessageType uint8

const (
	TextMessage MessageType = iota + 1
	ImageMessage
	VideoMessage
	AudioMessage
	FileMessage
	SystemMessage
)

// String returns a human-readable version of [MessageType]. This function
// adheres to the [fmt.Stringer] interface.
func (mt MessageType) String() string {
	switch mt {
	case TextMessage:
		return "text"
	case ImageMessage:
		return "image"
	case VideoMessage:
		return "video"
	case AudioMessage:
		return "audio"
	case FileMessage:
		return "file"
	case SystemMessage:
		return "system"
	default:
		return "Invalid MessageType: " + strconv.Itoa(int(mt))
	}
}

// IsMedia returns true for the payload types that reference an uploaded file.
func (mt MessageType) IsMedia() bool {
	switch mt {
	case ImageMessage, VideoMessage, AudioMessage, FileMessage:
		return true
	default:
		return false
	}
}

// Status is the delivery status of a message.
type Status uint8

const (
	// Sending is the status of a message created locally and not yet
	// acknowledged by the server.
	Sending Status = iota

	// Sent is the status of a message once the server assigned it an id.
	Sent

	// Delivered is the status of a message once a recipient received it.
	Delivered

	// Read is the status of a message once a recipient displayed it.
	Read

	// Failed is the status of a message whose send did not complete in time
	// or whose media upload failed.
	Failed
)

// String returns a human-readable version of [Status], used for debugging and
// logging. This function adheres to the [fmt.Stringer] interface.
func (s Status) String() string {
	switch s {
	case Sending:
		return "sending"
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	case Failed:
		return "failed"
	default:
		return "Invalid Status: " + strconv.Itoa(int(s))
	}
}

// Advances returns true if moving from s to next is a forward transition.
// Receipts only ever move a confirmed message forward.
func (s Status) Advances(next Status) bool {
	switch s {
	case Sent, Delivered:
		return next > s && next <= Read
	default:
		return false
	}
}

// Payload is the content of a message. It is a closed set of variants; every
// implementation lives in this file.
type Payload interface {
	Type() MessageType
	isPayload()
}

// Media references an uploaded file. LocalPath is only set on the sending
// client until the upload completes.
type Media struct {
	LocalPath    string `json:"localPath,omitempty"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnailURL,omitempty"`
}

// Uploaded returns true once a durable URL is known.
func (m Media) Uploaded() bool { return m.URL != "" }

type Text struct {
	Body string
}

type Image struct {
	Media
	Caption       string
	Width, Height int
}

type Video struct {
	Media
	Caption  string
	Duration time.Duration
}

type Audio struct {
	Media
	Duration time.Duration
}

type File struct {
	Media
	Name     string
	Size     int64
	MIMEType string
}

// System is a message generated by the server, such as "X joined".
type System struct {
	Code string
	Text string
}

func (Text) Type() MessageType   { return TextMessage }
func (Image) Type() MessageType  { return ImageMessage }
func (Video) Type() MessageType  { return VideoMessage }
func (Audio) Type() MessageType  { return AudioMessage }
func (File) Type() MessageType   { return FileMessage }
func (System) Type() MessageType { return SystemMessage }

func (Text) isPayload()   {}
func (Image) isPayload()  {}
func (Video) isPayload()  {}
func (Audio) isPayload()  {}
func (File) isPayload()   {}
func (System) isPayload() {}

// MediaOf returns the media reference of a payload, if it has one.
func MediaOf(p Payload) (Media, bool) {
	switch v := p.(type) {
	case Image:
		return v.Media, true
	case Video:
		return v.Media, true
	case Audio:
		return v.Media, true
	case File:
		return v.Media, true
	default:
		return Media{}, false
	}
}

// WithMedia returns a copy of p with its media reference replaced. Payloads
// without media are returned unchanged.
func WithMedia(p Payload, m Media) Payload {
	switch v := p.(type) {
	case Image:
		v.Media = m
		return v
	case Video:
		v.Media = m
		return v
	case Audio:
		v.Media = m
		return v
	case File:
		v.Media = m
		return v
	default:
		return p
	}
}

// Summary returns the searchable text of a payload.
func Summary(p Payload) string {
	switch v := p.(type) {
	case Text:
		return v.Body
	case Image:
		return v.Caption
	case Video:
		return v.Caption
	case File:
		return v.Name
	case System:
		return v.Text
	default:
		return ""
	}
}

// Message is one entry of a conversation's history.
type Message struct {
	ConversationID string
	// ID is assigned by the server; zero until the message is acknowledged.
	ID uint64
	// TempID is assigned by the sending client and is always present.
	TempID    string
	SenderID  string
	Payload   Payload
	ReplyTo   uint64
	Status    Status
	CreatedAt time.Time
	EditedAt  time.Time
	Deleted   bool
	// Reactions maps an emoji to the users that reacted with it.
	Reactions map[string][]string
}

// Confirmed returns true once the server assigned an id.
func (m Message) Confirmed() bool { return m.ID != 0 }

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		r := make(map[string][]string, len(m.Reactions))
		for k, v := range m.Reactions {
			r[k] = append([]string(nil), v...)
		}
		m.Reactions = r
	}
	return m
}

// payloadJSON is the storage form of a Payload.
type payloadJSON struct {
	Type         MessageType   `json:"type"`
	Body         string        `json:"body,omitempty"`
	LocalPath    string        `json:"localPath,omitempty"`
	URL          string        `json:"url,omitempty"`
	ThumbnailURL string        `json:"thumbnailURL,omitempty"`
	Caption      string        `json:"caption,omitempty"`
	Width        int           `json:"width,omitempty"`
	Height       int           `json:"height,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Name         string        `json:"name,omitempty"`
	Size         int64         `json:"size,omitempty"`
	MIMEType     string        `json:"mimeType,omitempty"`
	Code         string        `json:"code,omitempty"`
}

func toPayloadJSON(p Payload) payloadJSON {
	pj := payloadJSON{Type: p.Type()}
	if m, ok := MediaOf(p); ok {
		pj.LocalPath, pj.URL, pj.ThumbnailURL = m.LocalPath, m.URL, m.ThumbnailURL
	}
	switch v := p.(type) {
	case Text:
		pj.Body = v.Body
	case Image:
		pj.Caption, pj.Width, pj.Height = v.Caption, v.Width, v.Height
	case Video:
		pj.Caption, pj.Duration = v.Caption, v.Duration
	case Audio:
		pj.Duration = v.Duration
	case File:
		pj.Name, pj.Size, pj.MIMEType = v.Name, v.Size, v.MIMEType
	case System:
		pj.Code, pj.Body = v.Code, v.Text
	}
	return pj
}

func (pj payloadJSON) payload() (Payload, error) {
	m := Media{LocalPath: pj.LocalPath, URL: pj.URL, ThumbnailURL: pj.ThumbnailURL}
	switch pj.Type {
	case TextMessage:
		return Text{Body: pj.Body}, nil
	case ImageMessage:
		return Image{Media: m, Caption: pj.Caption, Width: pj.Width,
			Height: pj.Height}, nil
	case VideoMessage:
		return Video{Media: m, Caption: pj.Caption, Duration: pj.Duration}, nil
	case AudioMessage:
		return Audio{Media: m, Duration: pj.Duration}, nil
	case FileMessage:
		return File{Media: m, Name: pj.Name, Size: pj.Size,
			MIMEType: pj.MIMEType}, nil
	case SystemMessage:
		return System{Code: pj.Code, Text: pj.Body}, nil
	default:
		return nil, errors.Wrapf(ErrInvalid, "unknown payload %s", pj.Type)
	}
}

type messageJSON struct {
	ConversationID string              `json:"conversationID"`
	ID             uint64              `json:"id,omitempty"`
	TempID         string              `json:"tempID"`
	SenderID       string              `json:"senderID"`
	Payload        payloadJSON         `json:"payload"`
	ReplyTo        uint64              `json:"replyTo,omitempty"`
	Status         Status              `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	EditedAt       time.Time           `json:"editedAt,omitempty"`
	Deleted        bool                `json:"deleted,omitempty"`
	Reactions      map[string][]string `json:"reactions,omitempty"`
}

// MarshalJSON adheres to the [json.Marshaler] interface.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, errors.Errorf("message %s has no payload", m.TempID)
	}
	return json.Marshal(messageJSON{
		ConversationID: m.ConversationID,
		ID:             m.ID,
		TempID:         m.TempID,
		SenderID:       m.SenderID,
		Payload:        toPayloadJSON(m.Payload),
		ReplyTo:        m.ReplyTo,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		Deleted:        m.Deleted,
		Reactions:      m.Reactions,
	})
}

// UnmarshalJSON adheres to the [json.Unmarshaler] interface.
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	p, err := mj.Payload.payload()
	if err != nil {
		return err
	}
	*m = Message{
		ConversationID: mj.ConversationID,
		ID:             mj.ID,
		TempID:         mj.TempID,
		SenderID:       mj.SenderID,
		Payload:        p,
		ReplyTo:        mj.ReplyTo,
		Status:         mj.Status,
		CreatedAt:      mj.CreatedAt,
		EditedAt:       mj.EditedAt,
		Deleted:        mj.Deleted,
		Reactions:      mj.Reactions,
	}
	return nil
}
