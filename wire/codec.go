////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package wire

import (
	"time"

	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

// Envelope field numbers.
const (
	envRoom    = 1
	envSeq     = 2
	envEventID = 3
	envKind    = 4
	envBody    = 5
)

// Payload field numbers. The local path of an upload never leaves the device.
const (
	plType      = 1
	plBody      = 2
	plURL       = 3
	plThumbnail = 4
	plCaption   = 5
	plWidth     = 6
	plHeight    = 7
	plDuration  = 8
	plName      = 9
	plSize      = 10
	plMIMEType  = 11
	plCode      = 12
)

// Encode serialises an envelope into a binary frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Event == nil {
		return nil, errors.New("cannot encode an envelope without an event")
	}
	body, err := encodeEvent(env.Event)
	if err != nil {
		return nil, err
	}

	w := fieldWriter{}
	w.str(envRoom, env.Room)
	w.uint(envSeq, env.Seq)
	w.str(envEventID, env.EventID)
	w.uint(envKind, uint64(env.Event.Kind()))
	w.raw(envBody, body)
	return w.b, nil
}

// Decode parses a binary frame produced by Encode.
func Decode(frame []byte) (Envelope, error) {
	var (
		env  Envelope
		kind Kind
		body []byte
	)
	err := readFields(frame, func(f field) error {
		switch f.num {
		case envRoom:
			env.Room = f.str()
		case envSeq:
			env.Seq = f.varint
		case envEventID:
			env.EventID = f.str()
		case envKind:
			kind = Kind(f.varint)
		case envBody:
			body = f.data
		}
		return nil
	})
	if err != nil {
		return Envelope{}, errors.WithMessage(err, "failed to decode envelope")
	}

	env.Event, err = decodeEvent(kind, body)
	if err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func encodeEvent(e Event) ([]byte, error) {
	w := fieldWriter{}
	switch ev := e.(type) {
	case JoinRoom, LeaveRoom:
	case MessagePosted:
		if ev.Payload == nil {
			return nil, errors.Errorf("message %s has no payload", ev.TempID)
		}
		w.str(1, ev.TempID)
		w.uint(2, ev.ServerID)
		w.str(3, ev.SenderID)
		w.raw(4, encodePayload(ev.Payload))
		w.uint(5, ev.ReplyTo)
		w.time(6, ev.CreatedAt)
	case MessageAck:
		w.str(1, ev.TempID)
		w.uint(2, ev.ServerID)
		w.time(3, ev.CreatedAt)
	case MessageEdited:
		if ev.Payload == nil {
			return nil, errors.Errorf("edit of %d has no payload", ev.ServerID)
		}
		w.uint(1, ev.ServerID)
		w.str(2, ev.EditorID)
		w.raw(3, encodePayload(ev.Payload))
		w.time(4, ev.EditedAt)
	case MessageDeleted:
		w.uint(1, ev.ServerID)
		w.str(2, ev.ActorID)
		w.boolean(3, ev.ForEveryone)
	case ReceiptUpdate:
		w.uint(1, ev.ServerID)
		w.str(2, ev.UserID)
		w.uint(3, uint64(ev.Status))
	case ReactionChanged:
		w.uint(1, ev.ServerID)
		w.str(2, ev.UserID)
		w.str(3, ev.Emoji)
		w.boolean(4, ev.Removed)
	case TypingChanged:
		w.str(1, ev.UserID)
		w.boolean(2, ev.IsTyping)
	case PresenceChanged:
		w.str(1, ev.UserID)
		w.boolean(2, ev.Online)
	case PresenceSnapshot:
		w.strs(1, ev.Online)
	case MembershipChanged:
		w.str(1, ev.UserID)
		w.str(2, ev.ActorID)
		w.uint(3, uint64(ev.Action))
		w.uint(4, uint64(ev.Role))
		w.time(5, ev.At)
	case SettingsChanged:
		w.str(1, ev.Title)
		w.raw(2, encodeSettings(ev.Settings))
		w.boolean(3, ev.Ended)
	case JoinRequested:
		w.raw(1, encodeRequest(ev.Request))
	case JoinDecided:
		w.str(1, ev.RequestID)
		w.str(2, ev.RequesterID)
		w.uint(3, uint64(ev.Status))
		w.str(4, ev.DecidedBy)
		w.time(5, ev.DecidedAt)
	case CallSignal:
		w.uint(1, uint64(ev.Action))
		w.str(2, ev.ChannelName)
		w.str(3, ev.UserID)
	default:
		return nil, errors.Errorf("cannot encode event of type %T", e)
	}
	return w.b, nil
}

func decodeEvent(kind Kind, body []byte) (Event, error) {
	var (
		e   Event
		err error
	)
	switch kind {
	case KindJoinRoom:
		e = JoinRoom{}
	case KindLeaveRoom:
		e = LeaveRoom{}
	case KindMessagePosted:
		ev := MessagePosted{}
		err = readFields(body, func(f field) (ferr error) {
			switch f.num {
			case 1:
				ev.TempID = f.str()
			case 2:
				ev.ServerID = f.varint
			case 3:
				ev.SenderID = f.str()
			case 4:
				ev.Payload, ferr = decodePayload(f.data)
			case 5:
				ev.ReplyTo = f.varint
			case 6:
				ev.CreatedAt = f.time()
			}
			return ferr
		})
		if err == nil && ev.Payload == nil {
			err = errors.New("message without payload")
		}
		e = ev
	case KindMessageAck:
		ev := MessageAck{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.TempID = f.str()
			case 2:
				ev.ServerID = f.varint
			case 3:
				ev.CreatedAt = f.time()
			}
			return nil
		})
		e = ev
	case KindMessageEdited:
		ev := MessageEdited{}
		err = readFields(body, func(f field) (ferr error) {
			switch f.num {
			case 1:
				ev.ServerID = f.varint
			case 2:
				ev.EditorID = f.str()
			case 3:
				ev.Payload, ferr = decodePayload(f.data)
			case 4:
				ev.EditedAt = f.time()
			}
			return ferr
		})
		if err == nil && ev.Payload == nil {
			err = errors.New("edit without payload")
		}
		e = ev
	case KindMessageDeleted:
		ev := MessageDeleted{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.ServerID = f.varint
			case 2:
				ev.ActorID = f.str()
			case 3:
				ev.ForEveryone = f.boolean()
			}
			return nil
		})
		e = ev
	case KindReceiptUpdate:
		ev := ReceiptUpdate{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.ServerID = f.varint
			case 2:
				ev.UserID = f.str()
			case 3:
				ev.Status = model.Status(f.varint)
			}
			return nil
		})
		e = ev
	case KindReactionChanged:
		ev := ReactionChanged{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.ServerID = f.varint
			case 2:
				ev.UserID = f.str()
			case 3:
				ev.Emoji = f.str()
			case 4:
				ev.Removed = f.boolean()
			}
			return nil
		})
		e = ev
	case KindTypingChanged:
		ev := TypingChanged{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.UserID = f.str()
			case 2:
				ev.IsTyping = f.boolean()
			}
			return nil
		})
		e = ev
	case KindPresenceChanged:
		ev := PresenceChanged{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.UserID = f.str()
			case 2:
				ev.Online = f.boolean()
			}
			return nil
		})
		e = ev
	case KindPresenceSnapshot:
		ev := PresenceSnapshot{}
		err = readFields(body, func(f field) error {
			if f.num == 1 {
				ev.Online = append(ev.Online, f.str())
			}
			return nil
		})
		e = ev
	case KindMembershipChanged:
		ev := MembershipChanged{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.UserID = f.str()
			case 2:
				ev.ActorID = f.str()
			case 3:
				ev.Action = MembershipAction(f.varint)
			case 4:
				ev.Role = model.Role(f.varint)
			case 5:
				ev.At = f.time()
			}
			return nil
		})
		e = ev
	case KindSettingsChanged:
		ev := SettingsChanged{}
		err = readFields(body, func(f field) (ferr error) {
			switch f.num {
			case 1:
				ev.Title = f.str()
			case 2:
				ev.Settings, ferr = decodeSettings(f.data)
			case 3:
				ev.Ended = f.boolean()
			}
			return ferr
		})
		e = ev
	case KindJoinRequested:
		ev := JoinRequested{}
		err = readFields(body, func(f field) (ferr error) {
			if f.num == 1 {
				ev.Request, ferr = decodeRequest(f.data)
			}
			return ferr
		})
		e = ev
	case KindJoinDecided:
		ev := JoinDecided{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.RequestID = f.str()
			case 2:
				ev.RequesterID = f.str()
			case 3:
				ev.Status = model.RequestStatus(f.varint)
			case 4:
				ev.DecidedBy = f.str()
			case 5:
				ev.DecidedAt = f.time()
			}
			return nil
		})
		e = ev
	case KindCallSignal:
		ev := CallSignal{}
		err = readFields(body, func(f field) error {
			switch f.num {
			case 1:
				ev.Action = CallAction(f.varint)
			case 2:
				ev.ChannelName = f.str()
			case 3:
				ev.UserID = f.str()
			}
			return nil
		})
		e = ev
	default:
		return nil, errors.Errorf("unknown event kind %d", kind)
	}

	if err != nil {
		return nil, errors.WithMessagef(err, "failed to decode %s", kind)
	}
	return e, nil
}

func encodePayload(p model.Payload) []byte {
	w := fieldWriter{}
	w.uint(plType, uint64(p.Type()))
	if m, ok := model.MediaOf(p); ok {
		w.str(plURL, m.URL)
		w.str(plThumbnail, m.ThumbnailURL)
	}
	switch v := p.(type) {
	case model.Text:
		w.str(plBody, v.Body)
	case model.Image:
		w.str(plCaption, v.Caption)
		w.sint(plWidth, int64(v.Width))
		w.sint(plHeight, int64(v.Height))
	case model.Video:
		w.str(plCaption, v.Caption)
		w.sint(plDuration, int64(v.Duration))
	case model.Audio:
		w.sint(plDuration, int64(v.Duration))
	case model.File:
		w.str(plName, v.Name)
		w.sint(plSize, v.Size)
		w.str(plMIMEType, v.MIMEType)
	case model.System:
		w.str(plCode, v.Code)
		w.str(plBody, v.Text)
	}
	return w.b
}

func decodePayload(data []byte) (model.Payload, error) {
	var (
		mt                          model.MessageType
		media                       model.Media
		body, caption, name, mime   string
		code                        string
		width, height, size, length int64
	)
	err := readFields(data, func(f field) error {
		switch f.num {
		case plType:
			mt = model.MessageType(f.varint)
		case plBody:
			body = f.str()
		case plURL:
			media.URL = f.str()
		case plThumbnail:
			media.ThumbnailURL = f.str()
		case plCaption:
			caption = f.str()
		case plWidth:
			width = f.sint()
		case plHeight:
			height = f.sint()
		case plDuration:
			length = f.sint()
		case plName:
			name = f.str()
		case plSize:
			size = f.sint()
		case plMIMEType:
			mime = f.str()
		case plCode:
			code = f.str()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch mt {
	case model.TextMessage:
		return model.Text{Body: body}, nil
	case model.ImageMessage:
		return model.Image{Media: media, Caption: caption, Width: int(width),
			Height: int(height)}, nil
	case model.VideoMessage:
		return model.Video{Media: media, Caption: caption,
			Duration: time.Duration(length)}, nil
	case model.AudioMessage:
		return model.Audio{Media: media, Duration: time.Duration(length)}, nil
	case model.FileMessage:
		return model.File{Media: media, Name: name, Size: size,
			MIMEType: mime}, nil
	case model.SystemMessage:
		return model.System{Code: code, Text: body}, nil
	default:
		return nil, errors.Errorf("unknown payload type %d", mt)
	}
}

func encodeSettings(s model.Settings) []byte {
	w := fieldWriter{}
	w.sint(1, int64(s.MaxParticipants))
	w.boolean(2, s.RequireApproval)
	w.boolean(3, s.VoiceEnabled)
	w.boolean(4, s.VideoEnabled)
	return w.b
}

func decodeSettings(data []byte) (model.Settings, error) {
	s := model.Settings{}
	err := readFields(data, func(f field) error {
		switch f.num {
		case 1:
			s.MaxParticipants = int(f.sint())
		case 2:
			s.RequireApproval = f.boolean()
		case 3:
			s.VoiceEnabled = f.boolean()
		case 4:
			s.VideoEnabled = f.boolean()
		}
		return nil
	})
	return s, err
}

func encodeRequest(r model.JoinRequest) []byte {
	w := fieldWriter{}
	w.str(1, r.ID)
	w.str(2, r.LiveSessionID)
	w.str(3, r.RequesterID)
	w.str(4, r.Message)
	w.time(5, r.RequestedAt)
	w.uint(6, uint64(r.Status))
	w.str(7, r.DecidedBy)
	w.time(8, r.DecidedAt)
	return w.b
}

func decodeRequest(data []byte) (model.JoinRequest, error) {
	r := model.JoinRequest{}
	err := readFields(data, func(f field) error {
		switch f.num {
		case 1:
			r.ID = f.str()
		case 2:
			r.LiveSessionID = f.str()
		case 3:
			r.RequesterID = f.str()
		case 4:
			r.Message = f.str()
		case 5:
			r.RequestedAt = f.time()
		case 6:
			r.Status = model.RequestStatus(f.varint)
		case 7:
			r.DecidedBy = f.str()
		case 8:
			r.DecidedAt = f.time()
		}
		return nil
	})
	return r, err
}
