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
	"google.golang.org/protobuf/encoding/protowire"
)

// fieldWriter appends protobuf-compatible fields. Zero values are omitted,
// matching proto3 semantics.
type fieldWriter struct {
	b []byte
}

func (w *fieldWriter) str(num protowire.Number, s string) {
	if s == "" {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendString(w.b, s)
}

func (w *fieldWriter) strs(num protowire.Number, list []string) {
	for _, s := range list {
		w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
		w.b = protowire.AppendString(w.b, s)
	}
}

func (w *fieldWriter) raw(num protowire.Number, data []byte) {
	if len(data) == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendBytes(w.b, data)
}

func (w *fieldWriter) uint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, v)
}

func (w *fieldWriter) sint(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, protowire.EncodeZigZag(v))
}

func (w *fieldWriter) boolean(num protowire.Number, v bool) {
	if !v {
		return
	}
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, protowire.EncodeBool(v))
}

func (w *fieldWriter) time(num protowire.Number, t time.Time) {
	if t.IsZero() {
		return
	}
	w.sint(num, t.UnixNano())
}

// field is one decoded field. Only one of data and varint is meaningful,
// depending on the wire type.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	data   []byte
	varint uint64
}

func (f field) str() string   { return string(f.data) }
func (f field) sint() int64   { return protowire.DecodeZigZag(f.varint) }
func (f field) boolean() bool { return protowire.DecodeBool(f.varint) }

func (f field) time() time.Time {
	return time.Unix(0, f.sint()).UTC()
}

// readFields walks every field in b. Unknown wire types are skipped so older
// clients tolerate newer servers.
func readFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "bad field tag")
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n),
				"bad value for field %d", num)
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
