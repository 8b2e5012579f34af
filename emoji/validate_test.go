////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package emoji

import (
	"testing"

	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

func TestValidateReaction(t *testing.T) {
	tests := []struct {
		reaction string
		valid    bool
	}{
		{"🔥", true},
		{"😂", true},
		{" 👍 ", true},
		{"", false},
		{"hello", false},
		{"🔥🔥", false},
		{"🔥A", false},
		{"👍😘A", false},
	}

	for i, tt := range tests {
		_, err := ValidateReaction(tt.reaction)
		if tt.valid && err != nil {
			t.Errorf("Reaction %q (%d) rejected: %+v", tt.reaction, i, err)
		} else if !tt.valid && err != ErrInvalidReaction {
			t.Errorf("Unexpected error for %q (%d)."+
				"\nexpected: %v\nreceived: %v",
				tt.reaction, i, ErrInvalidReaction, err)
		}
	}
}

// Tests that an invalid reaction is classified as invalid input.
func TestValidateReaction_Kind(t *testing.T) {
	_, err := ValidateReaction("nope")
	if !errors.Is(err, model.ErrInvalid) {
		t.Errorf("Reaction error is not ErrInvalid: %+v", err)
	}
	if model.KindOf(err) != model.KindInvalid {
		t.Errorf("Unexpected kind.\nexpected: %s\nreceived: %s",
			model.KindInvalid, model.KindOf(err))
	}
}
