////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package emoji validates message reactions.
package emoji

import (
	"strings"

	"github.com/forPelevin/gomoji"
	"github.com/pkg/errors"

	"gitlab.com/heartline/convsync/model"
)

// ErrInvalidReaction is returned if a reaction is not exactly one emoji.
var ErrInvalidReaction = errors.Wrap(model.ErrInvalid,
	"reaction must be a single emoji")

// ValidateReaction checks that the reaction contains a single emoji and
// nothing else. Surrounding whitespace is ignored. The trimmed reaction is
// returned on success.
func ValidateReaction(reaction string) (string, error) {
	reaction = strings.TrimSpace(reaction)

	found := gomoji.CollectAll(reaction)
	switch {
	case len(found) != 1:
		return "", ErrInvalidReaction
	case found[0].Character != reaction:
		// Non-emoji characters alongside the emoji
		return "", ErrInvalidReaction
	}
	return reaction, nil
}

// IsEmoji reports whether s is a single emoji.
func IsEmoji(s string) bool {
	_, err := ValidateReaction(s)
	return err == nil
}
