////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/heartline/convsync/wire"
)

// decodeCmd prints a captured wire frame.
var decodeCmd = &cobra.Command{
	Use:   "decode <frame>",
	Short: "Decode a hex or base64 encoded wire frame",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env, err := decodeFrame(args[0], viper.GetBool(base64Flag))
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		fmt.Println(describe(env))
	},
}

// decodeFrame parses a textual frame into an envelope.
func decodeFrame(s string, isBase64 bool) (wire.Envelope, error) {
	s = strings.TrimSpace(s)
	var (
		frame []byte
		err   error
	)
	if isBase64 {
		frame, err = base64.StdEncoding.DecodeString(s)
	} else {
		frame, err = hex.DecodeString(strings.TrimPrefix(s, "0x"))
	}
	if err != nil {
		return wire.Envelope{}, errors.Wrap(err, "frame is not valid text")
	}
	return wire.Decode(frame)
}

// describe renders an envelope and its event on one line.
func describe(env wire.Envelope) string {
	return fmt.Sprintf("%s %+v", env, env.Event)
}

func init() {
	decodeCmd.Flags().Bool(base64Flag, false,
		"The frame is base64 encoded instead of hex")
	viper.BindPFlag(base64Flag, decodeCmd.Flags().Lookup(base64Flag))

	rootCmd.AddCommand(decodeCmd)
}
