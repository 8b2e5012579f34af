////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/heartline/convsync/model"
	"gitlab.com/heartline/convsync/wire"
)

// sendCmd posts a text message to a room and waits for the server's
// acknowledgement.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Post a text message to a room and wait for its acknowledgement",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		room := viper.GetString(roomFlag)
		user := viper.GetString(userFlag)
		if room == "" || user == "" {
			jww.FATAL.Panicf("Both --%s and --%s are required", roomFlag,
				userFlag)
		}

		session := connect()
		defer func() {
			if err := session.Close(); err != nil {
				jww.ERROR.Printf("Failed to close transport: %+v", err)
			}
		}()

		if viper.GetBool(typingOnlyFlag) {
			if err := session.Send(room, wire.TypingChanged{
				UserID: user, IsTyping: true}); err != nil {
				jww.FATAL.Panicf("Failed to send typing: %+v", err)
			}
			jww.INFO.Printf("Sent typing indicator to %s", room)
			return
		}

		tempID := uuid.NewString()
		acked := make(chan wire.MessageAck, 1)
		session.OnEvent(room, func(env wire.Envelope) {
			if ack, ok := env.Event.(wire.MessageAck); ok && ack.TempID == tempID {
				select {
				case acked <- ack:
				default:
				}
			}
		})
		if err := session.Join(room); err != nil {
			jww.FATAL.Panicf("Failed to join %s: %+v", room, err)
		}

		msg := wire.MessagePosted{
			TempID:    tempID,
			SenderID:  user,
			Payload:   model.Text{Body: viper.GetString(messageFlag)},
			CreatedAt: netTime.Now(),
		}
		if err := session.Send(room, msg); err != nil {
			jww.FATAL.Panicf("Failed to send message: %+v", err)
		}
		jww.INFO.Printf("Sent message %s to %s", tempID, room)

		waitTimeout := viper.GetDuration(ackTimeoutFlag)
		timeoutTimer := time.NewTimer(waitTimeout)
		defer timeoutTimer.Stop()
		select {
		case ack := <-acked:
			fmt.Printf("Message %s stored as %d at %s\n", tempID, ack.ServerID,
				ack.CreatedAt.Format(time.RFC3339))
		case <-timeoutTimer.C:
			jww.ERROR.Printf("No acknowledgement for %s after %s", tempID,
				waitTimeout)
		}
	},
}

func init() {
	sendCmd.Flags().StringP(roomFlag, "r", "", "Room to send to")
	viper.BindPFlag(roomFlag, sendCmd.Flags().Lookup(roomFlag))

	sendCmd.Flags().StringP(messageFlag, "m", "", "Message to send")
	viper.BindPFlag(messageFlag, sendCmd.Flags().Lookup(messageFlag))

	sendCmd.Flags().Duration(ackTimeoutFlag, 30*time.Second,
		"How long to wait for the acknowledgement")
	viper.BindPFlag(ackTimeoutFlag, sendCmd.Flags().Lookup(ackTimeoutFlag))

	sendCmd.Flags().Bool(typingOnlyFlag, false,
		"Send a typing indicator instead of a message")
	viper.BindPFlag(typingOnlyFlag, sendCmd.Flags().Lookup(typingOnlyFlag))

	rootCmd.AddCommand(sendCmd)
}
