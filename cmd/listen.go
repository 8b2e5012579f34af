////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/heartline/convsync/wire"
)

// listenCmd joins rooms and prints every event received for them.
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Join rooms and print the events broadcast in them",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rooms := viper.GetStringSlice(roomsFlag)
		if len(rooms) == 0 {
			jww.FATAL.Panicf("No rooms given, set --%s", roomsFlag)
		}

		session := connect()
		defer func() {
			if err := session.Close(); err != nil {
				jww.ERROR.Printf("Failed to close transport: %+v", err)
			}
		}()

		received := make(chan wire.Envelope, 100)
		for _, room := range rooms {
			session.OnEvent(room, func(env wire.Envelope) { received <- env })
			if err := session.Join(room); err != nil {
				jww.FATAL.Panicf("Failed to join %s: %+v", room, err)
			}
		}
		session.OnReconnect(func(rooms []string) {
			jww.INFO.Printf("Reconnected, rejoined %v", rooms)
		})

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
		var deadline <-chan time.Time
		if d := viper.GetDuration(listenForFlag); d > 0 {
			deadline = time.After(d)
		}

		count := 0
		for {
			select {
			case env := <-received:
				count++
				fmt.Println(describe(env))
			case <-interrupt:
				jww.INFO.Printf("Interrupted after %d events", count)
				return
			case <-deadline:
				jww.INFO.Printf("Received %d events", count)
				return
			}
		}
	},
}

func init() {
	listenCmd.Flags().StringSliceP(roomsFlag, "r", nil,
		"Comma separated rooms to join")
	viper.BindPFlag(roomsFlag, listenCmd.Flags().Lookup(roomsFlag))

	listenCmd.Flags().Duration(listenForFlag, 0,
		"Stop listening after this long, 0 listens until interrupted")
	viper.BindPFlag(listenForFlag, listenCmd.Flags().Lookup(listenForFlag))

	rootCmd.AddCommand(listenCmd)
}
