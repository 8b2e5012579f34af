////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling flags
// using Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Misc
	configFlag     = "config"
	profileCpuFlag = "profile-cpu"

	// Connection flags
	serverFlag    = "server"
	tokenFlag     = "token"
	userFlag      = "user"
	transportFlag = "transportParams"

	///////////////// Listen subcommand flags /////////////////////////////////
	roomsFlag       = "rooms"
	listenForFlag   = "duration"
	connectWaitFlag = "connectTimeout"

	///////////////// Send subcommand flags ///////////////////////////////////
	roomFlag       = "room"
	messageFlag    = "message"
	ackTimeoutFlag = "ackTimeout"
	typingOnlyFlag = "typing"

	///////////////// Decode subcommand flags /////////////////////////////////
	base64Flag = "base64"
)
