////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/heartline/convsync/transport"
)

// envPrefix is prepended to the upper-cased flag name when reading a flag
// from the environment, e.g. CONVSYNC_SERVER.
const envPrefix = "CONVSYNC"

var cpuProfile interface{ Stop() }

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "convsync",
	Short: "Inspects the real-time conversation transport",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := initLog(viper.GetString(logLevelFlag),
			viper.GetString(logFlag)); err != nil {
			jww.FATAL.Panicf("Failed to set up logging: %+v", err)
		}
		if path := viper.GetString(profileCpuFlag); path != "" {
			cpuProfile = profile.Start(profile.CPUProfile,
				profile.ProfilePath(path), profile.NoShutdownHook,
				profile.Quiet)
			jww.INFO.Printf("Writing CPU profile to %s", path)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cpuProfile != nil {
			cpuProfile.Stop()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// connect starts a transport session against the configured server and
// blocks until it is connected or the wait expires.
func connect() *transport.Session {
	server := viper.GetString(serverFlag)
	if server == "" {
		jww.FATAL.Panicf("No server URL given, set --%s or %s_SERVER",
			serverFlag, envPrefix)
	}

	params, err := transport.GetParameters(viper.GetString(transportFlag))
	if err != nil {
		jww.FATAL.Panicf("Failed to parse transport params: %+v", err)
	}

	header := http.Header{}
	if token := viper.GetString(tokenFlag); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if user := viper.GetString(userFlag); user != "" {
		header.Set("X-User-Id", user)
	}

	session := transport.NewSession(&transport.WebsocketDialer{
		URL:    server,
		Header: header,
	}, params)
	if err = session.Start(); err != nil {
		jww.FATAL.Panicf("Failed to start transport: %+v", err)
	}

	waitUntilConnected(session, viper.GetDuration(connectWaitFlag))
	jww.INFO.Printf("Connected to %s", server)
	return session
}

// waitUntilConnected polls the session until it reports a connection or
// panics once the timeout is reached.
func waitUntilConnected(session *transport.Session, timeout time.Duration) {
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !session.IsConnected() {
		select {
		case <-timeoutTimer.C:
			jww.FATAL.Panicf("Timed out after %s connecting to the server",
				timeout)
		case <-ticker.C:
		}
	}
}

// initConfig reads the config file, if one is given, and binds the
// environment.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPath := viper.GetString(configFlag)
	if configPath == "" {
		return
	}
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		jww.FATAL.Panicf("Failed to read config file %s: %+v", configPath,
			err)
	}
}

func init() {
	// NOTE: The point of init() is to be declarative.
	// There is one init in each sub command. Do not put variable declarations
	// here, and ensure all the Flags are of the *P variety, unless there's a
	// very good reason not to have them as local params to sub command.
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP(logLevelFlag, "v", "info",
		"Log level: trace, debug, info, warn or error, or a verbosity "+
			"count where 1 is debug and 2 is trace")
	viper.BindPFlag(logLevelFlag, rootCmd.PersistentFlags().Lookup(logLevelFlag))

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	viper.BindPFlag(logFlag, rootCmd.PersistentFlags().Lookup(logFlag))

	rootCmd.PersistentFlags().StringP(configFlag, "c", "",
		"Path to a config file holding any of the flags")
	viper.BindPFlag(configFlag, rootCmd.PersistentFlags().Lookup(configFlag))

	rootCmd.PersistentFlags().String(profileCpuFlag, "",
		"Enable cpu profiling to this directory")
	viper.BindPFlag(profileCpuFlag,
		rootCmd.PersistentFlags().Lookup(profileCpuFlag))

	rootCmd.PersistentFlags().StringP(serverFlag, "s", "",
		"Websocket URL of the real-time server")
	viper.BindPFlag(serverFlag, rootCmd.PersistentFlags().Lookup(serverFlag))

	rootCmd.PersistentFlags().StringP(tokenFlag, "t", "",
		"Bearer token sent when connecting")
	viper.BindPFlag(tokenFlag, rootCmd.PersistentFlags().Lookup(tokenFlag))

	rootCmd.PersistentFlags().StringP(userFlag, "u", "",
		"ID of the local user")
	viper.BindPFlag(userFlag, rootCmd.PersistentFlags().Lookup(userFlag))

	rootCmd.PersistentFlags().String(transportFlag, "",
		"Transport parameters as JSON, overriding the defaults")
	viper.BindPFlag(transportFlag,
		rootCmd.PersistentFlags().Lookup(transportFlag))

	rootCmd.PersistentFlags().Duration(connectWaitFlag, 30*time.Second,
		"How long to wait for the connection to come up")
	viper.BindPFlag(connectWaitFlag,
		rootCmd.PersistentFlags().Lookup(connectWaitFlag))
}
