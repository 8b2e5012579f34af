////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// logFile is the open log file, if logging to a file.
var logFile *os.File

// parseLogLevel accepts a level name or a verbosity count, where 0 is info,
// 1 is debug and anything higher is trace. An empty level is info.
func parseLogLevel(level string) (jww.Threshold, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return jww.LevelInfo, nil
	}
	if n, err := strconv.Atoi(level); err == nil {
		switch {
		case n < 0:
			return 0, errors.Errorf("negative log verbosity %d", n)
		case n == 0:
			return jww.LevelInfo, nil
		case n == 1:
			return jww.LevelDebug, nil
		default:
			return jww.LevelTrace, nil
		}
	}
	switch level {
	case "trace":
		return jww.LevelTrace, nil
	case "debug":
		return jww.LevelDebug, nil
	case "info":
		return jww.LevelInfo, nil
	case "warn", "warning":
		return jww.LevelWarn, nil
	case "error":
		return jww.LevelError, nil
	}
	return 0, errors.Errorf("unknown log level %q", level)
}

// initLog sets the log threshold and output. With a log path, everything at
// the threshold goes to the file and only warnings and errors reach stdout.
// A path of "-" or "" logs to stdout.
func initLog(level, logPath string) error {
	threshold, err := parseLogLevel(level)
	if err != nil {
		return err
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	if logPath != "-" && logPath != "" {
		f, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrapf(err, "failed to open log file %s", logPath)
		}
		logFile = f
		jww.SetLogOutput(f)
		jww.SetLogThreshold(threshold)
		jww.SetStdoutThreshold(max(threshold, jww.LevelWarn))
	} else {
		jww.SetStdoutOutput(os.Stdout)
		jww.SetStdoutThreshold(threshold)
		jww.SetLogThreshold(jww.LevelFatal)
	}

	if threshold <= jww.LevelDebug {
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.SetFlags(log.LstdFlags)
	}
	jww.INFO.Printf("Log level set to %s", levelName(threshold))
	return nil
}

func levelName(t jww.Threshold) string {
	switch t {
	case jww.LevelTrace:
		return "TRACE"
	case jww.LevelDebug:
		return "DEBUG"
	case jww.LevelInfo:
		return "INFO"
	case jww.LevelWarn:
		return "WARN"
	case jww.LevelError:
		return "ERROR"
	case jww.LevelCritical:
		return "CRITICAL"
	}
	return "FATAL"
}
