package main

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/vinumeris/lighthouse/backend"
	"github.com/vinumeris/lighthouse/httpapi"
	"github.com/vinumeris/lighthouse/pledgewallet"
	"github.com/vinumeris/lighthouse/projectindex"
)

// logRotator is installed by initLogRotator and flushed on shutdown by
// lighthoudMain's deferred flushLog.
var logRotator *rotator.Rotator

// logWriter fans every write out to both stdout and the rotator, the same
// dual-sink shape lnd's own build.LogWriter uses.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var backendLog = btclog.NewBackend(logWriter{})

// subsystemLoggers pairs each package's log tag with the UseLogger setter
// that installs a real logger into it, mirroring lnd's own
// subsystemLoggers table in log.go.
var subsystemLoggers = map[string]func(btclog.Logger){
	"BKND": backend.UseLogger,
	"HTTP": httpapi.UseLogger,
	"PIDX": projectindex.UseLogger,
	"PWLT": pledgewallet.UseLogger,
}

// initLogging creates every subsystem logger at the requested level and
// wires it into its package via UseLogger.
func initLogging(debugLevel string) error {
	level, ok := btclog.LevelFromString(debugLevel)
	if !ok {
		return fmt.Errorf("lighthoused: unknown log level %q", debugLevel)
	}
	for tag, setter := range subsystemLoggers {
		logger := backendLog.Logger(tag)
		logger.SetLevel(level)
		setter(logger)
	}
	return nil
}

// initLogRotator opens logFile for rotating writes, capping it at
// maxSizeMB megabytes (rotator.New takes its threshold in kilobytes) and
// keeping maxRolls historical copies, following the same jrick/logrotate
// setup every btcsuite daemon performs.
func initLogRotator(logFile string, maxSizeMB, maxRolls int) error {
	r, err := rotator.New(logFile, int64(maxSizeMB*1024), false, maxRolls)
	if err != nil {
		return fmt.Errorf("lighthoused: failed to create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// flushLog closes the rotator so its last buffered writes reach disk.
func flushLog() {
	if logRotator != nil {
		logRotator.Close()
	}
}

var _ io.Writer = logWriter{}
