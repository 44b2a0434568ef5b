// Package log installs the process-wide slog handler.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"fndisasm/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	closer      io.Closer
)

// Setup routes slog through the environment-configured charm logger.
// debug forces the debug level regardless of FNDISASM_LOG_LEVEL. At the
// debug level records also carry their caller.
func Setup(debug bool) {
	initOnce.Do(func() {
		lg := logging.NewLogger()
		if debug || logging.IsDebug() {
			lg.SetLevel(charmlog.DebugLevel)
			lg.SetReportCaller(true)
		}
		closer = lg

		slog.SetDefault(slog.New(lg.Logger))
		initialized.Store(true)
	})
}

// Close flushes a file-backed log, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
