package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"chatsync/pkg/logger"
)

// SetupSignalHandler returns a context cancelled on SIGINT/SIGTERM. SIGPIPE
// dumps goroutine stacks before cancelling.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigpipe)
	}()

	return ctx, cancel
}

var exit = os.Exit

// Abort logs a fatal startup error, records it under <dbPath>/state when
// that directory exists, and exits with status 1.
func Abort(msg string, err error, dbPath string) {
	logger.Error("fatal", "msg", msg, "error", err)
	fmt.Fprintf(os.Stderr, "chatsync: %s: %v\n", msg, err)
	if dbPath != "" {
		stateDir := filepath.Join(dbPath, "state")
		if fi, statErr := os.Stat(stateDir); statErr == nil && fi.IsDir() {
			line := fmt.Sprintf("%s %s: %v\n", time.Now().UTC().Format(time.RFC3339), msg, err)
			if f, openErr := os.OpenFile(filepath.Join(stateDir, "abort.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); openErr == nil {
				_, _ = f.WriteString(line)
				f.Close()
			}
		}
	}
	exit(1)
}
