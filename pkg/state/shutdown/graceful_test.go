package shutdown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAbortRecordsAndExits(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "state"), 0o700); err != nil {
		t.Fatal(err)
	}
	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()

	Abort("bad config", errors.New("boom"), root)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	b, err := os.ReadFile(filepath.Join(root, "state", "abort.log"))
	if err != nil {
		t.Fatalf("read abort log: %v", err)
	}
	if !strings.Contains(string(b), "bad config: boom") {
		t.Fatalf("abort log missing message: %q", b)
	}
}

func TestSignalHandlerCancelPropagates(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := SetupSignalHandler(parent)
	defer cancel()
	cancelParent()
	<-ctx.Done()
}
